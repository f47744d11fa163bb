package handler

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

// The verification service is served with a JSON codec so storefront backends can
// call it without generated stubs. Clients select it with grpc.CallContentSubtype(CodecName).
const (
	CodecName               = "json"
	VerificationServiceName = "storefront.v1.Verification"
	verifyMethod            = "Verify"
	VerifyFullMethodName    = "/" + VerificationServiceName + "/" + verifyMethod
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

type VerifyRequest struct {
	Username string          `json:"username"`
	Tx       string          `json:"tx"`
	Items    []domain.Item   `json:"items"`
	Total    decimal.Decimal `json:"total"`
}

type VerifyResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type VerificationServer interface {
	Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error)
}

func RegisterVerificationServer(s grpc.ServiceRegistrar, srv VerificationServer) {
	s.RegisterService(&verificationServiceDesc, srv)
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: VerifyFullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServer).Verify(ctx, req.(*VerifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var verificationServiceDesc = grpc.ServiceDesc{
	ServiceName: VerificationServiceName,
	HandlerType: (*VerificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: verifyMethod,
			Handler:    verifyHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// VerificationClient calls the service over an existing connection.
type VerificationClient struct {
	cc grpc.ClientConnInterface
}

func NewVerificationClient(cc grpc.ClientConnInterface) *VerificationClient {
	return &VerificationClient{cc: cc}
}

func (c *VerificationClient) Verify(ctx context.Context, req *VerifyRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, VerifyFullMethodName, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
