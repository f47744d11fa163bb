package handler

import (
	"context"

	"github.com/rl1809/gamepass-store/internal/core/service"
)

type GRPCHandler struct {
	verifier *service.VerificationService
}

func NewGRPCHandler(verifier *service.VerificationService) *GRPCHandler {
	return &GRPCHandler{verifier: verifier}
}

// Verify reports rejections in the response body, like the HTTP endpoint.
func (h *GRPCHandler) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	orderID, err := h.verifier.Verify(ctx, service.VerifyInput{
		Username: req.Username,
		Tx:       req.Tx,
		Items:    req.Items,
		Total:    req.Total,
	})
	if err != nil {
		return &VerifyResponse{
			OK:    false,
			Error: service.ErrorCode(err),
		}, nil
	}

	return &VerifyResponse{
		OK:      true,
		OrderID: orderID,
	}, nil
}
