package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/port"
)

// Rejection reasons returned by Verify. The error text is the wire code.
var (
	ErrMissingFields    = errors.New("missing_fields")
	ErrTxUsed           = errors.New("tx_used")
	ErrInvalidTotal     = errors.New("invalid_total")
	ErrUsernameNotFound = errors.New("username_not_found")
	ErrNotPaid          = errors.New("not_paid")
	ErrServerError      = errors.New("server_error")
)

var rejections = []error{
	ErrMissingFields,
	ErrTxUsed,
	ErrInvalidTotal,
	ErrUsernameNotFound,
	ErrNotPaid,
}

// ErrorCode maps any Verify error to its wire code, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return ErrServerError.Error()
}

type VerifyInput struct {
	Username string
	Tx       string
	Items    []domain.Item
	Total    decimal.Decimal
}

type VerificationService struct {
	catalog  domain.Catalog
	ledger   port.RedemptionLedger
	orders   port.OrderStore
	resolver port.IdentityResolver
	checker  port.EntitlementChecker
	locker   port.ReferenceLocker
	events   port.EventPublisher
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() (string, error)
}

type VerificationOption func(*VerificationService)

func WithReferenceLocker(l port.ReferenceLocker) VerificationOption {
	return func(s *VerificationService) { s.locker = l }
}

func WithEventPublisher(p port.EventPublisher) VerificationOption {
	return func(s *VerificationService) { s.events = p }
}

func WithLogger(l *zap.Logger) VerificationOption {
	return func(s *VerificationService) { s.log = l }
}

func WithClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) { s.now = now }
}

func WithIDGenerator(fn func() (string, error)) VerificationOption {
	return func(s *VerificationService) { s.newID = fn }
}

func NewVerificationService(
	catalog domain.Catalog,
	ledger port.RedemptionLedger,
	orders port.OrderStore,
	resolver port.IdentityResolver,
	checker port.EntitlementChecker,
	opts ...VerificationOption,
) *VerificationService {
	s := &VerificationService{
		catalog:  catalog,
		ledger:   ledger,
		orders:   orders,
		resolver: resolver,
		checker:  checker,
		log:      zap.NewNop(),
		tracer:   otel.Tracer("gamepass-store/verification"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    NewOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOrderID returns a time-ordered order id.
func NewOrderID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return "ord_" + id.String(), nil
}

// Verify confirms the buyer owns the game pass priced at the cart total and
// commits the order exactly once per transaction reference.
func (s *VerificationService) Verify(ctx context.Context, in VerifyInput) (string, error) {
	ctx, span := s.tracer.Start(ctx, "VerificationService.Verify")
	defer span.End()

	orderID, err := s.verify(ctx, in)
	if err != nil {
		code := ErrorCode(err)
		span.SetAttributes(attribute.String("verify.result", code))
		span.SetStatus(codes.Error, code)
		if code == ErrServerError.Error() {
			span.RecordError(err)
			s.log.Error("verification failed", zap.String("tx", in.Tx), zap.Error(err))
		} else {
			s.log.Info("verification rejected", zap.String("tx", in.Tx), zap.String("code", code))
		}
		return "", err
	}

	span.SetAttributes(attribute.String("verify.result", "ok"), attribute.String("order.id", orderID))
	s.log.Info("order committed", zap.String("order_id", orderID), zap.String("tx", in.Tx))
	return orderID, nil
}

func (s *VerificationService) verify(ctx context.Context, in VerifyInput) (string, error) {
	username := strings.TrimSpace(in.Username)
	tx := strings.TrimSpace(in.Tx)

	if err := validateInput(username, tx, in.Items, in.Total); err != nil {
		return "", err
	}

	if s.locker != nil {
		unlock, err := s.locker.LockReference(ctx, tx)
		if err != nil {
			return "", fmt.Errorf("%w: lock reference: %v", ErrServerError, err)
		}
		defer unlock()
	}

	used, err := s.ledger.HasBeenRedeemed(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: ledger lookup: %v", ErrServerError, err)
	}
	if used {
		return "", ErrTxUsed
	}

	total, err := cartTotal(in.Items, in.Total)
	if err != nil {
		return "", err
	}
	gamePassID, ok := s.catalog.EntitlementFor(total)
	if !ok {
		return "", ErrInvalidTotal
	}

	userID, err := s.resolver.ResolveUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrPlatformUnavailable) {
			s.log.Warn("identity service unavailable", zap.String("username", username), zap.Error(err))
		}
		return "", ErrUsernameNotFound
	}

	owns, err := s.checker.OwnsGamePass(ctx, userID, gamePassID)
	if err != nil {
		s.log.Warn("inventory service unavailable",
			zap.Int64("user_id", userID), zap.String("game_pass_id", gamePassID), zap.Error(err))
		return "", ErrNotPaid
	}
	if !owns {
		return "", ErrNotPaid
	}

	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("%w: order id: %v", ErrServerError, err)
	}
	order := domain.Order{
		ID:        id,
		Username:  username,
		UserID:    userID,
		Items:     append([]domain.Item(nil), in.Items...),
		Total:     total,
		Tx:        tx,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now(),
	}

	if err := s.commit(ctx, order); err != nil {
		return "", err
	}

	s.publish(ctx, domain.OrderEvent{
		Type:    domain.EventOrderCommitted,
		OrderID: order.ID,
		Order:   &order,
		At:      order.CreatedAt,
	})
	return order.ID, nil
}

func validateInput(username, tx string, items []domain.Item, total decimal.Decimal) error {
	if username == "" || tx == "" || len(items) == 0 || !total.IsPositive() {
		return ErrMissingFields
	}
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return ErrMissingFields
		}
	}
	return nil
}

// cartTotal returns the submitted total as a catalog key. It must be a whole
// number that fits in int64 and equal the sum of the items.
func cartTotal(items []domain.Item, total decimal.Decimal) (int64, error) {
	if !total.IsInteger() {
		return 0, ErrInvalidTotal
	}
	n := total.IntPart()
	if !decimal.NewFromInt(n).Equal(total) {
		return 0, ErrInvalidTotal
	}
	if !domain.CartTotal(items).Equal(total) {
		return 0, ErrInvalidTotal
	}
	return n, nil
}

// commit writes the order and its redemption together. Stores that own both
// tables do it in one transaction; otherwise the order is appended first and
// removed again if the ledger refuses the reference.
func (s *VerificationService) commit(ctx context.Context, order domain.Order) error {
	if c, ok := s.orders.(port.AtomicCommitter); ok && sameStore(s.orders, s.ledger) {
		err := c.CommitOrder(ctx, order)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrAlreadyRedeemed):
			return ErrTxUsed
		default:
			return fmt.Errorf("%w: commit order: %v", ErrServerError, err)
		}
	}

	if err := s.orders.AppendOrder(ctx, order); err != nil {
		return fmt.Errorf("%w: append order: %v", ErrServerError, err)
	}

	if err := s.ledger.RecordRedemption(ctx, order.Tx); err != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := s.orders.DeleteOrder(rbCtx, order.ID); rbErr != nil {
			s.log.Error("CRITICAL rollback failed",
				zap.String("order_id", order.ID), zap.String("tx", order.Tx), zap.Error(rbErr))
		} else {
			s.log.Warn("rolled back order", zap.String("order_id", order.ID), zap.String("tx", order.Tx))
		}
		if errors.Is(err, domain.ErrAlreadyRedeemed) {
			return ErrTxUsed
		}
		return fmt.Errorf("%w: record redemption: %v", ErrServerError, err)
	}
	return nil
}

func sameStore(orders port.OrderStore, ledger port.RedemptionLedger) bool {
	l, ok := ledger.(port.OrderStore)
	return ok && l == orders
}

func (s *VerificationService) publish(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID), zap.Error(err))
	}
}
