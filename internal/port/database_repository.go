package port

import (
	"context"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

type OrderStore interface {
	// AppendOrder stores a new order at the front of the listing
	AppendOrder(ctx context.Context, order domain.Order) error

	// ListOrders returns all orders, most recent first
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// GetOrder returns domain.ErrOrderNotFound for unknown ids
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// UpdateOrderStatus changes the status and returns the updated order
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)

	// DeleteOrder removes an order; the redemption ledger is left untouched
	DeleteOrder(ctx context.Context, id string) error
}

type RedemptionLedger interface {
	// HasBeenRedeemed reports whether the transaction reference was already consumed
	HasBeenRedeemed(ctx context.Context, tx string) (bool, error)

	// RecordRedemption succeeds only for the first caller, later callers get domain.ErrAlreadyRedeemed
	RecordRedemption(ctx context.Context, tx string) error
}

// AtomicCommitter is implemented by stores that hold both orders and redemptions
// and can write them in a single transaction.
type AtomicCommitter interface {
	// CommitOrder records order.Tx and appends the order, or does neither
	CommitOrder(ctx context.Context, order domain.Order) error
}
