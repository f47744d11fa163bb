package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/port"
)

var exportHeader = []string{"id", "username", "userId", "items", "total", "tx", "status", "createdAt"}

// AdminService backs the back-office screens. It never touches the redemption ledger.
type AdminService struct {
	orders port.OrderStore
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

func NewAdminService(orders port.OrderStore, events port.EventPublisher, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		orders: orders,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AdminService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

func (s *AdminService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrOrderNotFound
	}
	return s.orders.GetOrder(ctx, id)
}

func (s *AdminService) UpdateStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrOrderNotFound
	}

	o, err := s.orders.UpdateOrderStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status changed", zap.String("order_id", id), zap.String("status", string(st)))
	s.publish(ctx, domain.OrderEvent{Type: domain.EventOrderStatusChanged, OrderID: id, Order: o, At: s.now()})
	return o, nil
}

func (s *AdminService) DeleteOrder(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrOrderNotFound
	}
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.log.Info("order deleted", zap.String("order_id", id))
	s.publish(ctx, domain.OrderEvent{Type: domain.EventOrderDeleted, OrderID: id, At: s.now()})
	return nil
}

// ExportCSV writes one row per order, most recent first.
func (s *AdminService) ExportCSV(ctx context.Context, w io.Writer) error {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, o := range orders {
		row := []string{
			o.ID,
			o.Username,
			strconv.FormatInt(o.UserID, 10),
			o.ItemSummary(),
			strconv.FormatInt(o.Total, 10),
			o.Tx,
			string(o.Status),
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *AdminService) publish(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID), zap.Error(err))
	}
}
