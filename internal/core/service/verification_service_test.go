package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/gamepass-store/internal/adapter/storage"
	"github.com/rl1809/gamepass-store/internal/core/domain"
)

// Mock RedemptionLedger
type mockLedger struct {
	mu        sync.Mutex
	redeemed  map[string]bool
	recordErr error
	lookupErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{redeemed: make(map[string]bool)}
}

func (m *mockLedger) HasBeenRedeemed(ctx context.Context, tx string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	return m.redeemed[tx], nil
}

func (m *mockLedger) RecordRedemption(ctx context.Context, tx string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if m.redeemed[tx] {
		return domain.ErrAlreadyRedeemed
	}
	m.redeemed[tx] = true
	return nil
}

// Mock OrderStore
type mockOrders struct {
	mu        sync.Mutex
	orders    []domain.Order
	appendErr error
	deleteErr error
	deleted   []string
}

func (m *mockOrders) AppendOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.orders = append([]domain.Order{order}, m.orders...)
	return nil
}

func (m *mockOrders) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Order(nil), m.orders...), nil
}

func (m *mockOrders) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = status
			cp := m.orders[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, o := range m.orders {
		if o.ID == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return domain.ErrOrderNotFound
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// mockAtomicStore owns both tables and commits in one step.
type mockAtomicStore struct {
	mockOrders
	ledger    *mockLedger
	commitErr error
	commits   atomic.Int32
}

func (m *mockAtomicStore) HasBeenRedeemed(ctx context.Context, tx string) (bool, error) {
	return m.ledger.HasBeenRedeemed(ctx, tx)
}

func (m *mockAtomicStore) RecordRedemption(ctx context.Context, tx string) error {
	return m.ledger.RecordRedemption(ctx, tx)
}

func (m *mockAtomicStore) CommitOrder(ctx context.Context, order domain.Order) error {
	m.commits.Add(1)
	if m.commitErr != nil {
		return m.commitErr
	}
	if err := m.ledger.RecordRedemption(ctx, order.Tx); err != nil {
		return err
	}
	return m.mockOrders.AppendOrder(ctx, order)
}

// Mock platform
type mockPlatform struct {
	users      map[string]int64
	owned      map[string]bool
	resolveErr error
	ownsErr    error
	delay      time.Duration
	resolves   atomic.Int32
	checks     atomic.Int32
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		users: map[string]int64{"builder": 1001},
		owned: map[string]bool{"1001:1591582593": true, "1001:1591926519": true},
	}
}

func (m *mockPlatform) ResolveUser(ctx context.Context, username string) (int64, error) {
	m.resolves.Add(1)
	time.Sleep(m.delay)
	if m.resolveErr != nil {
		return 0, m.resolveErr
	}
	id, ok := m.users[username]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return id, nil
}

func (m *mockPlatform) OwnsGamePass(ctx context.Context, userID int64, gamePassID string) (bool, error) {
	m.checks.Add(1)
	time.Sleep(m.delay)
	if m.ownsErr != nil {
		return false, m.ownsErr
	}
	return m.owned[fmt.Sprintf("%d:%s", userID, gamePassID)], nil
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) snapshot() []domain.OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderEvent(nil), m.events...)
}

type failingLocker struct{}

func (failingLocker) LockReference(ctx context.Context, tx string) (func(), error) {
	return nil, errors.New("lock backend down")
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) domain.Catalog {
	t.Helper()
	c, err := domain.NewCatalog(domain.DefaultGamePasses)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func validInput() VerifyInput {
	return VerifyInput{
		Username: "builder",
		Tx:       "TX-100",
		Items: []domain.Item{
			{ID: "vip", Name: "VIP", Price: decimal.NewFromInt(60), Quantity: 1},
			{ID: "gem", Name: "Gem", Price: decimal.NewFromInt(20), Quantity: 2},
		},
		Total: decimal.NewFromInt(100),
	}
}

type fixture struct {
	svc      *VerificationService
	ledger   *mockLedger
	orders   *mockOrders
	platform *mockPlatform
	events   *mockPublisher
}

func newFixture(t *testing.T, opts ...VerificationOption) *fixture {
	f := &fixture{
		ledger:   newMockLedger(),
		orders:   &mockOrders{},
		platform: newMockPlatform(),
		events:   &mockPublisher{},
	}
	opts = append([]VerificationOption{
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	f.svc = NewVerificationService(testCatalog(t), f.ledger, f.orders, f.platform, f.platform, opts...)
	return f
}

func TestVerify_Success(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.Verify(context.Background(), validInput())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !strings.HasPrefix(id, "ord_") {
		t.Errorf("expected ord_ prefix, got %q", id)
	}

	orders, _ := f.orders.ListOrders(context.Background())
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.ID != id || o.Username != "builder" || o.UserID != 1001 || o.Total != 100 || o.Tx != "TX-100" {
		t.Errorf("unexpected order: %+v", o)
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("expected pending, got %q", o.Status)
	}
	if !o.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected createdAt %v, got %v", fixedNow, o.CreatedAt)
	}
	if len(o.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(o.Items))
	}

	if !f.ledger.redeemed["TX-100"] {
		t.Error("expected TX-100 in ledger")
	}

	events := f.events.snapshot()
	if len(events) != 1 || events[0].Type != domain.EventOrderCommitted || events[0].OrderID != id {
		t.Errorf("expected one committed event, got %+v", events)
	}
}

func TestVerify_TrimsUsernameAndTx(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Username = "  builder "
	in.Tx = " TX-100\t"

	if _, err := f.svc.Verify(context.Background(), in); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	orders, _ := f.orders.ListOrders(context.Background())
	if orders[0].Username != "builder" || orders[0].Tx != "TX-100" {
		t.Errorf("expected trimmed fields, got %q / %q", orders[0].Username, orders[0].Tx)
	}
}

func TestVerify_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VerifyInput)
	}{
		{"empty username", func(in *VerifyInput) { in.Username = "  " }},
		{"empty tx", func(in *VerifyInput) { in.Tx = "" }},
		{"no items", func(in *VerifyInput) { in.Items = nil }},
		{"zero total", func(in *VerifyInput) { in.Total = decimal.Zero }},
		{"negative total", func(in *VerifyInput) { in.Total = decimal.NewFromInt(-100) }},
		{"item without id", func(in *VerifyInput) { in.Items[0].ID = "" }},
		{"zero quantity", func(in *VerifyInput) { in.Items[0].Quantity = 0 }},
		{"negative price", func(in *VerifyInput) { in.Items[0].Price = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.Verify(context.Background(), in)
			if !errors.Is(err, ErrMissingFields) {
				t.Errorf("expected ErrMissingFields, got: %v", err)
			}
			if f.platform.resolves.Load() != 0 {
				t.Error("platform should not be called")
			}
			if f.orders.count() != 0 {
				t.Error("no order should be stored")
			}
		})
	}
}

func TestVerify_InvalidTotal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VerifyInput)
	}{
		{"fractional total", func(in *VerifyInput) {
			in.Items = []domain.Item{{ID: "a", Name: "A", Price: decimal.RequireFromString("50.5"), Quantity: 1}}
			in.Total = decimal.RequireFromString("50.5")
		}},
		{"sum mismatch", func(in *VerifyInput) { in.Total = decimal.NewFromInt(200) }},
		{"unlisted total", func(in *VerifyInput) {
			in.Items = []domain.Item{{ID: "a", Name: "A", Price: decimal.NewFromInt(60), Quantity: 1}}
			in.Total = decimal.NewFromInt(60)
		}},
		{"total beyond int64", func(in *VerifyInput) {
			// 2^64 + 50 wraps to a listed price if truncated
			huge := decimal.RequireFromString("18446744073709551666")
			in.Items = []domain.Item{{ID: "a", Name: "A", Price: huge, Quantity: 1}}
			in.Total = huge
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.Verify(context.Background(), in)
			if !errors.Is(err, ErrInvalidTotal) {
				t.Errorf("expected ErrInvalidTotal, got: %v", err)
			}
			if f.platform.resolves.Load() != 0 {
				t.Error("platform should not be called")
			}
			if f.orders.count() != 0 {
				t.Error("no order should be stored")
			}
		})
	}
}

func TestVerify_TxAlreadyUsed(t *testing.T) {
	f := newFixture(t)
	f.ledger.redeemed["TX-100"] = true

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed, got: %v", err)
	}
	if f.platform.resolves.Load() != 0 || f.platform.checks.Load() != 0 {
		t.Error("platform should not be called for a used reference")
	}
	if len(f.events.snapshot()) != 0 {
		t.Error("no event expected")
	}
}

func TestVerify_TxUsedCheckedBeforeCatalog(t *testing.T) {
	f := newFixture(t)
	f.ledger.redeemed["TX-100"] = true

	in := validInput()
	in.Items = []domain.Item{{ID: "a", Name: "A", Price: decimal.NewFromInt(60), Quantity: 1}}
	in.Total = decimal.NewFromInt(60)

	_, err := f.svc.Verify(context.Background(), in)
	if !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed, got: %v", err)
	}
}

func TestVerify_ReplayWithEditedCart(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Verify(context.Background(), validInput()); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*VerifyInput)
	}{
		{"edited price", func(in *VerifyInput) { in.Items[0].Price = decimal.NewFromInt(25) }},
		{"fractional total", func(in *VerifyInput) {
			in.Items = []domain.Item{{ID: "a", Name: "A", Price: decimal.RequireFromString("50.5"), Quantity: 1}}
			in.Total = decimal.RequireFromString("50.5")
		}},
		{"total beyond int64", func(in *VerifyInput) {
			in.Total = decimal.RequireFromString("18446744073709551666")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := f.svc.Verify(context.Background(), in); !errors.Is(err, ErrTxUsed) {
				t.Errorf("expected ErrTxUsed, got: %v", err)
			}
		})
	}
	if f.orders.count() != 1 {
		t.Errorf("expected 1 order, got %d", f.orders.count())
	}
}

func TestVerify_UsernameNotFound(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Username = "ghost"

	_, err := f.svc.Verify(context.Background(), in)
	if !errors.Is(err, ErrUsernameNotFound) {
		t.Errorf("expected ErrUsernameNotFound, got: %v", err)
	}
	if f.platform.checks.Load() != 0 {
		t.Error("ownership should not be checked")
	}
	if f.ledger.redeemed["TX-100"] {
		t.Error("reference must stay unredeemed")
	}
}

func TestVerify_IdentityUnavailable(t *testing.T) {
	f := newFixture(t)
	f.platform.resolveErr = fmt.Errorf("%w: status 503", domain.ErrPlatformUnavailable)

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrUsernameNotFound) {
		t.Errorf("expected ErrUsernameNotFound, got: %v", err)
	}
	if f.orders.count() != 0 {
		t.Error("no order should be stored")
	}
}

func TestVerify_NotPaid(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Items = []domain.Item{{ID: "a", Name: "A", Price: decimal.NewFromInt(70), Quantity: 1}}
	in.Total = decimal.NewFromInt(70)

	_, err := f.svc.Verify(context.Background(), in)
	if !errors.Is(err, ErrNotPaid) {
		t.Errorf("expected ErrNotPaid, got: %v", err)
	}
	if f.ledger.redeemed["TX-100"] {
		t.Error("reference must stay unredeemed")
	}
}

func TestVerify_InventoryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.platform.ownsErr = fmt.Errorf("%w: timeout", domain.ErrPlatformUnavailable)

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrNotPaid) {
		t.Errorf("expected ErrNotPaid, got: %v", err)
	}
}

func TestVerify_RetryAfterRejectionSucceeds(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Username = "ghost"

	if _, err := f.svc.Verify(context.Background(), in); !errors.Is(err, ErrUsernameNotFound) {
		t.Fatalf("expected ErrUsernameNotFound, got: %v", err)
	}

	// Same reference with the right username
	if _, err := f.svc.Verify(context.Background(), validInput()); err != nil {
		t.Errorf("expected success on retry, got: %v", err)
	}
}

func TestVerify_LedgerLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.lookupErr = errors.New("connection refused")

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got: %v", err)
	}
}

func TestVerify_LockFailure(t *testing.T) {
	f := newFixture(t, WithReferenceLocker(failingLocker{}))

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got: %v", err)
	}
	if f.platform.resolves.Load() != 0 {
		t.Error("platform should not be called without the lock")
	}
}

func TestVerify_AppendFailure(t *testing.T) {
	f := newFixture(t)
	f.orders.appendErr = errors.New("disk full")

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got: %v", err)
	}
	if f.ledger.redeemed["TX-100"] {
		t.Error("reference must stay unredeemed when the order was not stored")
	}
}

func TestVerify_RecordFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	f.ledger.recordErr = errors.New("ledger write failed")

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got: %v", err)
	}
	if f.orders.count() != 0 {
		t.Errorf("expected order to be rolled back, %d remain", f.orders.count())
	}
	if len(f.orders.deleted) != 1 {
		t.Errorf("expected one compensating delete, got %d", len(f.orders.deleted))
	}
	if len(f.events.snapshot()) != 0 {
		t.Error("no event expected for a failed commit")
	}
}

func TestVerify_LostLedgerRaceReportsTxUsed(t *testing.T) {
	f := newFixture(t)
	f.ledger.recordErr = domain.ErrAlreadyRedeemed

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed, got: %v", err)
	}
	if f.orders.count() != 0 {
		t.Error("expected order to be rolled back")
	}
}

func TestVerify_RollbackFailureStillFails(t *testing.T) {
	f := newFixture(t)
	f.ledger.recordErr = errors.New("ledger write failed")
	f.orders.deleteErr = errors.New("delete failed")

	_, err := f.svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got: %v", err)
	}
}

func TestVerify_AtomicCommit(t *testing.T) {
	store := &mockAtomicStore{ledger: newMockLedger()}
	svc := NewVerificationService(testCatalog(t), store, store, newMockPlatform(), newMockPlatform())

	if _, err := svc.Verify(context.Background(), validInput()); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if store.commits.Load() != 1 {
		t.Errorf("expected CommitOrder to be used once, got %d", store.commits.Load())
	}
	if store.count() != 1 {
		t.Errorf("expected 1 order, got %d", store.count())
	}

	_, err := svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed on second attempt, got: %v", err)
	}
}

func TestVerify_AtomicCommitConflict(t *testing.T) {
	store := &mockAtomicStore{ledger: newMockLedger(), commitErr: fmt.Errorf("insert: %w", domain.ErrAlreadyRedeemed)}
	svc := NewVerificationService(testCatalog(t), store, store, newMockPlatform(), newMockPlatform())

	_, err := svc.Verify(context.Background(), validInput())
	if !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed, got: %v", err)
	}
	if store.count() != 0 {
		t.Error("no order should be stored")
	}
}

func TestVerify_PublishFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	f.events.err = ErrQueueFull

	if _, err := f.svc.Verify(context.Background(), validInput()); err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if f.orders.count() != 1 {
		t.Error("order should be stored")
	}
}

func TestVerify_ConcurrentSameTx(t *testing.T) {
	f := newFixture(t, WithReferenceLocker(storage.NewMemoryLocker()))
	f.platform.delay = 5 * time.Millisecond

	var successCount atomic.Int32
	var txUsedCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(context.Background(), validInput())
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrTxUsed):
				txUsedCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected 1 success, got %d", successCount.Load())
	}
	if txUsedCount.Load() != 19 {
		t.Errorf("expected 19 tx_used, got %d", txUsedCount.Load())
	}
	if f.orders.count() != 1 {
		t.Errorf("expected 1 order, got %d", f.orders.count())
	}
}

func TestVerify_ConcurrentSameTxWithoutLocker(t *testing.T) {
	// Without a lock all requests pass the ledger check; the ledger write decides.
	f := newFixture(t)
	f.platform.delay = 5 * time.Millisecond

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Verify(context.Background(), validInput()); err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, ErrTxUsed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected 1 success, got %d", successCount.Load())
	}
	if f.orders.count() != 1 {
		t.Errorf("expected 1 order after rollbacks, got %d", f.orders.count())
	}
}

func TestVerify_ConcurrentDistinctTx(t *testing.T) {
	f := newFixture(t, WithReferenceLocker(storage.NewMemoryLocker()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := validInput()
			in.Tx = fmt.Sprintf("TX-%d", n)
			if _, err := f.svc.Verify(context.Background(), in); err != nil {
				t.Errorf("tx %d: unexpected error: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if f.orders.count() != 10 {
		t.Errorf("expected 10 orders, got %d", f.orders.count())
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrMissingFields, "missing_fields"},
		{ErrTxUsed, "tx_used"},
		{ErrInvalidTotal, "invalid_total"},
		{ErrUsernameNotFound, "username_not_found"},
		{ErrNotPaid, "not_paid"},
		{fmt.Errorf("%w: boom", ErrServerError), "server_error"},
		{errors.New("anything else"), "server_error"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNewOrderID(t *testing.T) {
	a, err := NewOrderID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewOrderID()
	if a == b {
		t.Error("expected distinct ids")
	}
	if !strings.HasPrefix(a, "ord_") {
		t.Errorf("expected ord_ prefix, got %q", a)
	}
}

func TestVerify_AliceScenario(t *testing.T) {
	f := newFixture(t)
	f.platform.users["Alice"] = 9001
	f.platform.owned["9001:1591926519"] = true

	in := VerifyInput{
		Username: "Alice",
		Tx:       "tx1",
		Items:    []domain.Item{{ID: "a", Name: "Tomatrio", Price: decimal.NewFromInt(50), Quantity: 1}},
		Total:    decimal.NewFromInt(50),
	}

	id, err := f.svc.Verify(context.Background(), in)
	if err != nil || id == "" {
		t.Fatalf("expected success, got %q, %v", id, err)
	}

	if _, err := f.svc.Verify(context.Background(), in); !errors.Is(err, ErrTxUsed) {
		t.Errorf("expected ErrTxUsed on replay, got: %v", err)
	}
	if f.orders.count() != 1 {
		t.Errorf("replay must not touch the order store, got %d orders", f.orders.count())
	}
}

func TestVerify_LedgerMatchesOrdersUnderConcurrency(t *testing.T) {
	orders := storage.NewMemoryOrders()
	ledger := storage.NewMemoryLedger()
	p := newMockPlatform()
	p.delay = 2 * time.Millisecond
	svc := NewVerificationService(testCatalog(t), ledger, orders, p, p)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := validInput()
			in.Tx = fmt.Sprintf("TX-%d", n%5)
			if n%7 == 0 {
				in.Username = "ghost"
			}
			_, _ = svc.Verify(context.Background(), in)
		}(i)
	}
	wg.Wait()

	stored, _ := orders.ListOrders(context.Background())
	orderRefs := make(map[string]int)
	for _, o := range stored {
		orderRefs[o.Tx]++
	}
	ledgerRefs := ledger.References()

	if len(ledgerRefs) != len(orderRefs) {
		t.Fatalf("ledger has %d references, orders cover %d", len(ledgerRefs), len(orderRefs))
	}
	for _, ref := range ledgerRefs {
		if orderRefs[ref] != 1 {
			t.Errorf("reference %s backs %d orders", ref, orderRefs[ref])
		}
	}
}
