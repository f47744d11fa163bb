package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

// MemoryOrders keeps orders most-recent-first. It is not durable and is meant
// for tests and local runs.
type MemoryOrders struct {
	mu     sync.RWMutex
	orders []domain.Order
}

func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{}
}

func (m *MemoryOrders) AppendOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.ID == order.ID {
			return fmt.Errorf("append order %s: duplicate id", order.ID)
		}
	}
	m.orders = append([]domain.Order{order.Clone()}, m.orders...)
	return nil
}

func (m *MemoryOrders) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *MemoryOrders) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, domain.ErrOrderNotFound
	}
	cp := m.orders[i].Clone()
	return &cp, nil
}

func (m *MemoryOrders) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, domain.ErrOrderNotFound
	}
	m.orders[i].Status = status
	cp := m.orders[i].Clone()
	return &cp, nil
}

func (m *MemoryOrders) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return domain.ErrOrderNotFound
	}
	m.orders = append(m.orders[:i], m.orders[i+1:]...)
	return nil
}

func (m *MemoryOrders) indexOf(id string) int {
	for i, o := range m.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// MemoryLedger is a write-once set of redeemed references.
type MemoryLedger struct {
	mu       sync.Mutex
	redeemed map[string]time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{redeemed: make(map[string]time.Time)}
}

func (l *MemoryLedger) HasBeenRedeemed(ctx context.Context, tx string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.redeemed[tx]
	return ok, nil
}

func (l *MemoryLedger) RecordRedemption(ctx context.Context, tx string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.redeemed[tx]; ok {
		return domain.ErrAlreadyRedeemed
	}
	l.redeemed[tx] = time.Now().UTC()
	return nil
}

// References returns a snapshot of every redeemed reference.
func (l *MemoryLedger) References() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.redeemed))
	for tx := range l.redeemed {
		out = append(out, tx)
	}
	return out
}

// MemoryLocker serializes workflows sharing a transaction reference within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*refLock)}
}

func (l *MemoryLocker) LockReference(ctx context.Context, tx string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.locks[tx]
	if !ok {
		rl = &refLock{sem: make(chan struct{}, 1)}
		l.locks[tx] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(tx, rl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-rl.sem
			l.release(tx, rl)
		})
	}, nil
}

func (l *MemoryLocker) release(tx string, rl *refLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, tx)
	}
}
