package platform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rl1809/gamepass-store/internal/core/domain"
)

// Mock IdentityCache
type mockCache struct {
	mu       sync.Mutex
	ids      map[string]int64
	getErr   error
	setErr   error
	setCalls int
}

func newMockCache() *mockCache {
	return &mockCache{ids: make(map[string]int64)}
}

func (m *mockCache) GetUserID(ctx context.Context, username string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, false, m.getErr
	}
	id, ok := m.ids[strings.ToLower(username)]
	return id, ok, nil
}

func (m *mockCache) SetUserID(ctx context.Context, username string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.ids[strings.ToLower(username)] = userID
	return nil
}

// Mock IdentityResolver
type mockResolver struct {
	mu    sync.Mutex
	ids   map[string]int64
	err   error
	calls int
}

func (m *mockResolver) ResolveUser(ctx context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	id, ok := m.ids[username]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return id, nil
}

func TestCachedResolver_CachesHits(t *testing.T) {
	next := &mockResolver{ids: map[string]int64{"builder": 1001}}
	cache := newMockCache()
	r := NewCachedResolver(next, cache, nil)

	for i := 0; i < 3; i++ {
		id, err := r.ResolveUser(context.Background(), "builder")
		if err != nil || id != 1001 {
			t.Fatalf("lookup %d: got %d, %v", i, id, err)
		}
	}

	if next.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", next.calls)
	}
}

func TestCachedResolver_DoesNotCacheMisses(t *testing.T) {
	next := &mockResolver{ids: map[string]int64{}}
	cache := newMockCache()
	r := NewCachedResolver(next, cache, nil)

	for i := 0; i < 2; i++ {
		if _, err := r.ResolveUser(context.Background(), "ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got: %v", err)
		}
	}

	if next.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", next.calls)
	}
	if cache.setCalls != 0 {
		t.Errorf("expected no cache writes, got %d", cache.setCalls)
	}
}

func TestCachedResolver_CacheFailuresFallThrough(t *testing.T) {
	next := &mockResolver{ids: map[string]int64{"builder": 1001}}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	r := NewCachedResolver(next, cache, nil)

	id, err := r.ResolveUser(context.Background(), "builder")
	if err != nil || id != 1001 {
		t.Errorf("expected 1001, got %d, %v", id, err)
	}
}

func TestCachedResolver_PropagatesUnavailable(t *testing.T) {
	next := &mockResolver{err: domain.ErrPlatformUnavailable}
	r := NewCachedResolver(next, newMockCache(), nil)

	if _, err := r.ResolveUser(context.Background(), "builder"); !errors.Is(err, domain.ErrPlatformUnavailable) {
		t.Errorf("expected ErrPlatformUnavailable, got: %v", err)
	}
}
