package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/gamepass-store/internal/adapter/storage"
	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/core/service"
	"github.com/rl1809/gamepass-store/internal/port"
)

const (
	redisAddr     = "localhost:6379"
	txRef         = "stress-tx-0001"
	username      = "stress_buyer"
	totalRequests = 50
	platformDelay = 20 * time.Millisecond
)

// fakePlatform answers every lookup positively after a short delay so that
// concurrent requests overlap inside the workflow.
type fakePlatform struct{}

func (fakePlatform) ResolveUser(ctx context.Context, username string) (int64, error) {
	time.Sleep(platformDelay)
	return 42, nil
}

func (fakePlatform) OwnsGamePass(ctx context.Context, userID int64, gamePassID string) (bool, error) {
	time.Sleep(platformDelay)
	return true, nil
}

func main() {
	ctx := context.Background()

	catalog, err := domain.NewCatalog(domain.DefaultGamePasses)
	if err != nil {
		log.Fatalf("failed to build catalog: %v", err)
	}

	// Use the Redis lock when available, otherwise the in-process one
	var locker port.ReferenceLocker = storage.NewMemoryLocker()
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err == nil {
		rdb.Del(ctx, "lock:tx:"+txRef)
		locker = storage.NewRedisAdapter(rdb, 30*time.Second, time.Minute)
		fmt.Println("Using Redis reference lock")
	} else {
		fmt.Println("Redis not available, using in-process reference lock")
	}
	defer rdb.Close()

	orders := storage.NewMemoryOrders()
	ledger := storage.NewMemoryLedger()
	verifier := service.NewVerificationService(catalog, ledger, orders, fakePlatform{}, fakePlatform{},
		service.WithReferenceLocker(locker),
	)

	input := service.VerifyInput{
		Username: username,
		Tx:       txRef,
		Items: []domain.Item{
			{ID: "vip", Name: "VIP Pack", Price: decimal.NewFromInt(50), Quantity: 1},
			{ID: "boost", Name: "Boost", Price: decimal.NewFromInt(25), Quantity: 2},
		},
		Total: decimal.NewFromInt(100),
	}

	// Counters
	var successCount atomic.Int32
	var txUsedCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent requests sharing one transaction reference
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := verifier.Verify(ctx, input)
			switch {
			case err == nil:
				successCount.Add(1)
			case service.ErrorCode(err) == service.ErrTxUsed.Error():
				txUsedCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	txUsed := txUsedCount.Load()
	other := otherCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Committed:        %d\n", success)
	fmt.Printf("tx_used:          %d\n", txUsed)
	fmt.Printf("Other errors:     %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && txUsed == totalRequests-1 {
		fmt.Printf("PASS: Exactly 1 order committed, %d rejected as tx_used\n", totalRequests-1)
	} else {
		fmt.Printf("FAIL: Expected 1 committed/%d tx_used, got %d/%d (other %d)\n",
			totalRequests-1, success, txUsed, other)
	}

	stored, err := orders.ListOrders(ctx)
	if err != nil {
		log.Fatalf("failed to list orders: %v", err)
	}
	fmt.Printf("Stored Orders:    %d\n", len(stored))
	fmt.Printf("Ledger Entries:   %d\n", len(ledger.References()))

	if len(stored) == 1 && len(ledger.References()) == 1 {
		fmt.Println("PASS: One order and one redemption recorded")
	} else {
		fmt.Printf("FAIL: Expected 1 order and 1 redemption, got %d and %d\n",
			len(stored), len(ledger.References()))
	}
}
