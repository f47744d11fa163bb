package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/gamepass-store/internal/adapter/handler"
	"github.com/rl1809/gamepass-store/internal/adapter/messaging"
	"github.com/rl1809/gamepass-store/internal/adapter/platform"
	"github.com/rl1809/gamepass-store/internal/adapter/storage"
	"github.com/rl1809/gamepass-store/internal/config"
	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/core/service"
	"github.com/rl1809/gamepass-store/internal/logger"
	"github.com/rl1809/gamepass-store/internal/migrate"
	"github.com/rl1809/gamepass-store/internal/port"
)

type store interface {
	port.OrderStore
	port.RedemptionLedger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UsesDefaultAdminToken() {
		log.Warn("ADMIN_TOKEN not set, using the default token")
	}

	orders, ledger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Platform client
	httpClient := &http.Client{Timeout: cfg.PlatformTimeout}
	roblox := platform.NewRobloxClient(httpClient, cfg.RobloxUsersURL, cfg.RobloxInventoryURL)
	var resolver port.IdentityResolver = roblox

	var locker port.ReferenceLocker = storage.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 50,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.ReferenceLockTTL, cfg.IdentityCacheTTL)
		locker = redisAdapter
		// A cached id skips the banned-user filter until it expires; 0 turns caching off.
		if cfg.IdentityCacheTTL > 0 {
			resolver = platform.NewCachedResolver(roblox, redisAdapter, log)
		}
	}

	// Event queue and publisher workers
	queue := service.NewEventQueue(cfg.EventQueueSize)
	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kp.Close()
		publisher = kp
		log.Info("publishing order events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue.Events(), publisher, log)
		}(i)
	}
	log.Info("started event workers", zap.Int("count", cfg.WorkerCount))

	// Services
	verifier := service.NewVerificationService(cfg.Catalog, ledger, orders, resolver, roblox,
		service.WithReferenceLocker(locker),
		service.WithEventPublisher(queue),
		service.WithLogger(log.Named("verify")),
	)
	admin := service.NewAdminService(orders, queue, log.Named("admin"))

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterVerificationServer(grpcServer, handler.NewGRPCHandler(verifier))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	router := handler.NewRouter(
		handler.NewHTTPHandler(verifier),
		handler.NewAdminHandler(admin, cfg.AdminToken, log.Named("admin")),
		cfg.CORSOrigins,
		log.Named("http"),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	queue.Close()
	wg.Wait()
	log.Info("event workers stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.OrderStore, port.RedemptionLedger, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		if err := migrate.Up(ctx, db, config.DriverMySQL); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info("connected to mysql")

		var s store = storage.NewMySQLAdapter(db)
		return s, s, func() { db.Close() }, nil

	case config.DriverPostgres:
		sqlDB, err := migrate.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		err = migrate.Up(ctx, sqlDB, config.DriverPostgres)
		sqlDB.Close()
		if err != nil {
			return nil, nil, nil, err
		}

		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Info("connected to postgres")

		var s store = storage.NewPostgresAdapter(pool)
		return s, s, pool.Close, nil

	default:
		log.Warn("using in-memory store, orders will not survive a restart")
		return storage.NewMemoryOrders(), storage.NewMemoryLedger(), func() {}, nil
	}
}

func workerLoop(id int, queue <-chan domain.OrderEvent, publisher port.EventPublisher, log *zap.Logger) {
	for event := range queue {
		if publisher == nil {
			log.Debug("order event", zap.Int("worker", id),
				zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := publisher.Publish(ctx, event); err != nil {
			log.Error("publish order event failed", zap.Int("worker", id),
				zap.String("type", string(event.Type)), zap.String("order_id", event.OrderID), zap.Error(err))
		}
		cancel()
	}
}
