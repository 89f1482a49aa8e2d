package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storeledger/internal/config"
	"storeledger/internal/core/clock"
	"storeledger/internal/core/lock"
	"storeledger/internal/core/numerator"
	"storeledger/internal/core/retry"
	"storeledger/internal/core/tx"
	"storeledger/internal/domain/documents"
	"storeledger/internal/domain/documents/delivery"
	"storeledger/internal/domain/documents/internalorder"
	"storeledger/internal/domain/documents/purchase"
	"storeledger/internal/domain/documents/rejection"
	"storeledger/internal/domain/inventorycount"
	"storeledger/internal/domain/movement"
	"storeledger/internal/domain/pricing"
	"storeledger/internal/domain/stock"
	"storeledger/internal/infrastructure/events"
	"storeledger/internal/infrastructure/http/v1/handlers"
	"storeledger/internal/infrastructure/locking"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/internal/infrastructure/sequence"
	"storeledger/internal/infrastructure/session"
	"storeledger/internal/infrastructure/storage/memory"
	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
)

// app is the wired service graph.
type app struct {
	Movements *movement.Service
	Counts    *inventorycount.Service
	Stock     *stock.Store
	Health    map[string]handlers.Pinger
	History   handlers.HistoryReader
	Prices    pricing.Table
	Relay     *events.Relay

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*app, error) {
	a := &app{Health: make(map[string]handlers.Pinger)}
	clk := clock.System{}

	var (
		store tx.Store
		pg    *postgres.Store
		mem   *memory.Store
	)
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		poolCfg.MaxConns = cfg.DBMaxConns
		poolCfg.MinConns = cfg.DBMinConns
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		if pg, err = postgres.NewStore(pool, postgres.WithClock(clk)); err != nil {
			pool.Close()
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.Health["database"] = pg
		a.History = pg
		store = pg
	default:
		mem = memory.New(memory.WithClock(clk))
		a.Health["storage"] = mem
		store = mem
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Health["redis"] = redisPinger{rdb}
	}

	alloc, err := buildAllocator(cfg, pg, rdb, m)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		locker        lock.Locker = lock.NewLocal()
		draftSessions movement.Sessions
		countSessions inventorycount.Sessions
	)
	if cfg.SessionDriver == config.DriverRedis {
		locker = locking.NewRedis(rdb, "storeledger:lock", 0)
		draftSessions = session.NewRedis[movement.Snapshot](rdb, "storeledger:draft", "draft", cfg.SessionTTL)
		countSessions = session.NewRedis[inventorycount.Snapshot](rdb, "storeledger:count", "count", cfg.SessionTTL)
	} else {
		draftSessions = session.NewMemory[movement.Snapshot]("draft", cfg.SessionTTL, clk)
		countSessions = session.NewMemory[inventorycount.Snapshot]("count", cfg.SessionTTL, clk)
	}

	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = cfg.RetryMaxElapsed

	txm := tx.NewManager(store)
	a.Stock = stock.NewStore(store)

	prices, err := buildPrices(ctx, cfg, pg, clk)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Prices = prices

	costs := documents.NewCostResolver(prices)
	engine := movement.NewEngine(txm, a.Stock, alloc, movement.WithClock(clk), movement.WithRecorder(m))
	deliveries := delivery.New(engine, costs)

	a.Movements = movement.NewService(movement.ServiceConfig{
		Engine:   engine,
		Sessions: draftSessions,
		Locker:   locker,
		Adapters: []movement.Adapter{
			purchase.New(costs),
			rejection.New(costs),
			internalorder.New(costs),
			deliveries,
		},
		Receiver: deliveries,
		Retry:    policy,
		Observer: m,
		LockTTL:  cfg.LockTTL,
	})

	a.Counts = inventorycount.NewService(inventorycount.ServiceConfig{
		Engine: inventorycount.NewEngine(inventorycount.EngineConfig{
			Tx:       txm,
			Stock:    a.Stock,
			Clock:    clk,
			Calendar: clock.NewCalendar(cfg.Location()),
			Recorder: m,
		}),
		Sessions: countSessions,
		Locker:   locker,
		Retry:    policy,
		Observer: m,
		LockTTL:  cfg.LockTTL,
	})

	if mem != nil {
		sink, closeSink := buildSink(cfg, log)
		a.closers = append(a.closers, closeSink)
		a.Relay = events.NewRelay(events.RelayConfig{
			Source:    mem,
			Sink:      sink,
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxPollInterval,
			Observer:  m,
		})
	}

	return a, nil
}

// buildPrices caches the prices table, or an in-memory table without
// postgres, and seeds it from PRICE_FILE.
func buildPrices(ctx context.Context, cfg *config.Config, pg *postgres.Store, clk clock.Clock) (*pricing.Cached, error) {
	var source pricing.Table = pricing.NewStatic()
	if pg != nil {
		source = postgres.NewPriceTable(pg)
	}
	prices := pricing.NewCached(source, cfg.PriceCacheTTL, clk)

	if cfg.PriceFile != "" {
		n, err := pricing.LoadFile(ctx, cfg.PriceFile, prices)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "prices seeded", "file", cfg.PriceFile, "count", n)
	}
	return prices, nil
}

// buildAllocator layers range caching, the circuit breaker and metrics over
// the configured sequence backend.
func buildAllocator(cfg *config.Config, pg *postgres.Store, rdb *redis.Client, m *metrics.Metrics) (numerator.Allocator, error) {
	var backend interface {
		numerator.Allocator
		numerator.RangeReserver
	}
	switch cfg.SequenceDriver {
	case config.DriverPostgres:
		if pg == nil {
			return nil, fmt.Errorf("postgres sequence needs postgres storage")
		}
		backend = sequence.NewPostgres(pg.Pool())
	case config.DriverRedis:
		backend = sequence.NewRedis(rdb, "storeledger:seq")
	default:
		backend = sequence.NewMemory(nil)
	}

	var alloc numerator.Allocator = backend
	if cfg.SequenceRangeSize > 1 {
		alloc = numerator.NewCachedAllocator(backend, cfg.SequenceRangeSize)
	}
	alloc = sequence.NewBreaker(alloc, sequence.DefaultBreakerConfig("sequence-"+cfg.SequenceDriver))
	return sequence.NewInstrumented(alloc, m), nil
}

func buildSink(cfg *config.Config, log *logger.Logger) (events.Sink, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogSink(log.WithComponent("outbox")), func() {}
	}
	sink := events.NewKafkaSink(events.KafkaConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		BatchTimeout: 10 * time.Millisecond,
	})
	return sink, func() {
		if err := sink.Close(); err != nil {
			log.Warnw("close kafka writer", "error", err)
		}
	}
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
