package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/cart"
	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, cache and idempotency will degrade", "addr", cfg.RedisAddr, "err", err)
	}

	// Kafka producers, one per lifecycle topic
	prodCtx, stopProducers := context.WithCancel(context.Background())
	defer stopProducers()
	producers := make(map[string]*kafkax.Producer, len(orders.Topics))
	for _, topic := range orders.Topics {
		p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024).WithLogger(log)
		p.Start(prodCtx)
		producers[topic] = p
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	om := metrics.NewOrderMetrics(reg, "api")

	mgr := &orders.Manager{
		Store:     store,
		Publisher: &orders.KafkaPublisher{Producers: producers},
		Cache:     &redisx.StatusCache{RDB: rdb},
		Metrics:   om,
		Log:       log,
		Service:   cfg.ServiceName,
	}
	sweeper := &orders.Sweeper{
		Manager:  mgr,
		TTL:      cfg.PendingOrderTTL,
		Interval: cfg.SweepInterval,
		Metrics:  om,
		Log:      log.With("component", "sweeper"),
	}

	catalog := &orders.StoreCatalog{Store: store}
	router := httpx.NewRouter(log, metrics.HandlerFor(reg))
	h := &httpx.Handler{
		Manager: mgr,
		Catalog: catalog,
		Carts:   cart.NewSessions(catalog, cfg.CartMaxLines),
		Idem:    &redisx.Idempotency{RDB: rdb},
		Status:  &redisx.StatusCache{RDB: rdb},
		Log:     log,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// HTTP is drained, so nothing publishes anymore: flush and close the writers.
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	return err
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (orders.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		st := memstore.New()
		seedDemo(st)
		log.Warn("using in-memory store with demo data; nothing survives a restart")
		return st, func() {}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &orders.PgStore{DB: db}, db.Close, nil
}
