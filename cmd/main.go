package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/config"
	"github.com/RaikyD/storefront-orders/internal/idempotency"
	"github.com/RaikyD/storefront-orders/internal/kafka"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/migrate"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/presentation"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/RaikyD/storefront-orders/internal/repository/memory"
)

type storage interface {
	repository.TxManager
	repository.Pinger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("")
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LOG_FORMAT)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	deps := application.Deps{Pricing: cfg.Pricing}
	var store storage
	switch cfg.STORAGE_DRIVER {
	case config.DriverMemory:
		mem := memory.New()
		deps.Orders, deps.Tx, deps.Stock, deps.Catalog, deps.Addresses, deps.Events = mem, mem, mem, mem, mem, mem
		store = mem
		logger.Warn("using in-memory storage, data is lost on restart")
	default:
		if cfg.MIGRATE {
			if err := migrate.Up(ctx, cfg.DB_STRING); err != nil {
				logger.Error("migrations failed", "err", err)
				os.Exit(1)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DB_STRING)
		if err != nil {
			logger.Error("pgxpool new failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("db ping failed", "err", err)
			os.Exit(1)
		}
		logger.Info("db connected")

		tx := repository.NewTxManager(pool)
		deps.Orders = repository.NewOrderRepository(pool)
		deps.Tx = tx
		deps.Stock = repository.NewStockLedger(pool)
		deps.Catalog = repository.NewCatalogReader(pool)
		deps.Addresses = repository.NewAddressReader(pool)
		deps.Events = repository.NewEventLog(pool)
		store = tx
	}

	// Kafka producer for committed order events
	if cfg.KAFKA_BROKERS != "" {
		prod := kafka.NewProducer(cfg.KAFKA_BROKERS, cfg.KAFKA_ORDER_TOPIC)
		defer prod.Close()
		deps.Publisher = prod
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	// Payments
	var provider application.PaymentProvider = payments.DisabledProvider{}
	if cfg.STRIPE_SECRET_KEY != "" {
		sp, err := payments.NewStripeProvider(payments.StripeProviderConfig{APIKey: cfg.STRIPE_SECRET_KEY})
		if err != nil {
			logger.Error("stripe provider init failed", "err", err)
			os.Exit(1)
		}
		provider = sp
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payment intents are disabled")
	}

	orders := application.NewOrdersService(deps)
	reconciler := application.NewPaymentReconciler(deps, payments.NewStripeVerifier(cfg.STRIPE_WEBHOOK_SECRET))
	paymentsSvc := application.NewPaymentsService(deps.Orders, provider, cfg.CURRENCY)

	// Kafka consumer for provider events relayed from the edge
	if cfg.KAFKA_BROKERS != "" {
		_, err := kafka.StartConsumer(ctx, reconciler, kafka.ConsumerConfig{
			Brokers: cfg.KAFKA_BROKERS,
			Topic:   cfg.KAFKA_PAYMENT_TOPIC,
			GroupID: cfg.KAFKA_GROUP_ID,
		})
		if err != nil {
			logger.Error("kafka consumer start failed", "err", err)
			os.Exit(1)
		}
	}

	// Idempotency-Key store
	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cfg.REDIS_URL != "" {
		rs, err := idempotency.NewRedisStore(cfg.REDIS_URL)
		if err != nil {
			logger.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		idem = rs
	}
	scopeByCaller := func(r *http.Request) string {
		return presentation.RequesterFrom(r.Context()).UserID
	}

	router := presentation.NewRouter(presentation.RouterConfig{
		Orders:    presentation.NewOrdersHandler(orders, idempotency.Middleware(idem, idempotency.DefaultTTL, scopeByCaller)),
		Payments:  presentation.NewPaymentsHandler(paymentsSvc, reconciler),
		JWTSecret: []byte(cfg.JWT_SECRET),
		Health:    store,
		Metrics:   metrics.NewServerMetrics(prometheus.DefaultRegisterer),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting http", "addr", srv.Addr, "storage", cfg.STORAGE_DRIVER,
			"tax_rate", cfg.Pricing.TaxRate.String(), "currency", cfg.CURRENCY)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "err", err)
	}
	orders.Drain()
	reconciler.Drain()
}
