package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/config"
	"github.com/joao-fontenele/botmarket/internal/demo"
	"github.com/joao-fontenele/botmarket/internal/messaging"
	"github.com/joao-fontenele/botmarket/internal/notifier"
	"github.com/joao-fontenele/botmarket/internal/orders"
	"github.com/joao-fontenele/botmarket/internal/payments"
	"github.com/joao-fontenele/botmarket/internal/reviews"
	"github.com/joao-fontenele/botmarket/internal/server"
	"github.com/joao-fontenele/botmarket/internal/store"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

const serviceVersion = "0.1.0"

type publisher interface {
	orders.EventPublisher
	Close() error
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if err := cfg.RequireDatabase(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret (JWT_SECRET) is required")
		os.Exit(1)
	}

	ctx := context.Background()
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "marketplace"
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewMetrics(otel.Meter(serviceName))
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := store.MigrateUp(cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	db, err := telemetry.OpenDB(ctx, "postgres", cfg.Database.URL, telemetry.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var cache catalog.Cache
	if cfg.Redis.Addr != "" {
		client, err := catalog.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		cache = catalog.NewRedisCache(client, cfg.Redis.TTL)
	}

	gateway, err := botgateway.New(cfg.Gateway)
	if err != nil {
		logger.Error("failed to create bot gateway", "error", err)
		os.Exit(1)
	}

	var events publisher
	if len(cfg.Kafka.Brokers) > 0 {
		events = messaging.NewProducer(cfg.Kafka.Brokers)
		logger.Info("publishing events to kafka", "brokers", cfg.Kafka.Brokers)
	} else {
		notify := notifier.NewHandler(gateway, metrics, cfg.Storage.PublicURL, logger)
		events = messaging.NewInlinePublisher(notify.Handle, logger)
		logger.Info("kafka disabled, notifying inline")
	}
	defer func() { _ = events.Close() }()

	catalogService := catalog.NewService(db, cache, logger)
	orderService := orders.NewService(db, events, metrics, logger, orders.Options{
		Currency:     cfg.Payments.Currency,
		MaxDownloads: cfg.Payments.MaxDownloads,
		Templates:    catalogService,
	})
	paymentService := payments.NewService(db, events, metrics, logger, cfg.Payments.Mode)

	mux := server.NewMux(server.Deps{
		DB:       db,
		Auth:     auth.NewAuthenticator(cfg.Auth.JWTSecret, logger),
		Catalog:  catalog.NewHandler(catalogService, logger),
		Reviews:  reviews.NewHandler(reviews.NewRepository(db), catalogService, logger),
		Demo:     demo.NewHandler(catalogService, gateway, metrics, cfg.Gateway.Timeout, logger),
		Orders:   orders.NewHandler(orderService, cfg.Storage.TemplatesDir, logger),
		Payments: payments.NewHandler(paymentService, logger),
		Webhooks: payments.NewWebhookHandler(paymentService, cfg.Payments.WebhookSecret, logger),
		Metrics:  metricsHandler,
		Logger:   logger,
	})

	port := cfg.HTTP.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting marketplace service", "port", port, "payments_mode", cfg.Payments.Mode, "gateway_mode", cfg.Gateway.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
