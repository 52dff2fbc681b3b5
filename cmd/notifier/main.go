package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/config"
	"github.com/joao-fontenele/botmarket/internal/messaging"
	"github.com/joao-fontenele/botmarket/internal/notifier"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("kafka.brokers (KAFKA_BROKERS) is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "notifier", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	_, shutdownMeter, err := telemetry.InitMeterProvider("notifier", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.Meter("notifier"))
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	gateway, err := botgateway.New(cfg.Gateway)
	if err != nil {
		logger.Error("failed to create bot gateway", "error", err)
		os.Exit(1)
	}

	consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, notifier.Topics)
	defer func() { _ = consumer.Close() }()

	handler := notifier.NewHandler(gateway, metrics, cfg.Storage.PublicURL, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notifier", "brokers", cfg.Kafka.Brokers, "topics", notifier.Topics, "group_id", cfg.Kafka.GroupID)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
