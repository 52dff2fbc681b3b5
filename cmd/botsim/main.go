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

	"github.com/joao-fontenele/botmarket/internal/botsim"
	"github.com/joao-fontenele/botmarket/internal/config"
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

	handler := botsim.NewHandler(botsim.Options{
		MinDelay:     cfg.BotSim.MinDelay,
		MaxDelay:     cfg.BotSim.MaxDelay,
		FailureRate:  cfg.BotSim.FailureRate,
		DemoLifetime: cfg.Gateway.DemoLifetime,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /demos", handler.HandleCreateDemo)
	mux.HandleFunc("POST /invoices", handler.HandleSendInvoice)
	mux.HandleFunc("POST /messages", handler.HandleSendMessage)

	port := cfg.HTTP.Port
	if port == "" {
		port = "8084"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting bot simulator", "port", port, "failure_rate", cfg.BotSim.FailureRate)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
