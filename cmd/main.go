// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/auth"
	"github.com/Shivanand-hulikatti/conference-registration/internal/config"
	"github.com/Shivanand-hulikatti/conference-registration/internal/database"
	"github.com/Shivanand-hulikatti/conference-registration/internal/gateway"
	"github.com/Shivanand-hulikatti/conference-registration/internal/handler"
	"github.com/Shivanand-hulikatti/conference-registration/internal/logging"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
	"github.com/Shivanand-hulikatti/conference-registration/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Lifecycle publisher ────────────────────────────────────────────
	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQP.URL != "" {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		log.Info("publishing lifecycle events", zap.String("exchange", cfg.AMQP.Exchange))
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	gw := gateway.NewSimulated(gateway.SimulatedConfig{DeclineAbove: cfg.Payment.DeclineAbove})
	capacity := service.NewCapacityTracker(store, log)
	eventHandler := handler.NewEventHandler(
		service.NewEventCatalog(store, log),
		service.NewLedger(store, capacity, publisher, log),
		service.NewPaymentProcessor(store, gw, cfg.Payment.Currency, publisher, log),
		log,
	)
	router := handler.NewRouter(eventHandler, auth.NewTokens(cfg.Auth.JWTSecret), store, log)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// openStore connects the configured backend and returns it with its
// close function.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("opened sqlite database", zap.String("path", cfg.SQLite.Path))
		return repository.NewSQLiteStore(db), func() { _ = db.Close() }, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
		return repository.NewPostgresStore(pool), pool.Close, nil
	}
}
