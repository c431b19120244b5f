package main

import (
	"chat-relay/auth"
	"chat-relay/gateway"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/transport/websocket"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal server error.
// Returning instead of exiting lets the deferred cleanups run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Services
	ledger := repositories.NewLedger(db, logger)
	locker := runtime.NewKeyedLocker()
	registry := runtime.NewRegistry()
	typing := services.NewTypingService(registry, config.TypingIdleTimeout, logger)
	defer typing.Close()

	g := gateway.New(gateway.Dependencies{
		Authenticator: services.NewAuthService(ledger, locker, logger),
		Tokens:        auth.NewTokenManager(config.AuthTokenSecret, config.AuthTokenDuration),
		Registry:      registry,
		Friends:       services.NewFriendService(ledger, locker, registry, logger),
		Messages:      services.NewMessageService(ledger, locker, registry, logger),
		Presence:      services.NewPresenceService(ledger, registry, logger),
		Typing:        typing,
		Locker:        locker,
	}, config.EventTimeout, logger)

	// 4. Transport
	handler := websocket.NewHandler(g, websocket.Options{
		BufferSize:      config.ConnectionBufferSize,
		DeliveryTimeout: config.DeliveryTimeout,
		ReadTimeout:     config.ReadTimeout,
		MaxFrameSize:    config.MaxFrameSize,
	}, logger)
	server := &http.Server{
		Addr:    config.Address(),
		Handler: websocket.NewRouter(handler, registry, logger),
	}
	// Hijacked websocket connections are ignored by Shutdown.
	server.RegisterOnShutdown(handler.CloseAll)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := workers.NewHTTPServerWorker(server, config.ShutdownTimeout, logger).Run(ctx); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	// 6. Background workers
	monitoring, err := workers.NewHealthMonitoringWorker(logger, registry, g.Sessions, config.MetricInterval)
	if err != nil {
		return exitRuntime, fmt.Errorf("health monitoring init failed: %w", err)
	}
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(monitoring)
	if address := config.GRPCHealthAddress(); address != "" {
		supervisor.Add(workers.NewGRPCHealthWorker(address, logger))
	}
	supervised := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervised)
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err, ok := <-errChan:
		supervisor.Stop()
		<-supervised
		if ok {
			return exitRuntime, err
		}
		return exitOK, nil
	}

	// 8. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	<-errChan
	supervisor.Stop()
	<-supervised
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if config.BadgerInMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
