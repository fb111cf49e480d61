package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"telecare/auth"
	"telecare/domain/event"
	"telecare/internal"
	"telecare/moderation"
	"telecare/runtime"
	"telecare/runtime/workers"
	"telecare/services"
	"telecare/storage"
	"telecare/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation filter
	words, err := moderation.LoadWords(config.CensoredWordsPath)
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	filter, err := moderation.NewFilter(words, replacement)
	if err != nil {
		return fmt.Errorf("building moderation filter failed: %w", err)
	}

	// 4. Runtime components
	telemetryChan := make(chan event.Event, config.TelemetryBufferSize)
	registry := runtime.NewRegistry(log, config.PresenceGracePeriod)
	store := storage.NewConversationRepository(db, log, config.HistoryPageSize)
	router := runtime.NewRouter(log, store, registry, filter)
	fanout := runtime.NewFanout(log, registry)
	relay := runtime.NewRelay(log, registry, config.CallIdleTimeout)
	registry.AddPresenceListener(relay)

	service := services.NewCoordinatorService(log, registry, router, fanout, relay)
	verifier := auth.NewVerifier(config.AuthSecret)

	// 5. Supervision
	handlers := []event.Handler{
		event.NewWorkerRestartedHandler(log),
		event.NewSinkSaturatedHandler(log),
		event.NewProcessStatsHandler(log, config.RamThresholdBytes),
	}
	sup := workers.NewSupervisor(log, config.RestartInterval, telemetryChan)
	sup.Add(
		workers.NewTelemetryWorker(log, telemetryChan, handlers),
		workers.NewProcessStatsWorker(log, telemetryChan, config.MetricInterval, registry, relay),
		workers.NewRoomSweeperWorker(log, relay, config.CallSweepInterval),
	)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 7. HTTP Server Setup
	mux := http.NewServeMux()
	server := transport.NewServer(log, service, verifier, telemetryChan,
		config.ConnectionBufferSize, config.SinkTimeout, config.MaxPayloadBytes)
	server.Routes(mux)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting coordinator", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
