package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/cors"

	"CapIot.quakeboard/internal/config"
	"CapIot.quakeboard/internal/controller"
	"CapIot.quakeboard/internal/ingest"
	"CapIot.quakeboard/internal/logging"
	"CapIot.quakeboard/internal/routes"
	"CapIot.quakeboard/internal/service"
	"CapIot.quakeboard/internal/stream"
	"CapIot.quakeboard/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize session, viewer hub, and controller
	session := service.NewSession(nil,
		service.WithCapacity(cfg.BufferCapacity),
		service.WithQueueSize(cfg.QueueSize),
		service.WithLogger(logger),
	)
	hub := stream.NewHub(session, logger, stream.WithAllowedOrigins(cfg.AllowedOrigins))
	session.SetDisplay(hub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()

	sources, cleanup := buildSources(cfg, logger)
	defer cleanup()
	for _, src := range sources {
		wg.Add(1)
		go func(src ingest.Source) {
			defer wg.Done()
			logger.Info("starting telemetry source", "source", src.Name())
			if err := src.Run(ctx, session); err != nil {
				logger.Error("telemetry source stopped", "source", src.Name(), "error", err)
				return
			}
			logger.Info("telemetry source finished", "source", src.Name())
		}(src)
	}

	router := routes.NewRouter(controller.NewTelemetryController(session, logger), hub, web.Handler())

	// CORS setup
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server is running", "addr", srv.Addr, "sources", len(sources))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("error starting server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	wg.Wait()
}
