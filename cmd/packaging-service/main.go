package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drims/drims-backend/internal/packaging/client"
	"github.com/drims/drims-backend/internal/packaging/consumers"
	"github.com/drims/drims-backend/internal/packaging/events"
	"github.com/drims/drims-backend/internal/packaging/handler"
	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/internal/packaging/service"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("packaging-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("packaging-service", cfg.Server.Environment)
	log.Info().Msg("starting Packaging Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPackagingEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	packageRepo := repository.NewPackageRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	lockRepo := repository.NewLockRepository(db)

	// Inventory query service client
	inventoryClient := client.NewInventoryClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout, log)

	// Initialize service
	packagingService := service.NewPackagingService(
		packageRepo, allocationRepo, reservationRepo, lockRepo,
		inventoryClient, publisher, cfg.Packaging, log,
	)

	// Initialize handlers
	packagingHandler := handler.NewPackagingHandler(packagingService, log)

	// Start inventory event consumer
	inventoryConsumer, err := consumers.NewInventoryEventConsumer(rmq, allocationRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inventory event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := inventoryConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start inventory event consumer")
	}

	// Start expired lock janitor
	janitor := service.NewLockJanitor(packagingService, 5*time.Minute, log)
	janitor.Start(ctx)
	defer janitor.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Actor)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "packaging-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/packaging", packagingHandler.Routes)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers and the janitor
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
