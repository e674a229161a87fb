package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"supplier-catalog-service/internal/api"
	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/catalog"
	"supplier-catalog-service/internal/config"
	"supplier-catalog-service/internal/extract"
	"supplier-catalog-service/internal/metrics"
	"supplier-catalog-service/internal/scheduler"
	"supplier-catalog-service/internal/store"
	"supplier-catalog-service/internal/supplier"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Info("no .env file loaded, relying on system environment", slog.String("path", *envFile))
	}

	// --- Configuration Loading ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("starting service", slog.String("app_env", cfg.AppEnv), slog.String("log_level", cfg.LogLevel))

	rules := extract.Default()
	if cfg.ExtractRulesFile != "" {
		if rules, err = extract.LoadFile(cfg.ExtractRulesFile); err != nil {
			logger.Error("failed to load extractor rules", slog.String("path", cfg.ExtractRulesFile), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("extractor rules loaded", slog.String("path", cfg.ExtractRulesFile), slog.Any("categories", rules.Categories()))
	}

	m := metrics.New()

	// --- Refresh History ---
	var (
		history store.RefreshHistoryStorer
		pgStore *store.PostgresStore
	)
	if cfg.Postgres.Enabled() {
		db, err := sql.Open("postgres", cfg.Postgres.DSN())
		if err != nil {
			logger.Error("failed to initialize database connection", slog.Any("error", err))
			os.Exit(1)
		}
		pgStore = store.NewPostgresStore(db)
		if err := pgStore.WaitReady(context.Background(), cfg.Postgres.ConnectAttempts, cfg.Postgres.ConnectRetryDelay); err != nil {
			logger.Error("failed to ping database", slog.Any("error", err))
			os.Exit(1)
		}
		history = pgStore
		logger.Info("refresh history stored in postgres", slog.String("host", cfg.Postgres.Host))
	} else {
		history = store.NewMemoryStore(store.DefaultMemoryCapacity)
		logger.Info("refresh history kept in memory", slog.Int("capacity", store.DefaultMemoryCapacity))
	}

	// --- Suppliers ---
	pricing := supplier.Pricing{TaxRate: cfg.Pricing.TaxRate, StockMoreIncrement: cfg.Pricing.StockMoreIncrement}
	sources, targets, dynamo := buildSuppliers(cfg, pricing, m, logger)
	if len(sources) == 0 {
		logger.Warn("no supplier configured, the catalog will be empty")
	}

	agg := catalog.NewAggregator(sources, rules, logger)

	schedOpts := scheduler.Options{
		Interval:          cfg.Scheduler.Interval,
		RefreshOnStart:    cfg.Scheduler.RefreshOnStart,
		EnrichmentTimeout: cfg.Scheduler.EnrichmentTimeout,
		History:           history,
		Observer:          m,
		Logger:            logger,
	}
	if cfg.Scheduler.EnrichmentEnabled && dynamo != nil {
		schedOpts.Enricher = dynamo
	}
	sched := scheduler.New(targets, schedOpts)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, m)
	httpRouter.Method(http.MethodGet, "/metrics", m.Handler())
	api.NewHTTPHandler(agg, sched, history, logger).RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("port", cfg.HttpServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, api.NewGRPCHandler(agg, sched, logger), m)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		logger.Error("failed to listen for gRPC", slog.String("port", cfg.GrpcServer.Port), slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("port", cfg.GrpcServer.Port))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server Serve error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("gRPC server has stopped")
	}()

	// --- Scheduler ---
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(schedCtx)
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(logger, httpServer, grpcServer, func() {
		stopScheduler()
		<-schedDone
		sched.Wait()
	}, pgStore, shutdownComplete)

	<-shutdownComplete
	logger.Info("service shutdown sequence finished")
}

// buildSuppliers creates a cache per configured supplier in lookup priority
// order. The Dynamo adapter is returned separately for image enrichment.
func buildSuppliers(cfg *config.Config, pricing supplier.Pricing, m *metrics.Metrics, logger *slog.Logger) ([]catalog.Source, []scheduler.Refresher, *supplier.Dynamo) {
	var (
		adapters []supplier.Adapter
		dynamo   *supplier.Dynamo
	)
	if cfg.Acme.Enabled() {
		adapters = append(adapters, supplier.NewAcme(supplier.AcmeConfig{
			BaseURL: cfg.Acme.BaseURL,
			APIKey:  cfg.Acme.APIKey,
			Timeout: cfg.Acme.Timeout,
		}, pricing, logger))
	}
	if cfg.Crest.Enabled() {
		adapters = append(adapters, supplier.NewCrest(supplier.CrestConfig{
			BaseURL: cfg.Crest.BaseURL,
			APIKey:  cfg.Crest.APIKey,
			Timeout: cfg.Crest.Timeout,
		}, pricing, logger))
	}
	if cfg.Dynamo.Enabled() {
		dynamo = supplier.NewDynamo(supplier.DynamoConfig{
			BaseURL:                cfg.Dynamo.BaseURL,
			APIKey:                 cfg.Dynamo.APIKey,
			AssetURL:               cfg.Dynamo.AssetURL,
			Timeout:                cfg.Dynamo.Timeout,
			LookupTTL:              cfg.Cache.LookupTTL,
			LookupFailureTTL:       cfg.Cache.FailureTTL,
			ImageRequestsPerSecond: cfg.Dynamo.RequestsPerSecond,
		}, pricing, nil, logger)
		adapters = append(adapters, dynamo)
	}

	sources := make([]catalog.Source, 0, len(adapters))
	targets := make([]scheduler.Refresher, 0, len(adapters))
	for _, a := range adapters {
		c := cache.NewSupplierCache(supplier.Observe(a, m), cfg.Cache.ProductTTL, cfg.Cache.FailureTTL, logger)
		sources = append(sources, c)
		targets = append(targets, c)
		logger.Info("supplier configured", slog.String("supplier", string(a.Supplier())))
	}
	return sources, targets, dynamo
}

func setupBaseMiddleware(router *chi.Mux, m *metrics.Metrics) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(m.Middleware)
	router.Use(middleware.Timeout(60 * time.Second))
}

func setupGRPCServer(logger *slog.Logger, handler *api.GRPCHandler, m *metrics.Metrics) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(m.UnaryServerInterceptor()))

	api.RegisterCatalogServiceServer(s, handler)
	logger.Info("gRPC service registered", slog.String("service", api.CatalogServiceName))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.CatalogServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	reflection.Register(s)
	return s
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	stopBackground func(),
	pgStore *store.PostgresStore,
	shutdownComplete chan struct{},
) {
	defer close(shutdownComplete)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	receivedSignal := <-sigChan
	logger.Info("received signal, starting graceful shutdown", slog.String("signal", receivedSignal.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server graceful shutdown timed out, forcing stop", slog.Any("error", shutdownCtx.Err()))
		grpcServer.Stop()
	}

	stopped := make(chan struct{})
	go func() {
		stopBackground()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("scheduler stopped")
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}

	if pgStore != nil {
		if err := pgStore.Close(); err != nil {
			logger.Warn("error closing database connection", slog.Any("error", err))
		}
	}
}
