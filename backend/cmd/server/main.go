package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"silent-partners/backend/internal/adapter"
	"silent-partners/backend/internal/api"
	"silent-partners/backend/internal/extraction"
	"silent-partners/backend/internal/network"
	"silent-partners/backend/pkg/config"
	"silent-partners/backend/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}

	log.Info("Server exited")
}

// run serves the API until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	router, err := newRouter(cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	return g.Wait()
}

// newRouter builds the store, the extraction pipeline and the gin engine
func newRouter(cfg *config.Config, log *zap.Logger) (*gin.Engine, error) {
	pricing, err := extraction.LoadPricing(cfg.PricingFile)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}

	// Left nil without a key so the extraction routes answer 503
	var extractor api.Extractor
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is not set; extraction endpoints are disabled")
	} else {
		var fetchOpts []extraction.FetcherOption
		if cfg.FetchAllowPrivate {
			log.Warn("Source fetching may reach private and loopback addresses")
			fetchOpts = append(fetchOpts, extraction.WithPrivateNetworks())
		}
		llm := adapter.NewLLMAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ModelID)
		fetcher := extraction.NewFetcher(cfg.FetchTimeout, cfg.FetchConcurrency, fetchOpts...)
		extractor = extraction.NewExtractor(llm, fetcher, pricing)
	}

	store := network.NewStore()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.AllowsAnyOrigin() {
			log.Warn("CORS allows any origin in production; set CORS_ORIGINS to restrict it")
		}
	}

	server := api.NewServer(store, extractor, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		MaxBodySize: cfg.MaxBodySize,
	})

	log.Info("Initialized services",
		zap.String("model", cfg.ModelID),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.Int("fetch_concurrency", cfg.FetchConcurrency),
		zap.Bool("extraction_enabled", extractor != nil),
	)

	return server.Router(), nil
}
