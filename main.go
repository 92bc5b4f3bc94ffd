package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/cache"
	"github.com/scoutlabs/researcher/internal/config"
	"github.com/scoutlabs/researcher/internal/discovery"
	"github.com/scoutlabs/researcher/internal/engine"
	"github.com/scoutlabs/researcher/internal/evidence"
	"github.com/scoutlabs/researcher/internal/httpapi"
	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/quality"
	"github.com/scoutlabs/researcher/internal/strategy"
	"github.com/scoutlabs/researcher/internal/streaming"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, closeCache := buildCache(cfg, logger)
	defer closeCache()

	llm := providers.NewLLMHTTP(cfg.Providers.LLM, store, cfg.Cache.LLMTTL, logger)
	search := providers.NewCachedSearch(
		providers.NewSerper(cfg.Providers.Search, logger),
		store, cfg.Cache.SearchTTL, logger,
	)
	fetcher := providers.NewPageHTTP(cfg.Providers.Fetch, logger)

	stream := streaming.NewManager(cfg.Research.EventCapacity, logger)
	eng := engine.New(
		cfg,
		strategy.NewGenerator(llm, logger),
		discovery.NewDiscoverer(search, logger),
		evidence.NewCollector(search, fetcher, llm, store, cfg.Cache.CompanyTTL, logger),
		quality.NewEvaluator(logger),
		stream,
		logger,
	)

	mux := http.NewServeMux()
	httpapi.NewHandler(eng, stream, logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("research service listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// buildCache selects the cache backend. Redis failures fall back to the
// in-process cache so the service still starts.
func buildCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, func()) {
	if cfg.Cache.Backend == "redis" {
		r, err := cache.NewRedis(cfg.Cache.RedisAddr, logger)
		if err == nil {
			logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
			return r, func() { r.Close() }
		}
		logger.Warn("redis unavailable, falling back to in-memory cache",
			zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
	}
	m := cache.NewMemory()
	return m, m.Close
}
