// Command fusion-engine runs the tactical fusion service: threat
// correlation, blue-force proximity monitoring, deployment optimization
// and situation assessment, served over HTTP JSON and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisstack/aegis-fusion/internal/api"
	"github.com/aegisstack/aegis-fusion/internal/broadcast"
	"github.com/aegisstack/aegis-fusion/internal/cache"
	"github.com/aegisstack/aegis-fusion/internal/config"
	"github.com/aegisstack/aegis-fusion/internal/engine"
	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/ingest"
	"github.com/aegisstack/aegis-fusion/internal/metrics"
	"github.com/aegisstack/aegis-fusion/internal/models"
	"github.com/aegisstack/aegis-fusion/internal/patterns"
	"github.com/aegisstack/aegis-fusion/internal/repo"
	"github.com/aegisstack/aegis-fusion/internal/services"
	"github.com/aegisstack/aegis-fusion/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fusion-engine:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config (default $AEGIS_FUSION_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := utils.NewLogger("aegis-fusion", cfg.Logging.Level, cfg.Logging.JSON)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := repo.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MaxIdle, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)

	var cacheProvider cache.Provider = cache.NewNoopProvider()
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisProvider(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		cacheProvider = redisCache
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}
	defer cacheProvider.Close()

	var analyzer services.Analyzer
	if cfg.Analyzer.BaseURL != "" {
		analyzer = repo.NewAnalyzer(cfg.Analyzer.BaseURL, cfg.Analyzer.ImagePath, cfg.Analyzer.TextPath,
			cfg.Analyzer.Timeout, cacheProvider, cfg.Redis.AnalysisTTL, logger)
	} else {
		analyzer = unavailableAnalyzer{}
		logger.Warn("analyzer disabled, no base URL configured")
	}

	recommender := engine.NewRecommender(logger)
	if cfg.Rules.Path != "" {
		if err := recommender.LoadRules(cfg.Rules.Path); err != nil {
			logger.Warn("using built-in recommendation rules", "error", err)
		}
	}

	hub := broadcast.NewHub(logger)
	go hub.Run(ctx)

	svc := services.NewTacticalService(services.Deps{
		Store:     store,
		Analyzer:  analyzer,
		Pipeline:  engine.NewPipeline(engine.NewCorrelator(logger), engine.NewAssessor(logger), recommender, logger),
		Monitor:   engine.NewProximityMonitor(logger),
		Optimizer: engine.NewDeploymentOptimizer(logger),
		Miner:     patterns.NewMiner(logger),
		Predictor: patterns.NewPredictor(logger),
		Sink:      hub,
		Cache:     cacheProvider,
		Metrics:   m,
		Fusion:    cfg.Fusion,
		CacheTTL:  cfg.Redis.PictureTTL,
		Logger:    logger,
	})

	if cfg.MQTT.Enabled {
		consumer := ingest.NewConsumer(cfg.MQTT, svc, logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddress,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.Server.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, svc, hub, m, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}
	return nil
}

// unavailableAnalyzer rejects analysis requests when no backend is
// configured.
type unavailableAnalyzer struct{}

var errAnalyzerDisabled = errors.New("analyzer backend not configured")

func (unavailableAnalyzer) AnalyzeImage(context.Context, []byte, *geo.Point) ([]models.ThreatDetection, error) {
	return nil, errAnalyzerDisabled
}

func (unavailableAnalyzer) AnalyzeText(context.Context, string, *geo.Point) ([]models.ThreatDetection, error) {
	return nil, errAnalyzerDisabled
}
