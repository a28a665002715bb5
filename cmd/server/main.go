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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/api"
	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/content"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/middleware"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
	"github.com/jobdeck/adengine/internal/pricing"
	"github.com/jobdeck/adengine/internal/recorder"
	"github.com/jobdeck/adengine/internal/selector"
	"github.com/jobdeck/adengine/internal/targeting"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store := models.NewInMemoryCampaignStore()
	if err := db.LoadAll(pg, store); err != nil {
		return fmt.Errorf("load campaign data: %w", err)
	}

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, analytics.PoolConfig{
		MaxOpenConns:    cfg.CHMaxOpenConns,
		MaxIdleConns:    cfg.CHMaxIdleConns,
		ConnMaxLifetime: cfg.CHConnMaxLifetime,
		ConnMaxIdleTime: cfg.CHConnMaxIdleTime,
	}, metricsRegistry)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	geo, err := targeting.OpenGeoDB(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geo database unavailable, geo enrichment disabled", zap.Error(err))
		geo = nil
	} else {
		defer geo.Close()
	}

	budgets := ledger.NewRedisLedger(redisStore.Client)
	rates := pricing.New(pricing.DefaultRateTable())
	lm := lifecycle.NewManager(store, budgets, rates, pg, metricsRegistry, logger)

	sel := selector.New(store, budgets, lm, metricsRegistry, logger)
	sel.SetLimits(cfg.SelectDefaultLimit, cfg.SelectMaxLimit)
	if cfg.ContentCheckOnServe {
		sel.SetContentChecker(content.NewHTTPChecker(cfg.ContentServiceURL, cfg.ContentTimeout, cfg.ContentCacheTTL, logger, metricsRegistry))
	}

	rec := recorder.New(store, budgets, rates, analyticsSvc, redisStore, lm, metricsRegistry, logger)
	rec.SetDedupWindow(cfg.DedupWindow)
	dispatcher := recorder.NewDispatcher(rec, cfg.BillingWorkers, cfg.BillingQueueSize, metricsRegistry, logger)
	defer dispatcher.Close()

	srvDeps := api.NewServer(logger, cfg)
	srvDeps.Store = store
	srvDeps.PG = pg
	srvDeps.Redis = redisStore
	srvDeps.Ledger = budgets
	srvDeps.Pricing = rates
	srvDeps.Lifecycle = lm
	srvDeps.Selector = sel
	srvDeps.Recorder = rec
	srvDeps.Dispatcher = dispatcher
	srvDeps.Aggregator = analytics.NewAggregator(analyticsSvc, budgets, store)
	srvDeps.Resolver = &targeting.Resolver{Geo: geo}
	srvDeps.Metrics = metricsRegistry

	// Campaigns already active when the process starts keep their balances;
	// Init only seeds missing ledger entries.
	for _, c := range store.GetAllCampaigns() {
		if c.Status == models.StatusActive {
			if err := budgets.Init(ctx, c.ID, c.BudgetTotal); err != nil {
				return fmt.Errorf("seed ledger for campaign %d: %w", c.ID, err)
			}
		}
	}

	r := srvDeps.Routes()
	r.Use(middleware.WithTraceLogger(logger))
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "adengine"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad engine running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	// Sweep for campaigns that ran out of window or budget while idle.
	if cfg.ReconcileInterval > 0 {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := lm.Reconcile(ctx); err != nil {
						logger.Error("reconcile sweep", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
