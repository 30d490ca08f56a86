package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/pulse/pkg/aggregator"
	"github.com/platinummonkey/pulse/pkg/api"
	"github.com/platinummonkey/pulse/pkg/config"
	"github.com/platinummonkey/pulse/pkg/monitor"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/pipeline"
	"github.com/platinummonkey/pulse/pkg/ratelimit"
	"github.com/platinummonkey/pulse/pkg/stats"
	"github.com/platinummonkey/pulse/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	store, err := stats.New(cfg.Store, log, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize stats store: %v", err)
	}
	defer store.Close()
	log.WithField("mode", store.Mode()).Info("Stats store initialized")

	policy, err := config.LoadRateLimitPolicy(cfg.RateLimit.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to load rate limit policy: %v", err)
	}
	limitCfg := cfg.RateLimit.Default
	if entry, ok := policy.Categories["events"]; ok {
		limitCfg = entry.Config()
	}
	limiter, err := ratelimit.New(limitCfg)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	log.WithFields(logrus.Fields{
		"max_requests": limitCfg.MaxRequests,
		"window":       limitCfg.Window.String(),
		"categories":   len(policy.Categories),
	}).Info("Admission control configured")

	registry, err := users.NewRegistry(cfg.Users.DataFile, log)
	if err != nil {
		log.Fatalf("Failed to load user registry: %v", err)
	}
	history, err := users.NewConversationHistory()
	if err != nil {
		log.Fatalf("Failed to initialize conversation history: %v", err)
	}

	mon := monitor.New(log)
	sampler := monitor.NewSampler(log)
	agg := aggregator.New(store, mon, sampler, log, metrics)
	pipe := pipeline.New(limiter, store, mon, log, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background sliding-window pruning for idle actors.
	go limiter.StartCleanup(ctx)

	// Scheduled retention cleanup.
	var scheduler *cron.Cron
	if cfg.Cleanup.Schedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
			agg.RunCleanup(time.Now())
		}); err != nil {
			log.Fatalf("Failed to schedule cleanup: %v", err)
		}
		scheduler.Start()
		log.WithField("schedule", cfg.Cleanup.Schedule).Info("Retention cleanup scheduled")
	}

	adminServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewRouter(api.NewHandlers(agg, pipe, registry, history, log), log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(store.Client()))
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", adminServer.Addr).Info("Admin server listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		if scheduler != nil {
			<-scheduler.Stop().Done()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Admin server shutdown: %v", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Health server shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Info("Stopped")
}
