package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/inbound/admin"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/agent"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/memory"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/redisq"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/adapter/outbound/sqlite"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/config"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/port/outbound"
	"github.com/NewbieTed/Quip-Bot-sub003/internal/service"
)

var (
	devMode     bool
	enableTrace bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart()
	},
}

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "run with in-memory queue and mirror (no Redis/sqlite)")
	startCmd.Flags().BoolVar(&enableTrace, "trace", false, "export OpenTelemetry traces to stdout")
	rootCmd.AddCommand(startCmd)
}

func runStart() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	logger.Info("starting toolsyncd",
		"queue_key", cfg.Consumer.QueueKey,
		"agent", cfg.Recovery.AgentBaseURL,
		"storage", cfg.Storage.Driver,
		"dev", devMode)

	shutdownTracing, err := setupTracing(enableTrace)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	// Outbound adapters.
	var queue outbound.Queue
	var mirror outbound.MirrorStore
	var closeMirror func() error

	if devMode {
		queue = memory.NewQueue()
		mirror = memory.NewMirrorStore()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		queue = redisq.New(rdb)

		switch cfg.Storage.Driver {
		case "memory":
			mirror = memory.NewMirrorStore()
		default:
			store, err := sqlite.Open(cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("open mirror store: %w", err)
			}
			mirror = store
			closeMirror = store.Close
		}
	}

	// Metrics and services.
	registry := prometheus.NewRegistry()
	prom := service.NewPromMetrics(registry)
	metrics := service.NewMetricsService(logger.With("component", "metrics"), prom)
	tracker := service.NewFailureTracker(
		cfg.Recovery.FailureThreshold,
		cfg.Recovery.InvalidThreshold,
		cfg.Recovery.InvalidWindow,
	)
	client := agent.New(agent.Options{
		BaseURL:      cfg.Recovery.AgentBaseURL,
		ResyncPath:   cfg.Recovery.ResyncPath,
		HTTPTimeout:  cfg.Recovery.HTTPTimeout,
		MaxRetries:   cfg.Recovery.MaxRetries,
		InitialDelay: cfg.Recovery.InitialDelay,
	}, logger.With("component", "resync_client"))
	reconciler := service.NewReconciler(mirror, logger.With("component", "reconciler"))
	recovery := service.NewRecoveryManager(
		queue, client, reconciler, metrics,
		cfg.Recovery.Enabled, cfg.Consumer.QueueKey,
		logger.With("component", "recovery"),
	)
	consumer := service.NewConsumer(
		queue, mirror, recovery, metrics, tracker,
		service.ConsumerOptions{
			Enabled:         cfg.Consumer.Enabled,
			QueueKey:        cfg.Consumer.QueueKey,
			PollTimeout:     cfg.Consumer.PollTimeout,
			MaxMessageAge:   cfg.Consumer.MaxMessageAge,
			StopGracePeriod: cfg.Consumer.StopGracePeriod,
		},
		logger.With("component", "consumer"),
	)
	adminSrv := admin.New(cfg.Admin.Addr, metrics, recovery, registry, logger.With("component", "admin"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer.Start()
	adminSrv.Start()
	go watchQueueDepth(ctx, queue, cfg.Consumer.QueueKey, prom, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown failed", "error", err)
	}
	if closeMirror != nil {
		if err := closeMirror(); err != nil {
			logger.Warn("mirror store close failed", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("trace provider shutdown failed", "error", err)
	}

	logger.Info("toolsyncd stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setupTracing installs a stdout trace exporter when enabled; otherwise the
// default noop provider stays in place. Returns a shutdown func.
func setupTracing(enabled bool) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// watchQueueDepth samples the pending queue length for the depth gauge.
func watchQueueDepth(ctx context.Context, queue outbound.Queue, key string, prom *service.PromMetrics, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := queue.Length(ctx, key)
			if err != nil {
				logger.Debug("failed to sample queue depth", "error", err)
				continue
			}
			prom.QueueDepth.Set(float64(n))
		case <-ctx.Done():
			return
		}
	}
}
