package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cryptoalert/internal/alerts"
	"cryptoalert/internal/config"
	"cryptoalert/internal/coingecko"
	"cryptoalert/internal/database"
	"cryptoalert/internal/feed"
	"cryptoalert/internal/logger"
	"cryptoalert/internal/monitor"
	"cryptoalert/internal/notify"
	"cryptoalert/internal/tracing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	interval := flag.Int("interval", 0, "Poll interval in seconds (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (overrides config)")
	once := flag.Bool("once", false, "Run a single poll cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := tracing.InitTracer(ctx, cfg.App.Name, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logg.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logg.Error("Failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	db, err := database.Open(cfg.Database.Path, logg)
	if err != nil {
		logg.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	client := coingecko.New(cfg.API.CoinGecko, logg)
	dispatcher := notify.New(cfg.Notifications, db, logg)

	var publisher monitor.AlertPublisher
	if cfg.Feed.RedisAddr != "" {
		p, err := feed.New(cfg.Feed.RedisAddr, logg)
		if err != nil {
			logg.Warn("Alert feed unavailable, continuing without it", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
		}
	}

	mon := monitor.New(db, client, alerts.NewEngine(logg), dispatcher, publisher, monitor.Config{
		Recipient: cfg.Notifications.Recipient,
		Channels:  cfg.Notifications.EnabledChannels(),
	}, logg)

	if addr := pick(*metricsAddr, cfg.Telemetry.MetricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logg.Info("Metrics listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logg.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	pollInterval := time.Duration(cfg.App.PollIntervalSeconds) * time.Second
	if *interval > 0 {
		pollInterval = time.Duration(*interval) * time.Second
	}

	logg.Info("Monitor starting",
		zap.Duration("poll_interval", pollInterval),
		zap.String("database", cfg.Database.Path),
	)

	if err := mon.RunCycle(ctx); err != nil {
		logg.Error("Poll cycle failed", zap.Error(err))
	}
	if *once {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logg.Info("Monitor shutting down")
			return
		case <-ticker.C:
			if err := mon.RunCycle(ctx); err != nil {
				logg.Error("Poll cycle failed", zap.Error(err))
			}
		case <-cleanupTicker.C:
			if _, err := db.CleanupOldPriceData(ctx, cfg.Database.RetentionDays); err != nil {
				logg.Error("Retention cleanup failed", zap.Error(err))
			}
		}
	}
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
