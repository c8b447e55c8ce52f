package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/checker"
	"osdbridge/app/internal/config"
	"osdbridge/app/internal/database"
	"osdbridge/app/internal/datasource"
	"osdbridge/app/internal/detector"
	"osdbridge/app/internal/handlers"
	"osdbridge/app/internal/logging"
	"osdbridge/app/internal/metrics"
	"osdbridge/app/internal/models"
	"osdbridge/app/internal/monitor"
	"osdbridge/app/internal/ratelimit"
	"osdbridge/app/internal/remote"
	"osdbridge/app/internal/retention"
	"osdbridge/app/internal/scheduler"
	"osdbridge/app/internal/uploader"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "osdbridge")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	settings := loadSettings(cfg.SettingsFile, config.DefaultSettings(), logger)

	store, err := database.Open(cfg.DBPath, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to open local store", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer store.Close()
	_ = store.InsertLog(database.LogLevelInfo, database.LogCategorySystem, "main", "service started", "")

	metrics.Init()
	health := monitor.NewHealth()

	client := remote.NewClient(cfg.RemoteAPIURL, cfg.RemoteAPIToken, cfg.RemoteTimeout, logger.Named("remote"))
	eventTypes := remote.NewEventTypeService(client, 10*time.Minute, logger.Named("remote"))
	defer eventTypes.Stop()

	probe := cfg.ProbeURL
	if probe == "" {
		probe = cfg.RemoteAPIURL
	}
	network := checker.New(probe, 5*time.Second, cfg.Metered, logger.Named("network"))

	det := detector.New(settings)
	garmin := datasource.NewGarmin(det, store, settings,
		datasource.Options{LogDataLocal: cfg.LogDataLocal}, health, logger.Named("garmin"))

	up := uploader.New(store, client, network, uploader.Options{
		Enabled:       cfg.LogDataRemote && cfg.RemoteAPIURL != "",
		AllowMetered:  cfg.LogDataRemoteMobile,
		EventDuration: cfg.EventDuration,
	}, health, logger.Named("uploader"))

	pruner := retention.New(store, retention.Options{
		AutoPrune: cfg.AutoPrune,
		Days:      cfg.RetentionDays,
		LogKeep:   cfg.LogKeepEntries,
	}, logger.Named("retention"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(ctx, logger)
	if _, err := sched.Every("upload", cfg.RemoteLogPeriod, func(ctx context.Context) { up.RunOnce(ctx) }); err != nil {
		logger.Fatal("schedule upload", zap.Error(err))
	}
	if _, err := sched.Every("retention", cfg.PrunePeriod, pruner.Run); err != nil {
		logger.Fatal("schedule retention", zap.Error(err))
	}

	if err := garmin.Start(ctx); err != nil {
		logger.Fatal("start data source", zap.Error(err))
	}
	sched.Start()

	// Prune once at startup so a long-stopped service does not wait an hour
	go pruner.Run(ctx)

	trusted, err := ratelimit.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring TRUSTED_PROXIES", zap.Error(err))
		trusted = nil
	}
	limiter := ratelimit.New(ratelimit.Config{TokensPerMinute: 120, TrustedProxies: trusted})
	defer limiter.Stop()

	handler := handlers.SetupRoutes(handlers.Deps{
		Watch:      garmin,
		Store:      store,
		Uploader:   up,
		EventTypes: eventTypes,
		Health:     health,
		Logger:     logger.Named("http"),
	}, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port),
			zap.Bool("remote_logging", cfg.LogDataRemote), zap.Bool("local_logging", cfg.LogDataLocal))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigs {
		if sig == syscall.SIGHUP {
			settings = loadSettings(cfg.SettingsFile, settings, logger)
			garmin.UpdatePrefs(settings)
			_ = store.InsertLog(database.LogLevelInfo, database.LogCategorySystem, "main", "settings reloaded", cfg.SettingsFile)
			continue
		}
		logger.Info("shutting down", zap.String("signal", sig.String()))
		break
	}
	signal.Stop(sigs)

	// Stop the timers first, then abandon any upload in progress.
	cancel()
	sched.Stop()
	garmin.Stop()
	up.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	_ = store.InsertLog(database.LogLevelInfo, database.LogCategorySystem, "main", "service stopped", "")
}

// loadSettings reads the detector settings, keeping lastGood on a read or
// parse error.
func loadSettings(path string, lastGood models.Settings, logger *zap.Logger) models.Settings {
	s, fixed, err := config.LoadSettings(path, lastGood)
	if err != nil {
		logger.Warn("settings file unusable, keeping previous settings", zap.String("path", path), zap.Error(err))
	}
	if len(fixed) > 0 {
		logger.Warn("settings out of range, defaults used", zap.Strings("fields", fixed))
	}
	return s
}
