// Command sentineld runs the vault monitoring daemon: the registry, its
// record store, the watchlist monitor, and the HTTP surface.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sentinel-labs/sentinel/pkg/agent"
	"github.com/sentinel-labs/sentinel/pkg/api"
	"github.com/sentinel-labs/sentinel/pkg/archive"
	"github.com/sentinel-labs/sentinel/pkg/authz"
	"github.com/sentinel-labs/sentinel/pkg/config"
	"github.com/sentinel-labs/sentinel/pkg/ledger"
	"github.com/sentinel-labs/sentinel/pkg/liveness"
	"github.com/sentinel-labs/sentinel/pkg/notify"
	"github.com/sentinel-labs/sentinel/pkg/observability"
	"github.com/sentinel-labs/sentinel/pkg/policy"
	"github.com/sentinel-labs/sentinel/pkg/store"
	"github.com/sentinel-labs/sentinel/pkg/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "sentinel",
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.OTELEnabled,
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	vaultStore, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	registry := vault.NewRegistry(vaultStore, authz.NewAgentSet(cfg.AgentID), nil)
	registry.SetAuditLedger(ledger.NewTransitionLedger())

	if cfg.ArchiveBackend != "" {
		blobs, err := archive.New(ctx, archive.Config{
			Backend:    archive.Backend(cfg.ArchiveBackend),
			Dir:        cfg.ArchivePath,
			S3Bucket:   cfg.ArchiveBucket,
			S3Region:   cfg.S3Region,
			S3Endpoint: cfg.S3Endpoint,
			S3Prefix:   cfg.ArchivePrefix,
			GCSBucket:  cfg.ArchiveBucket,
			GCSPrefix:  cfg.ArchivePrefix,
		})
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		sealKey, err := decodeSealKey(cfg.SealKeyHex)
		if err != nil {
			return err
		}
		registry.SetArchive(blobs, sealKey)
	}

	wl, err := config.LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	watch := agent.NewWatchlist(wl.Owners...)

	monitor := agent.NewMonitor(registry, watch, agent.MonitorConfig{
		AgentID:       cfg.AgentID,
		PollInterval:  cfg.PollInterval,
		CallTimeout:   cfg.CallTimeout,
		RatePerSecond: cfg.RatePerSec,
		WarningDust:   cfg.WarningDust,
	}, nil)
	monitor.SetLivenessChecker(liveness.ManualChecker{})
	monitor.SetKillSwitch(cfg.KillSwitch)

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.RedisAddr != "" {
		notifiers = append(notifiers,
			notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		monitor.SetPersister(agent.NewRedisPersister(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ""))
	}
	monitor.SetNotifier(notify.NewMulti(logger, notifiers...))
	monitor.SetMetrics(obs)

	if cfg.ResolutionPolicy != "" {
		p, err := policy.NewResolutionPolicy(cfg.ResolutionPolicy)
		if err != nil {
			return fmt.Errorf("resolution policy: %w", err)
		}
		monitor.SetResolutionPolicy(p)
	}

	server, err := api.NewServer(registry, watch, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	server.SetChecker(monitor)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("monitor: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		stop()
		logger.Error("component failed, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

// openStore builds the configured record store and returns its closer.
func openStore(cfg *config.Config) (store.VaultStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryVaultStore(), func() {}, nil
	case "sqlite", "":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		s, err := store.NewSQLiteVaultStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s, err := store.NewPostgresVaultStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

func decodeSealKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
