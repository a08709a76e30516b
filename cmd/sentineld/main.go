// Package main — cmd/sentineld/main.go
//
// sentineld entrypoint: the governance daemon a host process talks to
// over its operator socket, and that an embedding agent runtime calls
// into directly via the internal/sentinel package.
//
// Startup sequence:
//  1. Load and validate config from /etc/sentineld/config.yaml.
//  2. Initialise structured logger (zap).
//  3. Read the master key from the configured environment variable.
//  4. Open BoltDB checkpoint storage.
//  5. Prune stale checkpoints.
//  6. Construct the Sentinel orchestrator.
//  7. Start Prometheus metrics server.
//  8. Start periodic checkpoint export goroutine.
//  9. Start operator Unix socket server (if enabled).
// 10. Register SIGHUP handler for config hot-reload.
// 11. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to all goroutines).
//  2. Wait a fixed 5s so in-flight operator connections can finish
//     (connections are not tracked; the wait is always the full 5s).
//  3. Write a final checkpoint.
//  4. Close BoltDB.
//  5. Flush logger.
//  6. Exit 0.
//
// On master key missing/malformed: exit 1 immediately.
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentineld/sentineld/contrib"
	"github.com/sentineld/sentineld/internal/config"
	"github.com/sentineld/sentineld/internal/observability"
	"github.com/sentineld/sentineld/internal/operator"
	"github.com/sentineld/sentineld/internal/sentinel"
	"github.com/sentineld/sentineld/internal/storage"
)

func main() {
	configPath := flag.String("config", "/etc/sentineld/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	measurementSource := flag.String("measurement-source", "fixed",
		"Context measurement source: one of contrib.ListMeasurementSources() (fixed, env-fingerprint, linux on Linux builds)")
	flag.Parse()

	if *version {
		fmt.Printf("sentineld %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("sentineld starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	// ── Step 3: Master key ────────────────────────────────────────────────────
	masterKey, err := loadMasterKey(cfg.MasterKeyEnv)
	if err != nil {
		log.Fatal("master key load failed", zap.Error(err), zap.String("env_var", cfg.MasterKeyEnv))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 4: Open BoltDB ───────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 5: Prune stale checkpoints ───────────────────────────────────────
	pruned, err := db.PruneOldCheckpoints()
	if err != nil {
		log.Warn("checkpoint pruning failed", zap.Error(err))
	} else {
		log.Info("checkpoints pruned", zap.Int("deleted", pruned))
	}

	// ── Step 6: Construct the Sentinel ────────────────────────────────────────
	measureSrc, err := contrib.GetMeasurementSource(*measurementSource)
	if err != nil {
		log.Fatal("measurement source selection failed", zap.Error(err),
			zap.String("requested", *measurementSource),
			zap.Strings("available", contrib.ListMeasurementSources()))
	}
	log.Info("measurement source selected", zap.String("name", *measurementSource))

	metrics := observability.NewMetrics()
	sen := sentinel.New(masterKey, sentinel.Config{
		GammaWeights:       cfg.GammaWeights(),
		GammaThresholds:    cfg.GammaThresholds(),
		RateShaperTargetMs: cfg.RateShaper.TargetDelayMs,
		SmoothingAlpha:     cfg.Trajectory.SmoothingAlpha,
	}, sentinel.WithLogger(log), sentinel.WithMetrics(metrics), sentinel.WithMeasurementSource(measureSrc))

	// ── Step 7: Prometheus metrics ────────────────────────────────────────────
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr, log); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 8: Periodic checkpoint export ────────────────────────────────────
	go runCheckpointer(ctx, sen, db, cfg.Storage.CheckpointInterval, cfg.NodeID, log)

	// ── Step 9: Operator socket ───────────────────────────────────────────────
	if cfg.Operator.Enabled {
		opSrv := operator.NewServer(cfg.Operator.SocketPath, sen, log,
			cfg.Operator.CommandBudget, cfg.Operator.CommandRefillPeriod)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator server error", zap.Error(err))
			}
		}()
		log.Info("operator socket listening", zap.String("path", cfg.Operator.SocketPath))
	} else {
		log.Info("operator socket disabled")
	}

	// ── Step 10: SIGHUP hot-reload ────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config reloaded and validated; running components keep their startup settings",
				zap.Float64("new_threshold_confirmation", newCfg.Intervention.ThresholdConfirmation))
			cfg = newCfg
		}
	}()

	// ── Step 11: Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	<-shutdownTimer.C

	if err := writeCheckpoint(sen, db, cfg.NodeID); err != nil {
		log.Warn("final checkpoint failed", zap.Error(err))
	}

	log.Info("sentineld shutdown complete")
}

// checkpointSentinel is the narrow view runCheckpointer needs.
type checkpointSentinel interface {
	ExportJSON() ([]byte, error)
	MerkleRoot() ([]byte, error)
	EntryCount() int
}

// runCheckpointer periodically exports the flight recorder and anchors
// its Merkle root to the checkpoint store.
func runCheckpointer(ctx context.Context, sen checkpointSentinel, db *storage.DB, interval time.Duration, nodeID string, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeCheckpoint(sen, db, nodeID); err != nil {
				log.Error("periodic checkpoint failed", zap.Error(err))
				continue
			}
			log.Debug("checkpoint written")
		}
	}
}

func writeCheckpoint(sen checkpointSentinel, db *storage.DB, nodeID string) error {
	exported, err := sen.ExportJSON()
	if err != nil {
		return fmt.Errorf("export flight recorder: %w", err)
	}
	root, err := sen.MerkleRoot()
	if err != nil {
		return fmt.Errorf("compute merkle root: %w", err)
	}
	return db.PutCheckpoint(storage.Checkpoint{
		Timestamp:  time.Now().UTC(),
		EntryCount: sen.EntryCount(),
		MerkleRoot: hex.EncodeToString(root),
		ExportJSON: exported,
		NodeID:     nodeID,
	})
}

// loadMasterKey reads a hex-encoded 32-byte master key from the named
// environment variable.
func loadMasterKey(envVar string) ([]byte, error) {
	hexKey := os.Getenv(envVar)
	if hexKey == "" {
		return nil, fmt.Errorf("%s is unset or empty", envVar)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", envVar, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", envVar, len(key))
	}
	return key, nil
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
