// Package config provides configuration loading, validation, and
// hot-reload for the sentineld governance daemon.
//
// Configuration file: /etc/sentineld/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Daemon listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - A valid new config replaces the daemon's stored copy only. The
//     running Sentinel, logger, storage, operator socket and metrics
//     server keep their startup settings, so thresholds, weights, log
//     level, paths and addresses change only on restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The daemon does NOT crash on invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (weights sum to ~1.0, thresholds monotonic).
//   - File paths must be non-empty (they are not checked for being absolute).
//   - Invalid config on startup: daemon refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/trajectory"
)

// Version, GitCommit, BuildTime are set at build time via -ldflags -X.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for sentineld. All
// fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1"; Validate rejects any other value.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this sentineld node in logs and checkpoints.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	// MasterKeyEnv is the name of the environment variable holding the
	// hex-encoded 32-byte master key. Never read from this file.
	MasterKeyEnv string `yaml:"master_key_env"`

	Trajectory    TrajectoryConfig    `yaml:"trajectory"`
	Intervention  InterventionConfig  `yaml:"intervention"`
	RateShaper    RateShaperConfig    `yaml:"rate_shaper"`
	Storage       StorageConfig       `yaml:"storage"`
	Operator      OperatorConfig      `yaml:"operator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TrajectoryConfig holds the Γ composite weights.
type TrajectoryConfig struct {
	WeightEntropy       float64 `yaml:"weight_entropy"`
	WeightVelocity      float64 `yaml:"weight_velocity"`
	WeightScope         float64 `yaml:"weight_scope"`
	WeightReversibility float64 `yaml:"weight_reversibility"`
	WeightHumanLatency  float64 `yaml:"weight_human_latency"`

	// SmoothingAlpha is the EWMA factor used for the dashboard-facing
	// smoothed Γ gauge. Range: (0.0, 1.0]. Default: 0.3.
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
}

func (t TrajectoryConfig) toWeights() trajectory.GammaWeights {
	return trajectory.GammaWeights{
		Entropy:       t.WeightEntropy,
		Velocity:      t.WeightVelocity,
		Scope:         t.WeightScope,
		Reversibility: t.WeightReversibility,
		HumanLatency:  t.WeightHumanLatency,
	}
}

// InterventionConfig holds the governance-level threshold ladder.
type InterventionConfig struct {
	ThresholdFriction     float64 `yaml:"threshold_friction"`
	ThresholdConfirmation float64 `yaml:"threshold_confirmation"`
	ThresholdRestriction  float64 `yaml:"threshold_restriction"`
	ThresholdSupervision  float64 `yaml:"threshold_supervision"`
	ThresholdSuspension   float64 `yaml:"threshold_suspension"`
	Hysteresis            float64 `yaml:"hysteresis"`
}

func (i InterventionConfig) toThresholds() intervention.GammaThresholds {
	return intervention.GammaThresholds{
		Friction:     i.ThresholdFriction,
		Confirmation: i.ThresholdConfirmation,
		Restriction:  i.ThresholdRestriction,
		Supervision:  i.ThresholdSupervision,
		Suspension:   i.ThresholdSuspension,
		Hysteresis:   i.Hysteresis,
	}
}

// RateShaperConfig holds the VDF rate-shaping parameters.
type RateShaperConfig struct {
	// TargetDelayMs is the rate shaper's initial calibration target.
	// Sentinel.RunRateLimited recalibrates the shaper to each decision's
	// DelayMs (0 at Observation). Default: 1000.
	TargetDelayMs uint64 `yaml:"target_delay_ms"`

	LowRiskDelayMs      uint64 `yaml:"low_risk_delay_ms"`
	MediumRiskDelayMs   uint64 `yaml:"medium_risk_delay_ms"`
	HighRiskDelayMs     uint64 `yaml:"high_risk_delay_ms"`
	IrreversibleDelayMs uint64 `yaml:"irreversible_delay_ms"`
}

// StorageConfig holds BoltDB checkpoint-store parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB checkpoint file.
	DBPath string `yaml:"db_path"`

	// CheckpointInterval is how often the flight recorder is exported
	// and its Merkle root anchored to the checkpoint store.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// RetentionDays is how long checkpoints are kept before pruning.
	RetentionDays int `yaml:"retention_days"`
}

// OperatorConfig holds the human-checkpoint Unix socket parameters.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path operators connect to
	// for status queries and checkpoint/confirmation commands.
	// Permissions: 0600. Default: /run/sentineld/operator.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active.
	Enabled bool `yaml:"enabled"`

	// CommandBudget is the token bucket capacity for rate-limiting
	// operator commands. Default: 20.
	CommandBudget int `yaml:"command_budget"`

	// CommandRefillPeriod is the token bucket's full-refill interval.
	CommandRefillPeriod time.Duration `yaml:"command_refill_period"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	LogFormat string `yaml:"log_format"`
}

// Defaults returns a Config populated with every reference constant.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		MasterKeyEnv:  "SENTINELD_MASTER_KEY",
		Trajectory: TrajectoryConfig{
			WeightEntropy:       0.15,
			WeightVelocity:      0.20,
			WeightScope:         0.20,
			WeightReversibility: 0.25,
			WeightHumanLatency:  0.20,
			SmoothingAlpha:      0.3,
		},
		Intervention: InterventionConfig{
			ThresholdFriction:     0.3,
			ThresholdConfirmation: 0.5,
			ThresholdRestriction:  0.7,
			ThresholdSupervision:  0.85,
			ThresholdSuspension:   0.95,
			Hysteresis:            0.1,
		},
		RateShaper: RateShaperConfig{
			TargetDelayMs:       1000,
			LowRiskDelayMs:      100,
			MediumRiskDelayMs:   1000,
			HighRiskDelayMs:     5000,
			IrreversibleDelayMs: 30000,
		},
		Storage: StorageConfig{
			DBPath:             DefaultDBPath,
			CheckpointInterval: 5 * time.Minute,
			RetentionDays:      30,
		},
		Operator: OperatorConfig{
			Enabled:             true,
			SocketPath:          "/run/sentineld/operator.sock",
			CommandBudget:       20,
			CommandRefillPeriod: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9095",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// DefaultDBPath is the checkpoint store's default location.
const DefaultDBPath = "/var/lib/sentineld/sentineld.db"

// Load reads and validates a config file from the given path. Returns
// the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// GammaWeights converts the loaded trajectory section into the type
// the trajectory package consumes.
func (c *Config) GammaWeights() trajectory.GammaWeights {
	return c.Trajectory.toWeights()
}

// GammaThresholds converts the loaded intervention section into the
// type the intervention package consumes.
func (c *Config) GammaThresholds() intervention.GammaThresholds {
	return c.Intervention.toThresholds()
}

// Validate checks all config fields for correctness, returning a
// descriptive error listing every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.MasterKeyEnv == "" {
		errs = append(errs, "master_key_env must not be empty")
	}

	w := cfg.Trajectory
	sum := w.WeightEntropy + w.WeightVelocity + w.WeightScope + w.WeightReversibility + w.WeightHumanLatency
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Sprintf("trajectory weights must sum to 1.0, got %f", sum))
	}
	if w.SmoothingAlpha <= 0.0 || w.SmoothingAlpha > 1.0 {
		errs = append(errs, fmt.Sprintf("trajectory.smoothing_alpha must be in (0.0, 1.0], got %f", w.SmoothingAlpha))
	}

	iv := cfg.Intervention
	if !(0 <= iv.ThresholdFriction && iv.ThresholdFriction < iv.ThresholdConfirmation &&
		iv.ThresholdConfirmation < iv.ThresholdRestriction &&
		iv.ThresholdRestriction < iv.ThresholdSupervision &&
		iv.ThresholdSupervision < iv.ThresholdSuspension && iv.ThresholdSuspension <= 1.0) {
		errs = append(errs, "intervention thresholds must be strictly increasing within [0, 1]")
	}
	if iv.Hysteresis < 0 || iv.Hysteresis > 1 {
		errs = append(errs, fmt.Sprintf("intervention.hysteresis must be in [0, 1], got %f", iv.Hysteresis))
	}

	if cfg.RateShaper.TargetDelayMs == 0 {
		errs = append(errs, "rate_shaper.target_delay_ms must be >= 1")
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	if cfg.Storage.CheckpointInterval < time.Second {
		errs = append(errs, fmt.Sprintf("storage.checkpoint_interval must be >= 1s, got %s", cfg.Storage.CheckpointInterval))
	}

	if cfg.Operator.Enabled {
		if cfg.Operator.SocketPath == "" {
			errs = append(errs, "operator.socket_path must not be empty when operator.enabled=true")
		}
		if cfg.Operator.CommandBudget < 1 {
			errs = append(errs, fmt.Sprintf("operator.command_budget must be >= 1, got %d", cfg.Operator.CommandBudget))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
