// Package sentinel composes the Context Evaluator, Trajectory
// Monitor, Intervention Controller, Rate Shaper and Flight Recorder
// into the single governance primitive an agent runtime embeds: one
// call to evaluate a proposed action, one to record that it ran, and
// one to mark that a human has reviewed the trajectory so far.
package sentinel

import (
	"go.uber.org/zap"

	"github.com/sentineld/sentineld/internal/contextbind"
	"github.com/sentineld/sentineld/internal/flightrecorder"
	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/observability"
	"github.com/sentineld/sentineld/internal/rateshaper"
	"github.com/sentineld/sentineld/internal/trajectory"
)

// Config bundles the tunables a deployment sets at startup. Weights
// and thresholds left at their zero value fall back to the package
// defaults.
type Config struct {
	GammaWeights       trajectory.GammaWeights
	GammaThresholds    intervention.GammaThresholds
	RateShaperTargetMs uint64
	SmoothingAlpha     float64
}

// DefaultConfig returns the reference constants for every tunable.
func DefaultConfig() Config {
	return Config{
		GammaWeights:       trajectory.DefaultGammaWeights(),
		GammaThresholds:    intervention.DefaultGammaThresholds(),
		RateShaperTargetMs: 1000,
		SmoothingAlpha:     0.3,
	}
}

// Sentinel is the orchestrator. A single instance should own exactly
// one agent's governance state; callers that supervise many agents run
// one Sentinel per agent.
type Sentinel struct {
	masterKey []byte

	contextEvaluator *contextbind.Evaluator
	monitor          *trajectory.Monitor
	controller       *intervention.Controller
	rateShaper       *rateshaper.RateShaper
	recorder         *flightrecorder.Recorder

	logger  *zap.Logger
	metrics *observability.Metrics
	smooth  *observability.SmoothedGamma
}

// Option configures optional Sentinel collaborators.
type Option func(*Sentinel)

// WithLogger attaches a zap logger. Without one, Sentinel logs
// nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sentinel) { s.logger = logger }
}

// WithMetrics attaches a Prometheus metrics sink. Without one, metrics
// calls are no-ops.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sentinel) { s.metrics = m }
}

// WithMeasurementSource overrides the default fixed measurement
// source used to fingerprint the execution environment.
func WithMeasurementSource(src contextbind.MeasurementSource) Option {
	return func(s *Sentinel) {
		s.contextEvaluator = contextbind.NewEvaluator(s.masterKey, src, nil)
	}
}

// New constructs a Sentinel bound to masterKey, the root secret every
// capability key is derived from.
func New(masterKey []byte, cfg Config, opts ...Option) *Sentinel {
	if cfg.GammaWeights == (trajectory.GammaWeights{}) {
		cfg.GammaWeights = trajectory.DefaultGammaWeights()
	}
	if cfg.GammaThresholds == (intervention.GammaThresholds{}) {
		cfg.GammaThresholds = intervention.DefaultGammaThresholds()
	}
	s := &Sentinel{
		masterKey:        masterKey,
		contextEvaluator: contextbind.NewEvaluator(masterKey, nil, nil),
		monitor:          trajectory.NewMonitor(cfg.GammaWeights, nil),
		controller:       intervention.NewControllerWithThresholds(cfg.GammaThresholds, nil),
		rateShaper:       rateshaper.New(cfg.RateShaperTargetMs),
		recorder:         flightrecorder.New(nil),
		smooth:           observability.NewSmoothedGamma(clampAlpha(cfg.SmoothingAlpha)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clampAlpha(a float64) float64 {
	if a <= 0 || a > 1 {
		return 0.3
	}
	return a
}

// EvaluateAction runs one action through the full decision pipeline:
// it is logged, the current trajectory is reduced to Γ, and the
// intervention controller decides whether to let it through, delay
// it, require confirmation, or block it outright.
//
// This mirrors the reference orchestrator's fixed step order exactly:
// log the action, compute Γ, log Γ, decide, log the decision. Callers
// must not reorder these around their own side effects.
func (s *Sentinel) EvaluateAction(action string) (intervention.Decision, error) {
	s.recorder.LogAction(action)

	score := s.monitor.ComputeGamma()
	if err := validateGamma(score); err != nil {
		s.logWarn("gamma validation failed", zap.String("action", action), zap.Error(err))
		return intervention.Decision{}, err
	}

	s.recorder.LogGamma(score.Composite)
	s.metrics.ObserveGamma(score.Composite)
	s.metrics.ObserveSmoothedGamma(s.smooth.Update(score.Composite))

	decision := s.controller.Decide(score.Composite)
	s.recorder.LogIntervention(decision)
	s.metrics.RecordDecision(decision.Level.String())
	s.metrics.ObserveDelay(float64(decision.DelayMs))
	s.metrics.SetChainLength(s.recorder.Len())

	s.logDebug("action evaluated",
		zap.String("action", action),
		zap.Float64("gamma", score.Composite),
		zap.String("level", decision.Level.String()),
		zap.Uint64("delay_ms", decision.DelayMs),
	)

	return decision, nil
}

// RecordExecution folds an action that actually ran into the
// trajectory window. It intentionally does not write a flight
// recorder entry — callers that want an audit trail for the execution
// itself call LogExecution explicitly, since not every evaluated
// action is ultimately executed.
func (s *Sentinel) RecordExecution(action string, reversible bool) {
	s.monitor.RecordAction(action, reversible)
}

// LogExecution appends an audit entry recording whether action
// succeeded.
func (s *Sentinel) LogExecution(action string, success bool) {
	s.recorder.LogExecution(action, success)
	s.metrics.SetChainLength(s.recorder.Len())
}

// HumanCheckpoint marks that a human has reviewed the trajectory so
// far, resetting the human-latency component of Γ and appending an
// audit entry.
func (s *Sentinel) HumanCheckpoint(note string) {
	s.monitor.HumanCheckpoint()
	s.recorder.LogHumanCheckpoint(note)
	s.metrics.SetChainLength(s.recorder.Len())
	s.logInfo("human checkpoint", zap.String("note", note))
}

// CurrentLevel reports the governance level the controller currently
// holds.
func (s *Sentinel) CurrentLevel() intervention.GovernanceLevel {
	return s.controller.CurrentLevel()
}

// CurrentGamma recomputes Γ from the current window without mutating
// any state.
func (s *Sentinel) CurrentGamma() trajectory.GammaScore {
	return s.monitor.ComputeGamma()
}

// IssueCapability derives a capability key bound to the live execution
// context, valid for the given window.
func (s *Sentinel) IssueCapability(validFrom, validUntil uint64, params, info []byte) (contextbind.ContextSignature, contextbind.CapabilityKey, error) {
	ctx, key, err := s.contextEvaluator.IssueCapability(validFrom, validUntil, params, info)
	if err != nil {
		s.metrics.IncCapabilityDenied()
		return ctx, key, err
	}
	s.metrics.IncCapabilityIssued()
	return ctx, key, nil
}

// VerifyCapability checks a previously issued capability against the
// context it was issued for.
func (s *Sentinel) VerifyCapability(expected contextbind.ContextSignature, cap contextbind.CapabilityKey, info []byte, now uint64) error {
	if err := s.contextEvaluator.VerifyCapability(expected, cap, info, now); err != nil {
		s.metrics.IncCapabilityDenied()
		s.recorder.LogContextVerification(false, hashPrefix(expected.ComputeHash()))
		return err
	}
	s.recorder.LogContextVerification(true, hashPrefix(expected.ComputeHash()))
	return nil
}

// RunRateLimited runs action through the rate shaper, sleeping out any
// shortfall against the controller's current mandated delay before
// returning.
func (s *Sentinel) RunRateLimited(action []byte, decision intervention.Decision) rateshaper.VdfProof {
	s.rateShaper.Recalibrate(decision.DelayMs)
	if decision.DelayMs == 0 {
		return s.rateShaper.Evaluate(action)
	}
	return s.rateShaper.EvaluateWithMinimumDelay(action)
}

// VerifyChain checks the flight recorder's hash chain for tampering.
func (s *Sentinel) VerifyChain() error {
	err := s.recorder.VerifyChain()
	if err != nil {
		s.metrics.IncChainViolation()
	}
	return err
}

// MerkleRoot computes the Merkle root over the full flight recorder
// log, for external checkpointing.
func (s *Sentinel) MerkleRoot() ([]byte, error) {
	return s.recorder.MerkleRoot(0, s.recorder.Len())
}

// ExportJSON renders the flight recorder log for an external
// checkpoint sink.
func (s *Sentinel) ExportJSON() ([]byte, error) {
	return s.recorder.ExportJSON()
}

// EntryCount reports the flight recorder's current length.
func (s *Sentinel) EntryCount() int {
	return s.recorder.Len()
}

func (s *Sentinel) logDebug(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}

func (s *Sentinel) logInfo(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Sentinel) logWarn(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

func hashPrefix(b []byte) string {
	const hexDigits = "0123456789abcdef"
	n := len(b)
	if n > 8 {
		n = 8
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = hexDigits[b[i]>>4]
		out[i*2+1] = hexDigits[b[i]&0xf]
	}
	return string(out)
}
