// Package trajectory implements the Trajectory Monitor: it tracks a
// rolling window of an agent's actions and reduces them to a single
// composite risk score, Γ, used to drive governance-level decisions.
package trajectory

import (
	"sync"
	"time"
)

// GammaWeights controls how much each sub-score contributes to the
// composite Γ. The five weights must sum to 1.0 (within a small
// tolerance) or Validate returns false.
type GammaWeights struct {
	Entropy      float64
	Velocity     float64
	Scope        float64
	Reversibility float64
	HumanLatency float64
}

// DefaultGammaWeights matches the reference weighting: reversibility
// weighs most, entropy least, and velocity, scope and human latency
// equally in between.
func DefaultGammaWeights() GammaWeights {
	return GammaWeights{
		Entropy:       0.15,
		Velocity:      0.20,
		Scope:         0.20,
		Reversibility: 0.25,
		HumanLatency:  0.20,
	}
}

// Validate checks that the weights sum to 1.0 within ±0.001.
func (w GammaWeights) Validate() bool {
	sum := w.Entropy + w.Velocity + w.Scope + w.Reversibility + w.HumanLatency
	return sum >= 0.999 && sum <= 1.001
}

// GammaScore is the composite Γ along with the five sub-scores that
// produced it, retained for logging and explainability.
type GammaScore struct {
	Entropy       float64
	Velocity      float64
	Scope         float64
	Reversibility float64
	HumanLatency  float64
	Composite     float64
}

// ActionRecord is one entry in the rolling action window.
type ActionRecord struct {
	ActionType string
	Reversible bool
	Timestamp  time.Time
}

const historyCapacity = 1000

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Monitor accumulates an agent's action history and computes Γ from
// it. It is safe for concurrent use.
type Monitor struct {
	mu                 sync.Mutex
	clock              Clock
	weights            GammaWeights
	history            []ActionRecord
	baselineActions    map[string]uint64
	originalScope      map[string]struct{}
	lastHumanCheckpoint time.Time
}

// NewMonitor constructs a Monitor. A nil clock defaults to the system
// clock. Weights that don't Validate are still accepted — the caller
// is responsible for having validated configuration at startup.
func NewMonitor(weights GammaWeights, clock Clock) *Monitor {
	if clock == nil {
		clock = systemClock{}
	}
	return &Monitor{
		clock:               clock,
		weights:              weights,
		baselineActions:      make(map[string]uint64),
		lastHumanCheckpoint: clock.Now(),
	}
}

// Weights returns the configured weighting.
func (m *Monitor) Weights() GammaWeights {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weights
}

// ActionCount reports how many actions are currently in the window.
func (m *Monitor) ActionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// RecordAction appends an action to the rolling window, evicting the
// oldest entry once the window reaches its capacity.
func (m *Monitor) RecordAction(actionType string, reversible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := ActionRecord{ActionType: actionType, Reversible: reversible, Timestamp: m.clock.Now()}
	m.history = append(m.history, rec)
	if len(m.history) > historyCapacity {
		m.history = m.history[len(m.history)-historyCapacity:]
	}
	m.baselineActions[actionType]++
}

// HumanCheckpoint resets the human-latency clock to now, the agent
// having just been reviewed.
func (m *Monitor) HumanCheckpoint() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHumanCheckpoint = m.clock.Now()
}

// SetOriginalScope fixes the set of action types considered within
// the agent's originally granted scope; anything else counts toward
// the scope-expansion sub-score.
func (m *Monitor) SetOriginalScope(actionTypes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := make(map[string]struct{}, len(actionTypes))
	for _, a := range actionTypes {
		scope[a] = struct{}{}
	}
	m.originalScope = scope
}

// ComputeGamma reduces the current window to a composite risk score.
func (m *Monitor) ComputeGamma() GammaScore {
	m.mu.Lock()
	defer m.mu.Unlock()

	entropy := m.computeEntropyLocked()
	velocity := m.computeVelocityLocked()
	scope := m.computeScopeExpansionLocked()
	reversibility := m.computeReversibilityLocked()
	humanLatency := m.computeHumanLatencyLocked()

	composite := m.weights.Entropy*entropy +
		m.weights.Velocity*velocity +
		m.weights.Scope*scope +
		m.weights.Reversibility*reversibility +
		m.weights.HumanLatency*humanLatency
	composite = clamp01(composite)

	return GammaScore{
		Entropy:       entropy,
		Velocity:      velocity,
		Scope:         scope,
		Reversibility: reversibility,
		HumanLatency:  humanLatency,
		Composite:     composite,
	}
}

func (m *Monitor) computeEntropyLocked() float64 {
	counts := make(map[string]uint64, len(m.baselineActions))
	for _, rec := range m.history {
		counts[rec.ActionType]++
	}
	h := shannonEntropy(counts)
	return clamp01(h / 5.0)
}

func (m *Monitor) computeVelocityLocked() float64 {
	if len(m.history) < 2 {
		return 0
	}
	now := m.clock.Now()
	cutoff := now.Add(-60 * time.Second)
	var count int
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	perSecond := float64(count) / 60.0
	return clamp01(perSecond / 10.0)
}

func (m *Monitor) computeScopeExpansionLocked() float64 {
	if len(m.originalScope) == 0 {
		return 0
	}
	if len(m.history) == 0 {
		return 0
	}
	var outOfScope int
	for _, rec := range m.history {
		if _, ok := m.originalScope[rec.ActionType]; !ok {
			outOfScope++
		}
	}
	return clamp01(float64(outOfScope) / float64(len(m.history)))
}

func (m *Monitor) computeReversibilityLocked() float64 {
	if len(m.history) == 0 {
		return 0
	}
	var irreversible int
	for _, rec := range m.history {
		if !rec.Reversible {
			irreversible++
		}
	}
	return clamp01(float64(irreversible) / float64(len(m.history)))
}

func (m *Monitor) computeHumanLatencyLocked() float64 {
	hours := m.clock.Now().Sub(m.lastHumanCheckpoint).Hours()
	return clamp01(hours / 8.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
