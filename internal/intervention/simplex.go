package intervention

import (
	"fmt"
	"sync"
	"time"
)

// GammaThresholds are the Γ boundaries at which each governance level
// engages, plus a hysteresis margin subtracted from the current
// level's threshold when deciding whether it's safe to de-escalate.
type GammaThresholds struct {
	Friction     float64
	Confirmation float64
	Restriction  float64
	Supervision  float64
	Suspension   float64
	Hysteresis   float64
}

// DefaultGammaThresholds are adopted from the reference
// implementation; spec.md does not spell out these constants, so they
// come from original_source/sentinel_core/src/simplex.rs.
func DefaultGammaThresholds() GammaThresholds {
	return GammaThresholds{
		Friction:     0.3,
		Confirmation: 0.5,
		Restriction:  0.7,
		Supervision:  0.85,
		Suspension:   0.95,
		Hysteresis:   0.1,
	}
}

func (t GammaThresholds) thresholdFor(level GovernanceLevel) float64 {
	switch level {
	case Friction:
		return t.Friction
	case Confirmation:
		return t.Confirmation
	case Restriction:
		return t.Restriction
	case Supervision:
		return t.Supervision
	case Suspension:
		return t.Suspension
	default:
		return 0
	}
}

func (t GammaThresholds) levelFor(gamma float64) GovernanceLevel {
	switch {
	case gamma >= t.Suspension:
		return Suspension
	case gamma >= t.Supervision:
		return Supervision
	case gamma >= t.Restriction:
		return Restriction
	case gamma >= t.Confirmation:
		return Confirmation
	case gamma >= t.Friction:
		return Friction
	default:
		return Observation
	}
}

// Decision is the outcome of one controller evaluation. Escalated and
// Deescalated are mutually exclusive.
type Decision struct {
	Level                GovernanceLevel
	Gamma                float64
	DelayMs              uint64
	Blocked              bool
	Escalated            bool
	Deescalated          bool
	RequiresConfirmation bool
	Reason               string
}

const minElevatedDurationSecs = 60

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Controller tracks the current governance level and decides how Γ
// should move it.
type Controller struct {
	mu         sync.Mutex
	clock      Clock
	thresholds GammaThresholds
	current    GovernanceLevel
	enteredAt  time.Time
}

// NewController builds a Controller starting at Observation with the
// default thresholds.
func NewController(clock Clock) *Controller {
	return NewControllerWithThresholds(DefaultGammaThresholds(), clock)
}

// NewControllerWithThresholds builds a Controller with custom
// thresholds, for deployments that want a stricter or looser ladder.
func NewControllerWithThresholds(thresholds GammaThresholds, clock Clock) *Controller {
	if clock == nil {
		clock = systemClock{}
	}
	return &Controller{
		clock:      clock,
		thresholds: thresholds,
		current:    Observation,
		enteredAt:  clock.Now(),
	}
}

// CurrentLevel returns the controller's present governance level.
func (c *Controller) CurrentLevel() GovernanceLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Thresholds returns the configured threshold set.
func (c *Controller) Thresholds() GammaThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// SetLevel forces the controller to a level, used at startup or by an
// operator override. It resets the dwell-time clock.
func (c *Controller) SetLevel(level GovernanceLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = level
	c.enteredAt = c.clock.Now()
}

func (c *Controller) deescalationThreshold() float64 {
	th := c.thresholds.thresholdFor(c.current) - c.thresholds.Hysteresis
	if th < 0 {
		return 0
	}
	return th
}

// Decide evaluates gamma against the threshold ladder and updates the
// controller's level.
//
// Escalation jumps directly to the target band in one step.
// De-escalation steps down only one level per call, gated on gamma
// falling below the current level's threshold minus hysteresis and on
// having dwelt at the current level for at least
// minElevatedDurationSecs.
func (c *Controller) Decide(gamma float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.thresholds.levelFor(gamma)
	reason := ""
	escalated := false
	deescalated := false

	switch {
	case target > c.current:
		reason = fmt.Sprintf("gamma %.3f crossed into %s band, escalating from %s", gamma, target, c.current)
		c.current = target
		c.enteredAt = c.clock.Now()
		escalated = true
	case target < c.current:
		elapsed := c.clock.Now().Sub(c.enteredAt).Seconds()
		if gamma < c.deescalationThreshold() && elapsed >= minElevatedDurationSecs {
			reason = fmt.Sprintf("gamma %.3f below de-escalation threshold after %.0fs at %s, stepping down", gamma, elapsed, c.current)
			c.current = c.current.Deescalate()
			c.enteredAt = c.clock.Now()
			deescalated = true
		} else {
			reason = fmt.Sprintf("gamma %.3f would de-escalate from %s but dwell/hysteresis not satisfied", gamma, c.current)
		}
	default:
		reason = fmt.Sprintf("gamma %.3f holds at %s", gamma, c.current)
	}

	delay, blocked := delayForLevel(c.current)
	return Decision{
		Level:                c.current,
		Gamma:                gamma,
		DelayMs:              delay,
		Blocked:              blocked,
		Escalated:            escalated,
		Deescalated:          deescalated,
		RequiresConfirmation: c.current >= Confirmation,
		Reason:               reason,
	}
}

func delayForLevel(level GovernanceLevel) (delayMs uint64, blocked bool) {
	switch level {
	case Observation:
		return 0, false
	case Friction:
		return 500, false
	case Confirmation:
		return 1000, false
	case Restriction:
		return 2000, false
	case Supervision:
		return 5000, false
	case Suspension:
		return 0, true
	default:
		return 0, false
	}
}
