// Package rateshaper imposes a sequential, non-parallelizable delay
// before a risky action proceeds. The delay is provable: a verifier
// can check the proof in the same time it took to compute it, with no
// shortcut, which is what keeps an agent from simply skipping the
// wait.
//
// The proof itself is an iterated SHA-256 hash chain, a placeholder
// for a real verifiable delay function (Wesolowski or Pietrzak). It
// has the right shape — fixed iteration count, deterministic output,
// linear-time verification — but none of a real VDF's proof-of-work
// asymmetry; anyone with equivalent compute can still win a race
// against it. Swapping in a production VDF means replacing Compute and
// Verify below without touching RateShaper's call sites.
package rateshaper

import (
	"bytes"
	"crypto/sha256"
	"sync"
	"time"
)

// VdfProof is the result of running the delay function on an input
// for a fixed number of iterations.
type VdfProof struct {
	Input             []byte
	Output            []byte
	Iterations        uint64
	ComputationTimeMs uint64
}

// Compute hashes input once to get the 32-byte digest x0, then
// iterates SHA-256 over x0 exactly iterations times.
func Compute(input []byte, iterations uint64) VdfProof {
	start := time.Now()
	inputHash := sha256.Sum256(input)
	cur := inputHash
	for i := uint64(0); i < iterations; i++ {
		cur = sha256.Sum256(cur[:])
	}
	elapsed := time.Since(start)
	return VdfProof{
		Input:             inputHash[:],
		Output:            cur[:],
		Iterations:        iterations,
		ComputationTimeMs: uint64(elapsed.Milliseconds()),
	}
}

// Verify re-iterates from Input for Iterations steps and checks it
// matches Output. Input is already a digest, not iterated again
// before the loop.
func (p VdfProof) Verify() bool {
	cur := p.Input
	for i := uint64(0); i < p.Iterations; i++ {
		sum := sha256.Sum256(cur)
		cur = sum[:]
	}
	return bytes.Equal(cur, p.Output)
}

// RateLimitConfig gives tiered minimum delays keyed by a coarse risk
// category. RateShaper does not apply these tiers; its delay comes
// only from its target delay.
type RateLimitConfig struct {
	LowRiskDelayMs     uint64
	MediumRiskDelayMs  uint64
	HighRiskDelayMs    uint64
	IrreversibleDelayMs uint64
}

// DefaultRateLimitConfig matches the reference tiering: 100ms for
// low-risk actions up to 30s for irreversible ones.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		LowRiskDelayMs:      100,
		MediumRiskDelayMs:   1000,
		HighRiskDelayMs:     5000,
		IrreversibleDelayMs: 30000,
	}
}

// RateShaper calibrates and runs the VDF, and separately enforces a
// minimum wall-clock gap between consecutive evaluations.
type RateShaper struct {
	mu             sync.Mutex
	targetDelayMs  uint64
	iterationCount uint64
	lastEvaluated  time.Time
	hasEvaluated   bool
}

// New builds a RateShaper calibrated to target a delay of
// targetDelayMs between action evaluation and execution, assuming
// roughly 1000 SHA-256 iterations per millisecond on reference
// hardware.
func New(targetDelayMs uint64) *RateShaper {
	return &RateShaper{
		targetDelayMs:  targetDelayMs,
		iterationCount: targetDelayMs * 1000,
	}
}

// TargetDelay returns the configured target delay in milliseconds.
func (r *RateShaper) TargetDelay() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetDelayMs
}

// Iterations returns the calibrated iteration count.
func (r *RateShaper) Iterations() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.iterationCount
}

// Recalibrate updates the target delay and recomputes the iteration
// count, for example when the intervention controller escalates to a
// level with a longer mandated delay.
func (r *RateShaper) Recalibrate(targetDelayMs uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targetDelayMs = targetDelayMs
	r.iterationCount = targetDelayMs * 1000
}

// Evaluate runs the VDF over input and returns the proof without
// sleeping for any shortfall. It still records the evaluation time for
// CheckRateLimit's benefit.
func (r *RateShaper) Evaluate(input []byte) VdfProof {
	iterations := r.Iterations()
	proof := Compute(input, iterations)
	r.mu.Lock()
	r.lastEvaluated = time.Now()
	r.hasEvaluated = true
	r.mu.Unlock()
	return proof
}

// EvaluateWithMinimumDelay runs the VDF and, if computing it took less
// than the target delay, sleeps out the remainder before returning —
// the proof's computation time alone is not trustworthy evidence of
// elapsed wall-clock time on faster hardware.
func (r *RateShaper) EvaluateWithMinimumDelay(input []byte) VdfProof {
	target := time.Duration(r.TargetDelay()) * time.Millisecond
	start := time.Now()
	proof := r.Evaluate(input)
	elapsed := time.Since(start)
	if remaining := target - elapsed; remaining > 0 {
		time.Sleep(remaining)
	}
	r.mu.Lock()
	r.lastEvaluated = time.Now()
	r.hasEvaluated = true
	r.mu.Unlock()
	return proof
}

// CheckRateLimit reports whether enough wall-clock time has passed
// since the last evaluation to run another one. If not, it returns
// the remaining wait duration.
func (r *RateShaper) CheckRateLimit() (ready bool, remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasEvaluated {
		return true, 0
	}
	target := time.Duration(r.targetDelayMs) * time.Millisecond
	elapsed := time.Since(r.lastEvaluated)
	if elapsed >= target {
		return true, 0
	}
	return false, target - elapsed
}
