package trajectory

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGammaWeightsDefaultSum(t *testing.T) {
	if !DefaultGammaWeights().Validate() {
		t.Fatal("default weights must sum to ~1.0")
	}
}

func TestEmptyMonitorGamma(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(DefaultGammaWeights(), clk)
	score := m.ComputeGamma()
	if score.Composite != 0 {
		t.Fatalf("expected zero composite for empty monitor, got %f", score.Composite)
	}
}

func TestIrreversibleActionsIncreaseGamma(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(DefaultGammaWeights(), clk)
	for i := 0; i < 100; i++ {
		m.RecordAction("delete_resource", false)
		clk.advance(time.Millisecond)
	}
	score := m.ComputeGamma()
	if score.Composite <= 0.2 {
		t.Fatalf("expected composite > 0.2 after 100 irreversible actions, got %f", score.Composite)
	}
}

func TestHumanCheckpointResetsLatency(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(DefaultGammaWeights(), clk)
	clk.advance(10 * time.Hour)
	before := m.ComputeGamma()
	m.HumanCheckpoint()
	after := m.ComputeGamma()
	if after.HumanLatency >= before.HumanLatency {
		t.Fatalf("checkpoint should reduce human latency sub-score: before=%f after=%f", before.HumanLatency, after.HumanLatency)
	}
	if after.HumanLatency != 0 {
		t.Fatalf("immediately after checkpoint latency should be 0, got %f", after.HumanLatency)
	}
}

func TestVelocityRequiresTwoRecords(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(DefaultGammaWeights(), clk)
	m.RecordAction("read_file", true)
	score := m.ComputeGamma()
	if score.Velocity != 0 {
		t.Fatalf("expected zero velocity sub-score with a single record, got %f", score.Velocity)
	}
}

func TestScopeExpansion(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(DefaultGammaWeights(), clk)
	m.SetOriginalScope([]string{"read_file", "list_directory"})
	for i := 0; i < 5; i++ {
		m.RecordAction("read_file", true)
	}
	for i := 0; i < 5; i++ {
		m.RecordAction("modify_production_config", false)
	}
	score := m.ComputeGamma()
	if score.Scope < 0.45 {
		t.Fatalf("expected scope sub-score near 0.5, got %f", score.Scope)
	}
}
