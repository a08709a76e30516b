package observability

import "testing"

func TestSmoothedGammaFirstUpdateSetsValue(t *testing.T) {
	s := NewSmoothedGamma(0.2)
	if got := s.Update(0.8); got != 0.8 {
		t.Fatalf("first update should set value directly, got %f", got)
	}
}

func TestSmoothedGammaConverges(t *testing.T) {
	s := NewSmoothedGamma(0.5)
	s.Update(0.0)
	for i := 0; i < 20; i++ {
		s.Update(1.0)
	}
	if v := s.Value(); v < 0.99 {
		t.Fatalf("expected smoothed value to converge near 1.0, got %f", v)
	}
}

func TestSmoothedGammaInvalidAlphaPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range alpha")
		}
	}()
	NewSmoothedGamma(0)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordDecision("friction")
	m.ObserveGamma(0.5)
	m.ObserveSmoothedGamma(0.5)
	m.ObserveDelay(100)
	m.SetChainLength(10)
	m.IncChainViolation()
	m.IncCapabilityIssued()
	m.IncCapabilityDenied()
}
