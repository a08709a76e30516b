package sentinel

import (
	"testing"

	"github.com/sentineld/sentineld/internal/flightrecorder"
	"github.com/sentineld/sentineld/internal/intervention"
)

func testMasterKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestSentinelCreation(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	if s.CurrentLevel() != intervention.Observation {
		t.Fatalf("new sentinel should start at Observation, got %s", s.CurrentLevel())
	}
	if s.CurrentGamma().Composite != 0 {
		t.Fatal("new sentinel should start at gamma 0")
	}
}

func TestGammaEscalation(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	var lastDecision intervention.Decision
	for i := 0; i < 100; i++ {
		decision, err := s.EvaluateAction("delete_production_resource")
		if err != nil {
			t.Fatalf("evaluate action %d: %v", i, err)
		}
		s.RecordExecution("delete_production_resource", false)
		lastDecision = decision
	}
	if lastDecision.Gamma <= 0.2 {
		t.Fatalf("expected gamma > 0.2 after 100 irreversible actions, got %f", lastDecision.Gamma)
	}
}

func TestEvaluateActionOrderingLogsEverySteps(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	_, err := s.EvaluateAction("read_metrics")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// log_action + log_gamma + log_intervention == 3 entries for one call.
	if got := s.recorder.Len(); got != 3 {
		t.Fatalf("expected 3 flight recorder entries after one evaluation, got %d", got)
	}
	want := []flightrecorder.Kind{flightrecorder.KindActionAttempt, flightrecorder.KindGammaUpdate, flightrecorder.KindIntervention}
	for i, e := range s.recorder.EntriesBySequence(0, 3) {
		if e.EntryType.Kind != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], e.EntryType.Kind)
		}
	}
	if err := s.VerifyChain(); err != nil {
		t.Fatalf("chain should verify: %v", err)
	}
}

func TestHumanCheckpointIsLogged(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	before := s.recorder.Len()
	s.HumanCheckpoint("operator reviewed trajectory")
	if s.recorder.Len() != before+1 {
		t.Fatal("human checkpoint must append exactly one flight recorder entry")
	}
}

func TestRecordExecutionDoesNotLog(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	before := s.recorder.Len()
	s.RecordExecution("restart_service", true)
	if s.recorder.Len() != before {
		t.Fatal("RecordExecution must not append a flight recorder entry on its own")
	}
}

func TestCapabilityRoundTrip(t *testing.T) {
	s := New(testMasterKey(), DefaultConfig())
	ctx, cap, err := s.IssueCapability(0, 1000, []byte("scope=read_only"), []byte("agent-1"))
	if err != nil {
		t.Fatalf("issue capability: %v", err)
	}
	if err := s.VerifyCapability(ctx, cap, []byte("agent-1"), 500); err != nil {
		t.Fatalf("verify capability: %v", err)
	}
}
