package operator

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/trajectory"
)

type fakeSentinel struct {
	level        intervention.GovernanceLevel
	gamma        float64
	checkpoints  []string
	chainErr     error
	merkleRoot   []byte
}

func (f *fakeSentinel) CurrentLevel() intervention.GovernanceLevel { return f.level }
func (f *fakeSentinel) CurrentGamma() trajectory.GammaScore        { return trajectory.GammaScore{Composite: f.gamma} }
func (f *fakeSentinel) HumanCheckpoint(note string)                { f.checkpoints = append(f.checkpoints, note) }
func (f *fakeSentinel) VerifyChain() error                         { return f.chainErr }
func (f *fakeSentinel) MerkleRoot() ([]byte, error)                { return f.merkleRoot, nil }

func TestCmdStatus(t *testing.T) {
	fs := &fakeSentinel{level: intervention.Confirmation, gamma: 0.55}
	s := NewServer("/tmp/unused.sock", fs, zap.NewNop(), 10, time.Minute)
	resp := s.cmdStatus()
	if !resp.OK || resp.Level != "confirmation" || resp.Gamma != 0.55 {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}

func TestCmdCheckpointRequiresNote(t *testing.T) {
	fs := &fakeSentinel{}
	s := NewServer("/tmp/unused.sock", fs, zap.NewNop(), 10, time.Minute)
	resp := s.cmdCheckpoint(Request{Cmd: "checkpoint"})
	if resp.OK {
		t.Fatal("expected checkpoint without a note to be rejected")
	}
	resp = s.cmdCheckpoint(Request{Cmd: "checkpoint", Note: "approved"})
	if !resp.OK || len(fs.checkpoints) != 1 {
		t.Fatalf("expected checkpoint to be recorded: %+v", resp)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	fs := &fakeSentinel{}
	s := NewServer("/tmp/unused.sock", fs, zap.NewNop(), 10, time.Minute)
	resp := s.dispatch(Request{Cmd: "nonsense"})
	if resp.OK {
		t.Fatal("unknown command should not succeed")
	}
}

func TestTokenBucketRateLimitsCommands(t *testing.T) {
	fs := &fakeSentinel{}
	s := NewServer("/tmp/unused.sock", fs, zap.NewNop(), 2, time.Hour)
	defer s.budget.Close()

	for i := 0; i < 2; i++ {
		if !s.budget.Consume(1) {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if s.budget.Consume(1) {
		t.Fatal("expected bucket to be exhausted after capacity consumed")
	}
}
