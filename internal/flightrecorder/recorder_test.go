package flightrecorder

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/intervention"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestEmptyChainValid(t *testing.T) {
	r := New(nil)
	if err := r.VerifyChain(); err != nil {
		t.Fatalf("empty chain should verify: %v", err)
	}
	if !r.IsEmpty() {
		t.Fatal("new recorder should be empty")
	}
}

func TestChainIntegrity(t *testing.T) {
	clk := &stepClock{t: time.Unix(1700000000, 0)}
	r := New(clk)
	r.LogAction("deploy")
	r.LogGamma(0.42)
	r.LogIntervention(intervention.Decision{
		Level:   intervention.Friction,
		Gamma:   0.42,
		DelayMs: 500,
		Reason:  "gamma crossed friction threshold",
	})

	if err := r.VerifyChain(); err != nil {
		t.Fatalf("chain should verify: %v", err)
	}

	r.entries[1].EntryType.Gamma = 0.99
	if err := r.VerifyChain(); err == nil {
		t.Fatal("tampering with an entry must break verification")
	}
}

func TestEntryVerification(t *testing.T) {
	clk := &stepClock{t: time.Unix(1700000000, 0)}
	r := New(clk)
	entry := r.LogHumanCheckpoint("operator approved rollout")
	recomputed := computeHash(entry.Sequence, entry.Timestamp, entry.EntryType, entry.PreviousHash)
	if string(recomputed) != string(entry.Hash) {
		t.Fatal("recomputed hash must match stored hash")
	}
}

func TestMerkleRoot(t *testing.T) {
	clk := &stepClock{t: time.Unix(1700000000, 0)}
	r := New(clk)
	for i := 0; i < 5; i++ {
		r.LogSystemEvent("tick")
	}
	root1, err := r.MerkleRoot(0, r.Len())
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	root2, err := r.MerkleRoot(0, r.Len())
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	if string(root1) != string(root2) {
		t.Fatal("merkle root must be deterministic for the same range")
	}

	r.LogSystemEvent("one more")
	root3, err := r.MerkleRoot(0, r.Len())
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	if string(root1) == string(root3) {
		t.Fatal("adding an entry must change the merkle root")
	}
}

func TestExportJSON(t *testing.T) {
	clk := &stepClock{t: time.Unix(1700000000, 0)}
	r := New(clk)
	r.LogAction("restart_service")
	out, err := r.ExportJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty export")
	}
}
