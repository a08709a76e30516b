package rateshaper

import "testing"

func TestVdfProofDeterministic(t *testing.T) {
	p1 := Compute([]byte("evaluate_action:deploy"), 500)
	p2 := Compute([]byte("evaluate_action:deploy"), 500)
	if string(p1.Output) != string(p2.Output) {
		t.Fatal("same input and iteration count must produce the same output")
	}
}

func TestVdfProofVerification(t *testing.T) {
	p := Compute([]byte("evaluate_action:deploy"), 500)
	if !p.Verify() {
		t.Fatal("proof should verify against its own claims")
	}
	tampered := p
	tampered.Output = append([]byte(nil), p.Output...)
	tampered.Output[0] ^= 0xff
	if tampered.Verify() {
		t.Fatal("tampered output must not verify")
	}
}

func TestDifferentInputsDifferentOutputs(t *testing.T) {
	a := Compute([]byte("deploy"), 200)
	b := Compute([]byte("rollback"), 200)
	if string(a.Output) == string(b.Output) {
		t.Fatal("different inputs should (overwhelmingly likely) produce different outputs")
	}
}

func TestRateLimitCheck(t *testing.T) {
	rs := New(50)
	ready, remaining := rs.CheckRateLimit()
	if !ready || remaining != 0 {
		t.Fatalf("first check should always be ready, got ready=%v remaining=%v", ready, remaining)
	}
	rs.EvaluateWithMinimumDelay([]byte("action"))
	ready, remaining = rs.CheckRateLimit()
	if ready {
		t.Fatal("immediately re-checking should not be ready yet")
	}
	if remaining <= 0 {
		t.Fatal("expected a positive remaining wait")
	}
}

func TestEvaluateRecordsRateLimitClock(t *testing.T) {
	rs := New(50)
	rs.Evaluate([]byte("action"))
	ready, remaining := rs.CheckRateLimit()
	if ready {
		t.Fatal("Evaluate (without the minimum-delay sleep) should still start the rate-limit clock")
	}
	if remaining <= 0 {
		t.Fatal("expected a positive remaining wait")
	}
}

func TestCalibration(t *testing.T) {
	rs := New(10)
	if rs.Iterations() != 10000 {
		t.Fatalf("expected 10000 iterations for 10ms target, got %d", rs.Iterations())
	}
	rs.Recalibrate(2000)
	if rs.TargetDelay() != 2000 || rs.Iterations() != 2_000_000 {
		t.Fatalf("recalibration did not update target/iterations: %d/%d", rs.TargetDelay(), rs.Iterations())
	}
}
