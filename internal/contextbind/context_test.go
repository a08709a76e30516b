package contextbind

import "testing"

func TestContextSignatureHash(t *testing.T) {
	a := ContextSignature{HardwareAttestation: []byte("hw"), SoftwareState: []byte("sw"), ValidFrom: 1, ValidUntil: 2}
	b := a
	if string(a.ComputeHash()) != string(b.ComputeHash()) {
		t.Fatal("identical signatures must hash identically")
	}
	b.Parameters = []byte("changed")
	if string(a.ComputeHash()) == string(b.ComputeHash()) {
		t.Fatal("changing parameters must change the hash")
	}
}

func TestCapabilityDerivation(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	ctx := ContextSignature{HardwareAttestation: []byte("hw"), SoftwareState: []byte("sw"), ValidFrom: 0, ValidUntil: 100}

	k1, err := Derive(master, ctx, []byte("deploy"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := Derive(master, ctx, []byte("deploy"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !k1.VerifyContext(master, ctx, []byte("deploy")) || string(k1.AsBytes()) != string(k2.AsBytes()) {
		t.Fatal("deterministic derivation expected for identical inputs")
	}

	k3, _ := Derive(master, ctx, []byte("rollback"))
	if string(k1.AsBytes()) == string(k3.AsBytes()) {
		t.Fatal("different info must yield different key")
	}
}

func TestContextChangeInvalidatesCapability(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	eval := NewEvaluator(master, FixedMeasurementSource{}, nil)

	ctx, cap, err := eval.IssueCapability(0, 1000, []byte("scope=deploy"), []byte("action"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := eval.VerifyCapability(ctx, cap, []byte("action"), 500); err != nil {
		t.Fatalf("expected capability to verify: %v", err)
	}

	changed := ctx
	changed.Parameters = eval.MeasureParameters([]byte("scope=delete_everything"))
	if err := eval.VerifyCapability(changed, cap, []byte("action"), 500); err == nil {
		t.Fatal("expected context mismatch after parameter change")
	}
}

func TestTemporalValidity(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	eval := NewEvaluator(master, FixedMeasurementSource{}, nil)

	ctx, cap, err := eval.IssueCapability(100, 200, nil, []byte("action"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := eval.VerifyCapability(ctx, cap, []byte("action"), 50); err == nil {
		t.Fatal("expected expiry error before ValidFrom")
	}
	if err := eval.VerifyCapability(ctx, cap, []byte("action"), 250); err == nil {
		t.Fatal("expected expiry error after ValidUntil")
	}
	if err := eval.VerifyCapability(ctx, cap, []byte("action"), 150); err != nil {
		t.Fatalf("expected valid window to verify: %v", err)
	}
}
