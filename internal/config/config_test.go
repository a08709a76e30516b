package config

import "testing"

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	cfg := Defaults()
	cfg.Trajectory.WeightEntropy = 0.9
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for weights not summing to 1.0")
	}
}

func TestValidateRejectsNonMonotonicThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Intervention.ThresholdConfirmation = 0.2 // below ThresholdFriction
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for non-monotonic thresholds")
	}
}

func TestValidateRejectsUnsupportedSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unsupported schema version")
	}
}

func TestGammaWeightsConversion(t *testing.T) {
	cfg := Defaults()
	w := cfg.GammaWeights()
	if !w.Validate() {
		t.Fatal("converted weights should satisfy trajectory.GammaWeights.Validate")
	}
}
