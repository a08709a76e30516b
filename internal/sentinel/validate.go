package sentinel

import (
	"math"

	"github.com/sentineld/sentineld/internal/sentinelerr"
	"github.com/sentineld/sentineld/internal/trajectory"
)

// validateGamma guards against a composite score that would corrupt
// downstream logging or decision-making: NaN/Inf from a misconfigured
// weight set, or a sub-score outside its documented [0, 1] range.
func validateGamma(score trajectory.GammaScore) error {
	for _, v := range []float64{score.Entropy, score.Velocity, score.Scope, score.Reversibility, score.HumanLatency, score.Composite} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sentinelerr.NewContextValidationFailed("gamma component is NaN or infinite")
		}
		if v < 0 || v > 1 {
			return sentinelerr.NewContextValidationFailed("gamma component out of [0,1] range")
		}
	}
	return nil
}
