// Package main — cmd/sentineld-sim/main.go
//
// sentineld trajectory simulator.
//
// Purpose: exercise the real Γ composite and intervention controller
// against a synthetic action stream, so an operator can see how fast
// the governance ladder escalates under a given mix of action
// entropy, velocity, scope expansion and reversibility — before
// tuning weights/thresholds for a production deployment.
//
// Model: at each step a synthetic agent emits one of a fixed
// vocabulary of action types, a fraction of which are irreversible.
// With the scope probability, the drawn action is replaced by
// "modify_credentials", which is outside the declared original scope.
// Six of the eight vocabulary types are already out of scope, so the
// out-of-scope share is about 75% even at a scope probability of 0.
// Both the irreversible fraction and the scope probability ramp
// linearly from their start to end values across the run, simulating
// an agent that drifts from benign to increasingly aggressive
// behaviour.
//
// Output: per-step CSV to stdout (step, gamma, level, delay_ms).
// Summary: escalation trace to stderr.
//
// Usage:
//
//	sentineld-sim [flags]
//	sentineld-sim -steps 2000 -irreversible-end 0.6 -scope-end 0.5
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/trajectory"
)

var actionVocab = []string{
	"read_file", "write_file", "http_get", "http_post",
	"spawn_process", "delete_file", "send_email", "modify_credentials",
}

func main() {
	steps := flag.Int("steps", 2000, "Number of simulated actions")
	irreversibleStart := flag.Float64("irreversible-start", 0.05, "Initial fraction of irreversible actions")
	irreversibleEnd := flag.Float64("irreversible-end", 0.4, "Final fraction of irreversible actions")
	scopeStart := flag.Float64("scope-start", 0.0, "Initial probability an action is replaced by an out-of-scope action")
	scopeEnd := flag.Float64("scope-end", 0.3, "Final probability an action is replaced by an out-of-scope action")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	for _, f := range []float64{*irreversibleStart, *irreversibleEnd, *scopeStart, *scopeEnd} {
		if f < 0 || f > 1 {
			fmt.Fprintln(os.Stderr, "ERROR: all fractions must be in [0, 1]")
			os.Exit(1)
		}
	}

	rng := rand.New(rand.NewSource(*seed))

	monitor := trajectory.NewMonitor(trajectory.DefaultGammaWeights(), nil)
	monitor.SetOriginalScope([]string{"read_file", "http_get"})
	controller := intervention.NewController(nil)

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"step", "gamma", "level", "delay_ms"})

	escalations := make(map[string]int)
	var finalLevel intervention.GovernanceLevel

	for t := 0; t < *steps; t++ {
		progress := float64(t) / float64(*steps)
		irreversibleFrac := lerp(*irreversibleStart, *irreversibleEnd, progress)
		scopeFrac := lerp(*scopeStart, *scopeEnd, progress)

		action := actionVocab[rng.Intn(len(actionVocab))]
		if rng.Float64() < scopeFrac {
			action = "modify_credentials" // guaranteed out-of-scope action
		}
		reversible := rng.Float64() >= irreversibleFrac

		monitor.RecordAction(action, reversible)
		score := monitor.ComputeGamma()
		decision := controller.Decide(score.Composite)
		finalLevel = decision.Level

		_ = w.Write([]string{
			strconv.Itoa(t),
			strconv.FormatFloat(score.Composite, 'f', 6, 64),
			decision.Level.String(),
			strconv.FormatUint(decision.DelayMs, 10),
		})
		escalations[decision.Level.String()]++
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\n=== TRAJECTORY SIMULATION SUMMARY ===\n")
	fmt.Fprintf(os.Stderr, "Steps: %d\n", *steps)
	fmt.Fprintf(os.Stderr, "Final level: %s\n", finalLevel)
	for _, lvl := range []intervention.GovernanceLevel{
		intervention.Observation, intervention.Friction, intervention.Confirmation,
		intervention.Restriction, intervention.Supervision, intervention.Suspension,
	} {
		fmt.Fprintf(os.Stderr, "  %-13s %6d steps (%.1f%%)\n",
			lvl.String(), escalations[lvl.String()], 100*float64(escalations[lvl.String()])/float64(*steps))
	}
	if finalLevel >= intervention.Supervision {
		fmt.Fprintln(os.Stderr, "RESULT: the simulated drift reached Supervision or worse.")
	} else {
		fmt.Fprintln(os.Stderr, "RESULT: the simulated drift stayed below Supervision.")
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
