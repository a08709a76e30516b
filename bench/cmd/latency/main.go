// Package bench — latency/main.go
//
// EvaluateAction latency measurement tool.
//
// Measures the wall-clock time of Sentinel.EvaluateAction across a
// run of synthetic actions, so a deployment can confirm the
// governance pipeline's hot path — Γ computation, controller
// decision, flight recorder append — stays within budget before it
// sits in front of a live agent runtime.
//
// Method:
//  1. Constructs a Sentinel with default weights/thresholds and a
//     disabled logger/metrics sink, to isolate the pipeline's own cost
//     from logging/export overhead.
//  2. Runs a tight loop calling EvaluateAction, timing each call with
//     time.Now()/time.Since().
//  3. Results are written to a CSV file.
//
// Output CSV columns:
//
//	iteration, latency_us, level
package main

import (
	"crypto/rand"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/sentineld/sentineld/internal/sentinel"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Number of EvaluateAction calls to measure")
	outputFile := flag.String("output", "latency_raw.csv", "Output CSV file path")
	flag.Parse()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		fmt.Fprintf(os.Stderr, "generate master key: %v\n", err)
		os.Exit(1)
	}
	sen := sentinel.New(masterKey, sentinel.DefaultConfig())

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"iteration", "latency_us", "level"})

	var p50Bucket [10001]int // Histogram buckets: 0-10000µs
	actionTypes := []string{"read_file", "write_file", "http_get", "spawn_process"}

	for i := 0; i < *iterations; i++ {
		action := actionTypes[i%len(actionTypes)]
		reversible := i%3 != 0

		start := time.Now()
		decision, err := sen.EvaluateAction(action)
		latency := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "EvaluateAction error at iteration %d: %v\n", i, err)
			os.Exit(1)
		}
		sen.RecordExecution(action, reversible)

		latencyUs := int(latency.Microseconds())
		if latencyUs < len(p50Bucket) {
			p50Bucket[latencyUs]++
		}

		_ = w.Write([]string{
			strconv.Itoa(i),
			strconv.Itoa(latencyUs),
			decision.Level.String(),
		})
	}

	p50, p95, p99 := computePercentiles(p50Bucket[:], *iterations)

	fmt.Printf("EvaluateAction Latency Results (%d iterations)\n", *iterations)
	fmt.Printf("  p50: %dµs\n", p50)
	fmt.Printf("  p95: %dµs\n", p95)
	fmt.Printf("  p99: %dµs\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)

	// Exit 1 if p99 > 2000µs (target not met).
	if p99 > 2000 {
		fmt.Fprintf(os.Stderr, "FAIL: p99 %dµs exceeds 2000µs target\n", p99)
		os.Exit(1)
	}
}

func computePercentiles(hist []int, total int) (p50, p95, p99 int) {
	targets := []struct {
		pct float64
		out *int
	}{
		{0.50, &p50},
		{0.95, &p95},
		{0.99, &p99},
	}
	cumulative := 0
	ti := 0
	for i, count := range hist {
		cumulative += count
		for ti < len(targets) && float64(cumulative) >= targets[ti].pct*float64(total) {
			*targets[ti].out = i
			ti++
		}
		if ti == len(targets) {
			break
		}
	}
	return
}
