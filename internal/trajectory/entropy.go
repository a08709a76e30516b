package trajectory

import "math"

// shannonEntropy computes H = -Σ p(x)·log2(p(x)) in bits over the
// given action-type frequency counts.
func shannonEntropy(counts map[string]uint64) float64 {
	var total uint64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
