//go:build linux

// Package contrib — measurement_linux.go
//
// Registers the Linux-specific measurement source so it's reachable
// by name through the same plugin registry as the fixed and
// env-fingerprint sources, instead of sitting unwired behind its own
// build tag.
package contrib

import "github.com/sentineld/sentineld/internal/contextbind"

func init() {
	RegisterMeasurementSource("linux", contextbind.LinuxMeasurementSource{})
}
