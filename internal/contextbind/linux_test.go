//go:build linux

package contextbind

import "testing"

func TestLinuxMeasurementSourceDeterministic(t *testing.T) {
	var src LinuxMeasurementSource

	hw1, hw2 := src.MeasureHardware(), src.MeasureHardware()
	if len(hw1) == 0 || string(hw1) != string(hw2) {
		t.Fatal("hardware measurement must be non-empty and stable within one process")
	}

	sw1, sw2 := src.MeasureSoftware(), src.MeasureSoftware()
	if len(sw1) == 0 {
		t.Fatal("software measurement must be non-empty")
	}
	_ = sw2

	if string(hw1) == string(sw1) {
		t.Fatal("hardware and software digests should draw from different uname fields")
	}
}

func TestLinuxMeasurementSourceSatisfiesInterface(t *testing.T) {
	var _ MeasurementSource = LinuxMeasurementSource{}
}
