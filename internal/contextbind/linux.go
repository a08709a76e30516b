//go:build linux

package contextbind

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// LinuxMeasurementSource derives the hardware/software digests from
// live kernel identity (uname machine/sysname for hardware,
// release/version for software) and, in the software digest, the
// current 1-minute load average, instead of a fixed placeholder. The
// software digest therefore changes whenever the load average does.
// It is illustrative of how a
// real deployment swaps in a stronger measurement source — it is not
// an attestation mechanism and does not defend against a compromised
// kernel reporting false uname data.
type LinuxMeasurementSource struct{}

func (LinuxMeasurementSource) MeasureHardware() []byte {
	var uts unix.Utsname
	h := sha256.New()
	if err := unix.Uname(&uts); err == nil {
		h.Write(trimZero(uts.Machine[:]))
		h.Write(trimZero(uts.Sysname[:]))
	}
	return h.Sum(nil)
}

func (LinuxMeasurementSource) MeasureSoftware() []byte {
	var uts unix.Utsname
	h := sha256.New()
	if err := unix.Uname(&uts); err == nil {
		h.Write(trimZero(uts.Release[:]))
		h.Write(trimZero(uts.Version[:]))
	}
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(info.Loads[0]))
		h.Write(buf[:])
	}
	return h.Sum(nil)
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
