// Package flightrecorder implements the tamper-evident audit log: a
// hash-chained sequence of every action evaluated, executed, scored,
// and intervened on, anchorable via a Merkle root for external
// checkpointing.
package flightrecorder

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/sentinelerr"
)

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Kind is the closed set of events the Recorder can append.
type Kind string

const (
	KindActionAttempt       Kind = "ActionAttempt"
	KindActionExecuted      Kind = "ActionExecuted"
	KindGammaUpdate         Kind = "GammaUpdate"
	KindIntervention        Kind = "Intervention"
	KindHumanCheckpoint     Kind = "HumanCheckpoint"
	KindContextVerification Kind = "ContextVerification"
	KindSystemEvent         Kind = "SystemEvent"
)

// Entry is the tagged payload of one log event. Only the fields
// relevant to Kind are populated; the rest are left at their zero
// value so canonical serialization stays deterministic.
type Entry struct {
	Kind Kind `json:"kind"`

	Action  string `json:"action,omitempty"`
	Success bool   `json:"success,omitempty"`

	Gamma float64 `json:"gamma,omitempty"`

	Level                string `json:"level,omitempty"`
	DelayMs              uint64 `json:"delay_ms,omitempty"`
	Blocked              bool   `json:"blocked,omitempty"`
	Escalated            bool   `json:"escalated,omitempty"`
	Deescalated          bool   `json:"deescalated,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Reason               string `json:"reason,omitempty"`

	Note string `json:"note,omitempty"`

	VerificationOK bool   `json:"verification_ok,omitempty"`
	ContextHash    string `json:"context_hash,omitempty"`

	Message string `json:"message,omitempty"`
}

// MarshalCanonical renders the entry as JSON with a fixed key order
// per Kind so that computeHash is reproducible across Go versions
// regardless of how encoding/json might otherwise order struct fields
// (it already preserves struct order, but callers constructing Entry
// values from a map must not rely on that — this method is the single
// source of truth for the bytes that get hashed).
func (e Entry) MarshalCanonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "kind", string(e.Kind), true)
	switch e.Kind {
	case KindActionAttempt:
		writeField(&buf, "action", e.Action, false)
	case KindActionExecuted:
		writeField(&buf, "action", e.Action, false)
		writeBoolField(&buf, "success", e.Success, false)
	case KindGammaUpdate:
		writeFloatField(&buf, "gamma", e.Gamma, false)
	case KindIntervention:
		writeField(&buf, "level", e.Level, false)
		writeFloatField(&buf, "gamma", e.Gamma, false)
		writeUintField(&buf, "delay_ms", e.DelayMs, false)
		writeBoolField(&buf, "blocked", e.Blocked, false)
		writeBoolField(&buf, "escalated", e.Escalated, false)
		writeBoolField(&buf, "deescalated", e.Deescalated, false)
		writeBoolField(&buf, "requires_confirmation", e.RequiresConfirmation, false)
		writeField(&buf, "reason", e.Reason, false)
	case KindHumanCheckpoint:
		writeField(&buf, "note", e.Note, false)
	case KindContextVerification:
		writeBoolField(&buf, "verification_ok", e.VerificationOK, false)
		writeField(&buf, "context_hash", e.ContextHash, false)
	case KindSystemEvent:
		writeField(&buf, "message", e.Message, false)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	enc, _ := json.Marshal(key)
	buf.Write(enc)
	buf.WriteByte(':')
	valEnc, _ := json.Marshal(value)
	buf.Write(valEnc)
}

func writeBoolField(buf *bytes.Buffer, key string, value bool, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	fmt.Fprintf(buf, "%q:%t", key, value)
}

func writeUintField(buf *bytes.Buffer, key string, value uint64, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	fmt.Fprintf(buf, "%q:%d", key, value)
}

func writeFloatField(buf *bytes.Buffer, key string, value float64, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	fmt.Fprintf(buf, "%q:%f", key, value)
}

// LogEntry is one hash-chained record in the flight recorder.
type LogEntry struct {
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	EntryType    Entry     `json:"entry_type"`
	PreviousHash []byte    `json:"previous_hash"`
	Hash         []byte    `json:"hash"`
}

func computeHash(seq uint64, ts time.Time, entry Entry, previousHash []byte) []byte {
	h := sha256.New()
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)
	h.Write(seqBuf[:])
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	h.Write(entry.MarshalCanonical())
	h.Write(previousHash)
	return h.Sum(nil)
}

// Recorder is the append-only, hash-chained log. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	clock   Clock
	entries []LogEntry
}

// New constructs an empty Recorder. A nil clock defaults to the
// system clock.
func New(clock Clock) *Recorder {
	if clock == nil {
		clock = systemClock{}
	}
	return &Recorder{clock: clock}
}

func zeroHash() []byte {
	return make([]byte, sha256.Size)
}

func (r *Recorder) append(entry Entry) LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := uint64(len(r.entries))
	prev := zeroHash()
	if seq > 0 {
		prev = r.entries[seq-1].Hash
	}
	ts := r.clock.Now()
	hash := computeHash(seq, ts, entry, prev)

	le := LogEntry{Sequence: seq, Timestamp: ts, EntryType: entry, PreviousHash: prev, Hash: hash}
	r.entries = append(r.entries, le)
	return le
}

func (r *Recorder) LogAction(action string) LogEntry {
	return r.append(Entry{Kind: KindActionAttempt, Action: action})
}

func (r *Recorder) LogExecution(action string, success bool) LogEntry {
	return r.append(Entry{Kind: KindActionExecuted, Action: action, Success: success})
}

func (r *Recorder) LogGamma(gamma float64) LogEntry {
	return r.append(Entry{Kind: KindGammaUpdate, Gamma: gamma})
}

// LogIntervention persists the full SimplexDecision so the audit log
// can reconstruct Γ, the escalated/deescalated/requires_confirmation
// flags, and the reason for a past decision, not just its level.
func (r *Recorder) LogIntervention(decision intervention.Decision) LogEntry {
	return r.append(Entry{
		Kind:                 KindIntervention,
		Level:                decision.Level.String(),
		Gamma:                decision.Gamma,
		DelayMs:              decision.DelayMs,
		Blocked:              decision.Blocked,
		Escalated:            decision.Escalated,
		Deescalated:          decision.Deescalated,
		RequiresConfirmation: decision.RequiresConfirmation,
		Reason:               decision.Reason,
	})
}

func (r *Recorder) LogHumanCheckpoint(note string) LogEntry {
	return r.append(Entry{Kind: KindHumanCheckpoint, Note: note})
}

func (r *Recorder) LogContextVerification(ok bool, contextHash string) LogEntry {
	return r.append(Entry{Kind: KindContextVerification, VerificationOK: ok, ContextHash: contextHash})
}

func (r *Recorder) LogSystemEvent(message string) LogEntry {
	return r.append(Entry{Kind: KindSystemEvent, Message: message})
}

// Len reports the number of entries recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsEmpty reports whether the log has no entries.
func (r *Recorder) IsEmpty() bool {
	return r.Len() == 0
}

// Latest returns the most recently appended entry, if any.
func (r *Recorder) Latest() (LogEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return LogEntry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// EntriesBySequence returns a copy of entries with sequence numbers in
// the half-open range [start, end), the same range convention
// MerkleRoot uses. It is an index-based query; EntriesBetween is the
// timestamp-based query callers use to inspect the audit trail.
func (r *Recorder) EntriesBySequence(start, end int) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if end > len(r.entries) {
		end = len(r.entries)
	}
	if start >= end {
		return nil
	}
	out := make([]LogEntry, end-start)
	copy(out, r.entries[start:end])
	return out
}

// EntriesBetween returns a copy of entries whose timestamps fall in
// the closed interval [start, end].
func (r *Recorder) EntriesBetween(start, end time.Time) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LogEntry
	for _, e := range r.entries {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	return out
}

// VerifyChain recomputes every hash in the log and checks the linkage
// from a zero-value genesis hash, returning a ChainIntegrityViolation
// naming the first broken sequence number.
func (r *Recorder) VerifyChain() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := zeroHash()
	for _, e := range r.entries {
		if !bytes.Equal(e.PreviousHash, prev) {
			return sentinelerr.NewChainIntegrityViolation(e.Sequence)
		}
		want := computeHash(e.Sequence, e.Timestamp, e.EntryType, e.PreviousHash)
		if !bytes.Equal(want, e.Hash) {
			return sentinelerr.NewChainIntegrityViolation(e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

// MerkleRoot computes the Merkle root over entry hashes in [start,
// end) using pairwise SHA-256, duplicating the last hash when the
// level has an odd count.
func (r *Recorder) MerkleRoot(start, end int) ([]byte, error) {
	r.mu.Lock()
	hashes := make([][]byte, 0, end-start)
	if start < 0 {
		start = 0
	}
	if end > len(r.entries) {
		end = len(r.entries)
	}
	for i := start; i < end; i++ {
		hashes = append(hashes, r.entries[i].Hash)
	}
	r.mu.Unlock()

	if len(hashes) == 0 {
		return nil, sentinelerr.NewSerializationError("cannot compute merkle root of empty range")
	}
	for len(hashes) > 1 {
		if len(hashes)%2 == 1 {
			hashes = append(hashes, hashes[len(hashes)-1])
		}
		next := make([][]byte, 0, len(hashes)/2)
		for i := 0; i < len(hashes); i += 2 {
			h := sha256.New()
			h.Write(hashes[i])
			h.Write(hashes[i+1])
			next = append(next, h.Sum(nil))
		}
		hashes = next
	}
	return hashes[0], nil
}

// ExportJSON renders the entire log as indented JSON, suitable for
// handing to an external checkpoint sink.
func (r *Recorder) ExportJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return nil, sentinelerr.NewSerializationError(err.Error())
	}
	return out, nil
}
