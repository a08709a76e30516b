// Package storage — bolt.go
//
// BoltDB-backed checkpoint store for sentineld's flight recorder.
//
// The flight recorder itself is purely in-memory and hash-chained;
// this package is the external sink the demo agent periodically
// exports to, so an operator can recover the audit trail (or at least
// its Merkle anchor) across a process restart.
//
// Schema (BoltDB bucket layout):
//
//	/checkpoints
//	    key:   UTC RFC 3339 timestamp with a fixed 9-digit fraction [sortable]
//	    value: JSON-encoded Checkpoint
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// Retention:
//   - Checkpoints older than RetentionDays are removed when the caller
//     runs PruneOldCheckpoints; cmd/sentineld does so once, at startup.
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The daemon logs a fatal event and refuses to start.
//   - Disk full: bbolt.Update() returns an error. The daemon logs the error
//     and continues without persisting (in-memory state preserved).

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/sentineld/sentineld.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default checkpoint retention period.
	DefaultRetentionDays = 30

	bucketCheckpoints = "checkpoints"
	bucketMeta        = "meta"
)

// Checkpoint is one periodic snapshot of the flight recorder: its
// Merkle root over the entries recorded so far, plus the full export
// for operators who need to inspect individual entries.
type Checkpoint struct {
	// Timestamp is when the checkpoint was taken.
	Timestamp time.Time `json:"timestamp"`

	// EntryCount is the flight recorder's length at checkpoint time.
	EntryCount int `json:"entry_count"`

	// MerkleRoot is the hex-encoded Merkle root over all entries up to
	// EntryCount.
	MerkleRoot string `json:"merkle_root"`

	// ExportJSON is the flight recorder's full JSON export at
	// checkpoint time.
	ExportJSON json.RawMessage `json:"export_json"`

	// NodeID is the sentineld node that recorded this checkpoint.
	NodeID string `json:"node_id"`
}

// DB wraps a BoltDB instance with typed accessors for sentineld
// checkpoints.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at the given path.
// Initialises all required buckets and verifies the schema version.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketCheckpoints, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, daemon requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

func checkpointKey(t time.Time) []byte {
	// Fixed-width fraction: RFC3339Nano drops trailing zeros, which would
	// make byte order differ from time order.
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
}

// PutCheckpoint writes a new checkpoint. Uses a single ACID write
// transaction.
func (d *DB) PutCheckpoint(cp Checkpoint) error {
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("PutCheckpoint marshal: %w", err)
	}

	key := checkpointKey(cp.Timestamp)

	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("PutCheckpoint bolt.Put: %w", err)
		}
		return nil
	})
}

// LatestCheckpoint returns the most recent checkpoint, or (nil, nil)
// if none exist.
func (d *DB) LatestCheckpoint() (*Checkpoint, error) {
	var cp Checkpoint
	found := false

	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCheckpoints)).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &cp)
	})
	if err != nil {
		return nil, fmt.Errorf("LatestCheckpoint: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cp, nil
}

// PruneOldCheckpoints deletes checkpoints older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldCheckpoints() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := checkpointKey(cutoff)

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldCheckpoints delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ListCheckpoints returns all checkpoints in chronological order.
// For operational use (status inspection); not called on the hot
// path.
func (d *DB) ListCheckpoints() ([]Checkpoint, error) {
	var cps []Checkpoint
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		return b.ForEach(func(_, v []byte) error {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			cps = append(cps, cp)
			return nil
		})
	})
	return cps, err
}
