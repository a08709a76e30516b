package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentineld.db")
	db, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	cp, err := db.LatestCheckpoint()
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if cp != nil {
		t.Fatal("expected no checkpoints in a fresh database")
	}
}

func TestPutAndListCheckpoints(t *testing.T) {
	db := openTestDB(t)
	raw, _ := json.Marshal([]string{"entry-1"})
	err := db.PutCheckpoint(Checkpoint{
		Timestamp:  time.Now().UTC(),
		EntryCount: 1,
		MerkleRoot: "deadbeef",
		ExportJSON: raw,
		NodeID:     "node-a",
	})
	if err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}

	latest, err := db.LatestCheckpoint()
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if latest == nil || latest.MerkleRoot != "deadbeef" {
		t.Fatalf("unexpected latest checkpoint: %+v", latest)
	}

	all, err := db.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(all))
	}
}

func TestPruneOldCheckpoints(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().UTC().AddDate(0, 0, -60)
	if err := db.PutCheckpoint(Checkpoint{Timestamp: old, EntryCount: 1, MerkleRoot: "old"}); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}
	if err := db.PutCheckpoint(Checkpoint{Timestamp: time.Now().UTC(), EntryCount: 2, MerkleRoot: "new"}); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}

	deleted, err := db.PruneOldCheckpoints()
	if err != nil {
		t.Fatalf("PruneOldCheckpoints: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 pruned checkpoint, got %d", deleted)
	}

	remaining, err := db.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(remaining) != 1 || remaining[0].MerkleRoot != "new" {
		t.Fatalf("unexpected remaining checkpoints: %+v", remaining)
	}
}
