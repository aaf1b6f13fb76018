package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	rec := &PeerRecord{
		ID:           "peer-a",
		DisplayName:  "A",
		GeometryHash: "0xabc",
		Overlap:      0.87,
		Status:       StatusTrusted,
		RegisteredAt: 100,
		LastSeen:     200,
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// 新的存储实例从同一快照恢复。
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	peers, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	got := peers[0]
	if got.ID != "peer-a" || got.Overlap != 0.87 || got.Status != StatusTrusted {
		t.Fatalf("record not restored: %+v", got)
	}
	if got.RegisteredAt != 100 || got.LastSeen != 200 {
		t.Fatalf("timestamps not restored: %+v", got)
	}
}

func TestFileStoreSnapshotFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := store.Upsert(ctx, &PeerRecord{ID: "peer-a", Status: StatusUnknown}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(content, &snapshot); err != nil {
		t.Fatalf("snapshot not valid json: %v", err)
	}
	if snapshot.Version != SnapshotVersion {
		t.Fatalf("unexpected snapshot version: %d", snapshot.Version)
	}
	if snapshot.LastUpdated == 0 {
		t.Fatal("snapshot missing last_updated")
	}
}

func TestFileStoreCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("corrupt snapshot must not fail startup: %v", err)
	}
	peers, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected empty registry after corrupt snapshot, got %d", len(peers))
	}

	// 之后的写入恢复正常快照。
	if err := store.Upsert(context.Background(), &PeerRecord{ID: "peer-a", Status: StatusUnknown}); err != nil {
		t.Fatalf("upsert after corruption: %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := store.Upsert(ctx, &PeerRecord{ID: "peer-a", Status: StatusUnknown}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	existed, err := store.Delete(ctx, "peer-a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "peer-a")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := &PeerRecord{ID: "peer-a", Status: StatusTrusted}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.Status = StatusQuarantined

	peers, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if peers[0].Status != StatusTrusted {
		t.Fatal("store must clone records on write")
	}

	peers[0].Status = StatusQuarantined
	again, _ := store.Load(ctx)
	if again[0].Status != StatusTrusted {
		t.Fatal("store must clone records on read")
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Upsert(ctx, nil); err == nil {
		t.Fatal("nil record must be rejected")
	}
	if err := store.Upsert(ctx, &PeerRecord{}); err == nil {
		t.Fatal("empty ID must be rejected")
	}
}
