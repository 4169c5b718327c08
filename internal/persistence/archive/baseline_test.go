package archive

import (
	"os"
	"path/filepath"
	"testing"

	"voxelnav.ai/internal/persistence/snapshot"
)

func TestArchiveBaseline_CopiesOnBoundary(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := filepath.Join(worldDir, "snapshots", "600.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: "w1", Tick: 600},
		Seed:   42,
		Digest: "abc",
	}

	if _, ok, err := ArchiveBaseline(worldDir, src, snap, 400); err != nil || ok {
		t.Fatalf("off-boundary archived=%v err=%v", ok, err)
	}
	path, ok, err := ArchiveBaseline(worldDir, src, snap, 300)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if filepath.Dir(path) != BaselineDir(worldDir, 600) {
		t.Fatalf("path=%s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", got, want)
	}
	meta, err := ReadBaselineMeta(filepath.Dir(path))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Tick != 600 || meta.WorldID != "w1" || meta.Digest != "abc" || meta.Snapshot != "600.snap.zst" {
		t.Fatalf("meta=%+v", meta)
	}
}
