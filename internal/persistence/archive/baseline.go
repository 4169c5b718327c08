package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"voxelnav.ai/internal/persistence/snapshot"
)

type BaselineMeta struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	Seed      int64  `json:"seed"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveBaseline copies a snapshot that lands on an everyTicks boundary into
// `worldDir/archives/tick_<N>/`. Archived snapshots are replay baselines and
// are never pruned. It returns the archived path and archived=true when a copy
// was made.
func ArchiveBaseline(worldDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks int) (archivedPath string, archived bool, err error) {
	if everyTicks <= 0 || snap.Header.Tick == 0 || snap.Header.Tick%uint64(everyTicks) != 0 {
		return "", false, nil
	}

	archiveDir := BaselineDir(worldDir, snap.Header.Tick)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := BaselineMeta{
		WorldID:   snap.Header.WorldID,
		Tick:      snap.Header.Tick,
		Seed:      snap.Seed,
		Digest:    snap.Digest,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func BaselineDir(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%010d", tick))
}

// ReadBaselineMeta loads meta.json from an archive directory.
func ReadBaselineMeta(dir string) (BaselineMeta, error) {
	var m BaselineMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("archive meta: %w", err)
	}
	return m, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
