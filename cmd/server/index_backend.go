package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelnav.ai/internal/persistence/indexdb"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.RouteLogger
	Close() error
	UpsertMeta(worldID string, seed int64, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported VN_INDEX_BACKEND: %s", backend)
	}
}

type multiRouteLogger struct {
	a world.RouteLogger
	b world.RouteLogger
}

func (m multiRouteLogger) WriteEntry(entry world.LogEntry) error {
	if m.a != nil {
		_ = m.a.WriteEntry(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEntry(entry)
	}
	return nil
}
