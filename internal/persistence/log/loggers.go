package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelnav.ai/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// HourlyWriter appends JSON lines to <dir>/<prefix>-<UTC hour>.jsonl.zst and
// starts a new zstd stream whenever the hour changes. A file is only complete
// for readers after rotation or Close.
type HourlyWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	hour    string
	file    *os.File
	zw      *zstd.Encoder
	buf     *bufio.Writer
	records uint64
}

func NewHourlyWriter(dir, prefix string) *HourlyWriter {
	return &HourlyWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (w *HourlyWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", w.prefix, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if hour := w.now().UTC().Format(hourLayout); hour != w.hour || w.buf == nil {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	w.records++
	return nil
}

// Records is the number of lines written since the writer was created.
func (w *HourlyWriter) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *HourlyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *HourlyWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.dir, w.prefix+"-"+hour+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file, w.zw, w.hour = f, zw, hour
	w.buf = bufio.NewWriterSize(zw, 64*1024)
	return nil
}

func (w *HourlyWriter) closeLocked() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	zErr := w.zw.Close()
	fErr := w.file.Close()
	w.file, w.zw, w.buf = nil, nil, nil
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// RouteLogger records route searches and voxel edits for replay.
type RouteLogger struct{ w *HourlyWriter }

func NewRouteLogger(worldDir string) *RouteLogger {
	return &RouteLogger{w: NewHourlyWriter(RouteDir(worldDir), RoutePrefix)}
}

func (l *RouteLogger) WriteEntry(v world.LogEntry) error { return l.w.Write(v) }
func (l *RouteLogger) Entries() uint64                   { return l.w.Records() }
func (l *RouteLogger) Close() error                      { return l.w.Close() }

const RoutePrefix = "routes"

func RouteDir(worldDir string) string { return filepath.Join(worldDir, "routes") }
