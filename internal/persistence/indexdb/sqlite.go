package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the route log. The JSONL
// log remains the source of truth; the index drops writes when it falls
// behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRoute    atomic.Uint64
	dropVoxel    atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqEntry reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	entry    world.LogEntry
	snapshot SnapshotRow
}

type SnapshotRow struct {
	Tick     uint64 `json:"tick"`
	WorldID  string `json:"world_id"`
	Path     string `json:"path"`
	Seed     int64  `json:"seed"`
	Height   int    `json:"height"`
	Chunks   int    `json:"chunks"`
	Digest   string `json:"digest"`
	Recorded string `json:"recorded_at"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropRouteTotal    uint64 `json:"drop_route_total"`
	DropVoxelTotal    uint64 `json:"drop_voxel_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// NPC wandering alone produces a route every few seconds per NPC.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// The index is rebuildable from the route log; WAL + synchronous=NORMAL.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS routes (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			engine TEXT NOT NULL,
			from_x REAL NOT NULL,
			from_y REAL NOT NULL,
			from_z REAL NOT NULL,
			to_x REAL NOT NULL,
			to_y REAL NOT NULL,
			to_z REAL NOT NULL,
			clearance INTEGER NOT NULL,
			found INTEGER NOT NULL,
			visited INTEGER NOT NULL,
			waypoints INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_agent_tick ON routes(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS voxel_edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voxel_edits_pos_tick ON voxel_edits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			world_id TEXT NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			height INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEntry queues one route log entry. It never blocks the world loop.
func (s *SQLiteIndex) WriteEntry(entry world.LogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEntry, entry: entry}:
	default:
		// Full queue: the route log still has the record.
		if entry.Kind == world.LogKindVoxel {
			s.dropVoxel.Add(1)
		} else {
			s.dropRoute.Add(1)
		}
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SnapshotRow{
		Tick:     snap.Header.Tick,
		WorldID:  snap.Header.WorldID,
		Path:     path,
		Seed:     snap.Seed,
		Height:   snap.Height,
		Chunks:   len(snap.Chunks),
		Digest:   snap.Digest,
		Recorded: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropRouteTotal:    s.dropRoute.Load(),
		DropVoxelTotal:    s.dropVoxel.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

// UpsertMeta stores the tuning actually applied (canonical JSON and its
// digest) along with the world identity.
func (s *SQLiteIndex) UpsertMeta(worldID string, seed int64, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b := []byte(tune.CanonicalJSON())
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"world_id", worldID},
		{"seed", fmt.Sprint(seed)},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, r := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Statements are prepared once and bound to each tx with tx.Stmt.
	insertRoute, _ := s.db.Prepare(`INSERT OR REPLACE INTO routes(tick,seq,agent_id,engine,from_x,from_y,from_z,to_x,to_y,to_z,clearance,found,visited,waypoints,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertVoxel, _ := s.db.Prepare(`INSERT OR REPLACE INTO voxel_edits(tick,seq,agent_id,x,y,z,from_block,to_block) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,world_id,path,seed,height,chunks,digest,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRoute, insertVoxel, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastTick uint64
		seq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// Retry on the next request.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEntry:
			e := r.entry
			// Route and voxel rows share one per-tick sequence, which is the
			// order the world applied them in.
			if e.Tick != lastTick {
				lastTick = e.Tick
				seq = 0
			}
			cur := seq
			seq++
			switch {
			case e.Route != nil:
				rt := e.Route
				raw, _ := json.Marshal(rt)
				found := 0
				if rt.Found {
					found = 1
				}
				exec(insertRoute,
					int64(e.Tick), cur, rt.AgentID, rt.Engine,
					rt.From[0], rt.From[1], rt.From[2],
					rt.To[0], rt.To[1], rt.To[2],
					rt.Clearance, found, rt.Visited, len(rt.Waypoints),
					string(raw),
				)
			case e.Voxel != nil:
				v := e.Voxel
				exec(insertVoxel, int64(e.Tick), cur, v.AgentID, v.Pos[0], v.Pos[1], v.Pos[2], int64(v.From), int64(v.To))
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.WorldID, sn.Path, sn.Seed, sn.Height, sn.Chunks, sn.Digest, sn.Recorded)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
