package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"voxelnav.ai/internal/persistence/archive"
	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
	"voxelnav.ai/internal/transport/httpapi"
	"voxelnav.ai/internal/transport/observer"
	"voxelnav.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		flat       = flag.Bool("flat", false, "generate a flat world (fresh worlds only)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite route/snapshot index")
		noWatch    = flag.Bool("no_watch", false, "do not hot-reload tuning.yaml")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	// Terrain: resumed from a snapshot or generated from the seed.
	var chunks *store.ChunkStore
	var resumeTick uint64
	worldSeed := *seed
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		chunks, err = store.FromSnapshot(snap)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		worldSeed = snap.Seed
		resumeTick = snap.Header.Tick
		logger.Printf("resumed from snapshot=%s tick=%d chunks=%d", filepath.Base(snapshotToLoad), snap.Header.Tick, len(snap.Chunks))
	} else {
		g := store.DefaultWorldGen(worldSeed)
		g.Height = tune.World.Height
		g.BoundaryR = tune.World.BoundaryR
		g.BaseHeight = tune.World.BaseHeight
		g.Amplitude = tune.World.Amplitude
		g.NoiseCell = tune.World.NoiseCell
		g.Flat = *flat
		chunks = store.NewChunkStore(g)
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, worldSeed, tune), chunks, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.ResumeAt(resumeTick)

	// Optional: read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertMeta(*worldID, worldSeed, tune); err != nil {
			logger.Printf("index backend: upsert meta: %v", err)
		}
	}

	routeLog := persistlog.NewRouteLogger(worldDir)
	defer routeLog.Close()
	if idx != nil {
		w.SetRouteLogger(multiRouteLogger{a: routeLog, b: idx})
	} else {
		w.SetRouteLogger(routeLog)
	}

	writeSnap := func(snap snapshot.SnapshotV1) {
		path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		if archived, ok, err := archive.ArchiveBaseline(worldDir, path, snap, tune.ArchiveEveryTicks); err != nil {
			logger.Printf("archive baseline: %v", err)
		} else if ok {
			logger.Printf("archived baseline tick=%d path=%s", snap.Header.Tick, archived)
		}
	}

	// The loop has not started yet, so exporting here is race free.
	writeSnap(w.ExportSnapshot())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	}()

	if !*noWatch {
		if err := watchTuning(ctx, *tuningPath, w, logger); err != nil {
			logger.Printf("tuning watch disabled: %v", err)
		}
	}

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	r := mux.NewRouter()
	r.HandleFunc("/metrics", metricsHandler(*worldID, w, idx)).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())
	obsSrv := observer.NewServer(w, logger)
	r.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	r.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	r.PathPrefix("/").Handler(httpapi.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s seed=%d engine=%s", *addr, *worldID, worldSeed, tune.Search.Engine)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-worldDone
	final := w.ExportSnapshot()
	writeSnap(final)
	logger.Printf("stopped at tick=%d", final.Header.Tick)
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
