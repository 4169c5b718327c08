package world

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"sync/atomic"

	"voxelnav.ai/internal/nav/actor"
	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/pathfinder"
	"voxelnav.ai/internal/nav/route"
	"voxelnav.ai/internal/nav/search"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	Seed               int64
	SnapshotEveryTicks int

	Engine      string
	MaxVisited  int
	Transitions route.Transition

	PlayerSpawn grid.Vec3
	PlayerSpeed float64
	Clearance   int
	MaxDelta    float64
	MinY        int

	NPC tuning.NPC
}

// ConfigFromTuning maps the tuning file onto a world config.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		Seed:               seed,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		Engine:             t.Search.Engine,
		MaxVisited:         t.Search.MaxVisited,
		Transitions:        t.Transitions(),
		PlayerSpawn:        grid.Vec3{Y: t.NPC.SpawnY},
		PlayerSpeed:        t.Actor.PlayerSpeed,
		Clearance:          t.Actor.Clearance,
		MaxDelta:           t.Actor.MaxDelta,
		MinY:               t.Actor.MinY,
		NPC:                t.NPC,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.PlayerSpeed <= 0 {
		c.PlayerSpeed = actor.DefaultSpeed
	}
	if c.Clearance < 0 {
		c.Clearance = 0
	}
	if c.MaxDelta <= 0 {
		c.MaxDelta = actor.DefaultMaxDelta
	}
}

type JoinRequest struct {
	Name      string
	Speed     float64
	SessionID string
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// ActionEnvelope carries exactly one decoded client request.
type ActionEnvelope struct {
	AgentID  string
	Walk     *protocol.WalkMsg
	Look     *protocol.LookMsg
	SetVoxel *protocol.SetVoxelMsg
}

type ObserverJoinRequest struct {
	SessionID string
	Waypoints bool
	Out       chan []byte
}

type PathRequest struct {
	From, To  grid.Vec3
	Clearance int
	Resp      chan PathResponse
}

type PathResponse struct {
	Waypoints []grid.Vec3
	Stats     search.Stats
}

type GroundRequest struct {
	Pos       grid.Vec3
	Clearance int
	MinY      int
	Resp      chan GroundResponse
}

type GroundResponse struct {
	OK  bool
	Pos grid.Vec3
}

type StateRequest struct {
	Resp chan StateResponse
}

type StateResponse struct {
	Tick      uint64
	Agents    []protocol.AgentState
	Obstacles []grid.Vec3i
}

type ChunkRequest struct {
	CX, CZ int
	Resp   chan ChunkResponse
}

type ChunkResponse struct {
	Height int
	Loaded bool
	Blocks []uint16 // x fastest, then z, then y
}

type SnapshotRequest struct {
	Resp chan snapshot.SnapshotV1
}

type clientState struct {
	Out chan []byte
}

type observerState struct {
	Waypoints bool
	Out       chan []byte
}

// World owns terrain, agents and the pathfinder. Everything except the
// atomics is touched only by the goroutine running Run or Step.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64

	chunks *store.ChunkStore
	pf     *pathfinder.Pathfinder
	nav    *routeTap
	rng    *rand.Rand

	agents    map[string]*Agent
	order     []string // agent ids, sorted
	clients   map[string]*clientState
	observers map[string]*observerState

	nextPlayerNum uint64

	inbox        chan ActionEnvelope
	join         chan JoinRequest
	leave        chan string
	observerJoin chan ObserverJoinRequest
	observerLeft chan string
	pathReq      chan PathRequest
	groundReq    chan GroundRequest
	stateReq     chan StateRequest
	chunkReq     chan ChunkRequest
	snapshotReq  chan SnapshotRequest
	reload       chan tuning.Tuning
	stop         chan struct{}

	// nil disables route logging.
	routeLogger RouteLogger

	// Receives periodic snapshots; the receiver writes them to disk.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
	counts  counters
}

func New(cfg WorldConfig, chunks *store.ChunkStore, logger *log.Logger) (*World, error) {
	cfg.applyDefaults()
	if chunks == nil {
		return nil, fmt.Errorf("world: nil chunk store")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	pf, err := pathfinder.Open(context.Background(), chunks, pathfinder.Options{
		Engine:      cfg.Engine,
		MaxVisited:  cfg.MaxVisited,
		Transitions: cfg.Transitions,
	})
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	w := &World{
		cfg:          cfg,
		log:          logger,
		chunks:       chunks,
		pf:           pf,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		agents:       map[string]*Agent{},
		clients:      map[string]*clientState{},
		observers:    map[string]*observerState{},
		inbox:        make(chan ActionEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		leave:        make(chan string, 64),
		observerJoin: make(chan ObserverJoinRequest, 16),
		observerLeft: make(chan string, 16),
		pathReq:      make(chan PathRequest, 64),
		groundReq:    make(chan GroundRequest, 64),
		stateReq:     make(chan StateRequest, 64),
		chunkReq:     make(chan ChunkRequest, 16),
		snapshotReq:  make(chan SnapshotRequest, 4),
		reload:       make(chan tuning.Tuning, 1),
		stop:         make(chan struct{}),
	}
	w.nav = &routeTap{w: w, pf: pf}
	w.spawnNPCs()
	w.publishMetrics(0)
	return w, nil
}

// spawnNPCs places the wandering agents on a circle around the origin.
func (w *World) spawnNPCs() {
	n := w.cfg.NPC.Count
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi / float64(n) * float64(i)
		spawn := w.liftToSurface(grid.Vec3{
			X: math.Sin(angle) * w.cfg.NPC.SpawnRadius,
			Y: w.cfg.NPC.SpawnY,
			Z: math.Cos(angle) * w.cfg.NPC.SpawnRadius,
		})
		hue := w.rng.Float64()
		speed := w.cfg.NPC.SpeedMin + w.rng.Float64()*(w.cfg.NPC.SpeedMax-w.cfg.NPC.SpeedMin)
		id := fmt.Sprintf("N%02d", i+1)
		a := w.newAgent(id, fmt.Sprintf("npc_%d", i), KindNPC, spawn, speed)
		a.Hue = hue
		if !a.act.Grounded() {
			w.log.Printf("npc %s spawned over no ground at %v", id, spawn)
		}
	}
}

// liftToSurface raises pos to the terrain surface when the column is taller
// than pos, so downward ground scans start above the ground.
func (w *World) liftToSurface(pos grid.Vec3) grid.Vec3 {
	c := grid.Floor(pos)
	if top := w.chunks.SurfaceY(c.X, c.Z); float64(top) > pos.Y {
		pos.Y = float64(top)
	}
	return pos
}

func (w *World) newAgent(id, name, kind string, spawn grid.Vec3, speed float64) *Agent {
	a := &Agent{
		ID:   id,
		Name: name,
		Kind: kind,
		act: actor.New(w.nav, actor.Config{
			Spawn:     spawn,
			Speed:     speed,
			Clearance: w.cfg.Clearance,
			MinY:      w.cfg.MinY,
			MaxDelta:  w.cfg.MaxDelta,
		}),
	}
	w.agents[id] = a
	w.order = insertSorted(w.order, id)
	return a
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) SetRouteLogger(l RouteLogger) { w.routeLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest { return w.join }
func (w *World) Leave() chan<- string { return w.leave }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string { return w.observerLeft }
func (w *World) PathQuery() chan<- PathRequest { return w.pathReq }
func (w *World) GroundQuery() chan<- GroundRequest { return w.groundReq }
func (w *World) StateQuery() chan<- StateRequest { return w.stateReq }
func (w *World) ChunkQuery() chan<- ChunkRequest { return w.chunkReq }
func (w *World) SnapshotQuery() chan<- SnapshotRequest { return w.snapshotReq }
func (w *World) ReloadTuning() chan<- tuning.Tuning { return w.reload }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Height is fixed at construction and safe to read from any goroutine.
func (w *World) Height() int { return w.chunks.Gen.Height }

// Params describes the world to joining clients.
func (w *World) Params() protocol.WorldParams {
	return protocol.WorldParams{
		WorldID:     w.cfg.ID,
		TickRateHz:  w.cfg.TickRateHz,
		Seed:        w.cfg.Seed,
		Height:      w.chunks.Gen.Height,
		BoundaryR:   w.chunks.Gen.BoundaryR,
		Clearance:   w.cfg.Clearance,
		Engine:      w.pf.Engine(),
		Transitions: w.pf.Transitions().String(),
	}
}
