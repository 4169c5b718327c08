// Package search is the isolated grid-search unit. It sees the voxel world only
// through a Host: a walkability predicate and a result sink.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"voxelnav.ai/internal/nav/grid"
)

const DefaultMaxVisited = 4096

var (
	ErrInvalidOptions = errors.New("search: invalid options")
	ErrUnknownEngine  = errors.New("search: unknown engine")
)

// Host is the two-function boundary between the unit and its caller.
// CanWalkAt is consulted for every candidate cell; AddResult receives the
// route cells from start to goal, start included.
type Host interface {
	CanWalkAt(x, y, z int) bool
	AddResult(x, y, z int)
}

// Stats describes one Pathfind invocation.
type Stats struct {
	Visited int
	Found   bool
	Cells   int
}

// Engine is a grid search strategy. Implementations must be deterministic and
// keep no state between calls.
type Engine interface {
	Search(host Host, from, to grid.Vec3i, maxVisited int) Stats
}

var engines = map[string]func() Engine{
	"astar": func() Engine { return AStar{} },
	"bfs":   func() Engine { return BFS{} },
}

// Lookup returns a fresh engine for name.
func Lookup(name string) (Engine, bool) {
	mk, ok := engines[name]
	if !ok {
		return nil, false
	}
	return mk(), true
}

func EngineNames() []string {
	out := make([]string, 0, len(engines))
	for k := range engines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Options struct {
	Engine     string
	MaxVisited int
}

// Unit is a loaded search engine. It must be bound to exactly one host before
// use and serves one query at a time.
type Unit struct {
	engine     Engine
	name       string
	maxVisited int

	host Host
	busy bool
}

// Load instantiates the unit. Errors here are startup failures.
func Load(ctx context.Context, opts Options) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Engine == "" {
		opts.Engine = "astar"
	}
	if opts.MaxVisited == 0 {
		opts.MaxVisited = DefaultMaxVisited
	}
	if opts.MaxVisited < 0 {
		return nil, fmt.Errorf("%w: max_visited=%d", ErrInvalidOptions, opts.MaxVisited)
	}
	eng, ok := Lookup(opts.Engine)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownEngine, opts.Engine, EngineNames())
	}
	return &Unit{engine: eng, name: opts.Engine, maxVisited: opts.MaxVisited}, nil
}

func (u *Unit) EngineName() string { return u.name }

func (u *Unit) MaxVisited() int { return u.maxVisited }

// Bind attaches the host. Binding twice is a composition error.
func (u *Unit) Bind(h Host) {
	if h == nil {
		panic("search: Bind with nil host")
	}
	if u.host != nil {
		panic("search: unit already bound to a host")
	}
	u.host = h
}

// Pathfind runs one synchronous search. All AddResult calls for this query
// happen before it returns.
func (u *Unit) Pathfind(from, to grid.Vec3i) Stats {
	if u.host == nil {
		panic("search: Pathfind before Bind")
	}
	if u.busy {
		panic("search: Pathfind called while another query is in flight")
	}
	u.busy = true
	defer func() { u.busy = false }()
	return u.engine.Search(u.host, from, to, u.maxVisited)
}

// step is one candidate move. Fixed order keeps searches deterministic.
type step struct {
	d    grid.Vec3i
	cost float64
}

var steps = func() []step {
	horizontal := [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	vertical := []int{0, 1, -1}
	out := make([]step, 0, len(horizontal)*len(vertical))
	for _, h := range horizontal {
		for j, v := range vertical {
			cost := 1.0
			if j > 0 {
				cost = 1.25
			}
			out = append(out, step{d: grid.Vec3i{X: h[0], Y: v, Z: h[1]}, cost: cost})
		}
	}
	return out
}()

// emit reports the chain ending at goal in start-to-goal order.
func emit(host Host, parents map[grid.Vec3i]grid.Vec3i, start, goal grid.Vec3i) int {
	path := []grid.Vec3i{goal}
	for cur := goal; cur != start; {
		cur = parents[cur]
		path = append(path, cur)
	}
	for i := len(path) - 1; i >= 0; i-- {
		host.AddResult(path[i].X, path[i].Y, path[i].Z)
	}
	return len(path)
}
