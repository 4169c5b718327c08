// Package tuning loads the server's tuning.yaml.
package tuning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelnav.ai/internal/nav/route"
	"voxelnav.ai/internal/nav/search"
)

var ErrInvalid = errors.New("tuning: invalid")

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	ArchiveEveryTicks  int `yaml:"archive_every_ticks" json:"archive_every_ticks"`

	World  World  `yaml:"world" json:"world"`
	Search Search `yaml:"search" json:"search"`
	Actor  Actor  `yaml:"actor" json:"actor"`
	NPC    NPC    `yaml:"npc" json:"npc"`
}

type World struct {
	Height     int `yaml:"height" json:"height"`
	BoundaryR  int `yaml:"boundary_r" json:"boundary_r"`
	BaseHeight int `yaml:"base_height" json:"base_height"`
	Amplitude  int `yaml:"amplitude" json:"amplitude"`
	NoiseCell  int `yaml:"noise_cell" json:"noise_cell"`
}

type Search struct {
	Engine           string `yaml:"engine" json:"engine"`
	MaxVisited       int    `yaml:"max_visited" json:"max_visited"`
	RouteTransitions string `yaml:"route_transitions" json:"route_transitions"`
}

type Actor struct {
	PlayerSpeed float64 `yaml:"player_speed" json:"player_speed"`
	Clearance   int     `yaml:"clearance" json:"clearance"`
	MaxDelta    float64 `yaml:"max_delta" json:"max_delta"`
	MinY        int     `yaml:"min_y" json:"min_y"`
}

type NPC struct {
	Count       int     `yaml:"count" json:"count"`
	SpawnRadius float64 `yaml:"spawn_radius" json:"spawn_radius"`
	SpawnY      float64 `yaml:"spawn_y" json:"spawn_y"`
	SpeedMin    float64 `yaml:"speed_min" json:"speed_min"`
	SpeedMax    float64 `yaml:"speed_max" json:"speed_max"`
	SleepMaxSec float64 `yaml:"sleep_max_sec" json:"sleep_max_sec"`
	WanderRange float64 `yaml:"wander_range" json:"wander_range"`
	WanderClamp float64 `yaml:"wander_clamp" json:"wander_clamp"`
	WanderY     float64 `yaml:"wander_y" json:"wander_y"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		ArchiveEveryTicks:  72000,
		World: World{
			Height:     64,
			BoundaryR:  128,
			BaseHeight: 16,
			Amplitude:  4,
			NoiseCell:  24,
		},
		Search: Search{
			Engine:           "astar",
			MaxVisited:       search.DefaultMaxVisited,
			RouteTransitions: route.TransitionClimbFirst.String(),
		},
		Actor: Actor{
			PlayerSpeed: 10,
			Clearance:   3,
			MaxDelta:    0.2,
		},
		NPC: NPC{
			Count:       32,
			SpawnRadius: 10,
			SpawnY:      16,
			SpeedMin:    5,
			SpeedMax:    10,
			SleepMaxSec: 16,
			WanderRange: 16,
			WanderClamp: 64,
			WanderY:     16,
		},
	}
}

// Load reads path over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz must be > 0", ErrInvalid)
	case t.SnapshotEveryTicks < 0 || t.ArchiveEveryTicks < 0:
		return fmt.Errorf("%w: snapshot cadences must be >= 0", ErrInvalid)
	case t.World.Height <= 0:
		return fmt.Errorf("%w: world.height must be > 0", ErrInvalid)
	case t.World.BaseHeight < 0 || t.World.BaseHeight+t.World.Amplitude >= t.World.Height:
		return fmt.Errorf("%w: world.base_height+amplitude must fit below world.height", ErrInvalid)
	case t.Search.MaxVisited < 0:
		return fmt.Errorf("%w: search.max_visited must be >= 0", ErrInvalid)
	case t.Actor.PlayerSpeed <= 0:
		return fmt.Errorf("%w: actor.player_speed must be > 0", ErrInvalid)
	case t.Actor.Clearance < 0 || t.Actor.Clearance >= t.World.Height:
		return fmt.Errorf("%w: actor.clearance must be in [0, world.height)", ErrInvalid)
	case t.Actor.MaxDelta <= 0:
		return fmt.Errorf("%w: actor.max_delta must be > 0", ErrInvalid)
	case t.NPC.Count < 0:
		return fmt.Errorf("%w: npc.count must be >= 0", ErrInvalid)
	case t.NPC.Count > 0 && (t.NPC.SpeedMin <= 0 || t.NPC.SpeedMax < t.NPC.SpeedMin):
		return fmt.Errorf("%w: npc speeds must satisfy 0 < speed_min <= speed_max", ErrInvalid)
	case t.NPC.SleepMaxSec < 0 || t.NPC.WanderRange < 0 || t.NPC.WanderClamp < 0:
		return fmt.Errorf("%w: npc wander parameters must be >= 0", ErrInvalid)
	}
	if _, ok := search.Lookup(t.Search.Engine); !ok {
		return fmt.Errorf("%w: search.engine %q (have %v)", ErrInvalid, t.Search.Engine, search.EngineNames())
	}
	if _, err := route.ParseTransition(t.Search.RouteTransitions); err != nil {
		return fmt.Errorf("%w: search.route_transitions: %v", ErrInvalid, err)
	}
	return nil
}

// Transitions returns the parsed route transition mode. Call after Validate.
func (t Tuning) Transitions() route.Transition {
	m, _ := route.ParseTransition(t.Search.RouteTransitions)
	return m
}

// CanonicalJSON is the form stored in the index db meta table.
func (t Tuning) CanonicalJSON() string {
	b, _ := json.Marshal(t)
	return string(b)
}
