package world

import (
	"sort"

	"voxelnav.ai/internal/nav/actor"
	"voxelnav.ai/internal/protocol"
)

const (
	KindNPC    = "npc"
	KindPlayer = "player"
)

// Agent is a world participant driven by an actor.
type Agent struct {
	ID   string
	Name string
	Kind string
	Hue  float64

	// NPC: seconds left before the next wander.
	sleep float64
	// Player joined without a speed and follows actor.player_speed.
	defaultSpeed bool

	act *actor.Actor
}

func (a *Agent) Actor() *actor.Actor { return a.act }

func (a *Agent) state(withWaypoints bool) protocol.AgentState {
	st := protocol.AgentState{
		ID:      a.ID,
		Name:    a.Name,
		Kind:    a.Kind,
		Hue:     a.Hue,
		Pos:     a.act.Position().Array(),
		Rot:     a.act.Rotation(),
		Walking: a.act.IsWalking(),
	}
	if withWaypoints {
		for _, wp := range a.act.Waypoints() {
			st.Waypoints = append(st.Waypoints, wp.Array())
		}
	}
	return st
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}
