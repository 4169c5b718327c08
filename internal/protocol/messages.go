package protocol

// HelloMsg opens an agent session.
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Speed           float64           `json:"speed,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WelcomeMsg answers HELLO with the agent id and world parameters.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AgentID         string      `json:"agent_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID     string `json:"world_id"`
	TickRateHz  int    `json:"tick_rate_hz"`
	Seed        int64  `json:"seed"`
	Height      int    `json:"height"`
	BoundaryR   int    `json:"boundary_r"`
	Clearance   int    `json:"clearance"`
	Engine      string `json:"engine"`
	Transitions string `json:"route_transitions"`
}

// WALK (client -> server): route the sender's agent to the ground under target.
type WalkMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ID              string     `json:"id"`
	Target          [3]float64 `json:"target"`
}

// LOOK (client -> server): turn an idle agent toward target.
type LookMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ID              string     `json:"id"`
	Target          [3]float64 `json:"target"`
}

// SET_VOXEL (client -> server): place (value > 0) or remove (value 0) a voxel.
type SetVoxelMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Pos             [3]int `json:"pos"`
	Value           int    `json:"value"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick"`
	Walking         bool   `json:"walking"`
}

// FRAME (server -> clients and observers), once per tick.
type FrameMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	WorldID         string       `json:"world_id"`
	Tick            uint64       `json:"tick"`
	Agents          []AgentState `json:"agents"`
}

type AgentState struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      string       `json:"kind"` // "npc" | "player"
	Hue       float64      `json:"hue"`
	Pos       [3]float64   `json:"pos"`
	Rot       float64      `json:"rot"`
	Walking   bool         `json:"walking"`
	Waypoints [][3]float64 `json:"waypoints,omitempty"`
}

// SUBSCRIBE (observer -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Waypoints       bool   `json:"waypoints,omitempty"`
}

func NewAck(ackFor string, tick uint64) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		AckFor:          ackFor,
		ServerTick:      tick,
	}
}

// BootstrapResponse is served to observers before they open the stream.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}
