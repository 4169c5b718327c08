package protocol

import "encoding/json"

const Version = "1.0"

// Wire message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeWalk      = "WALK"
	TypeLook      = "LOOK"
	TypeSetVoxel  = "SET_VOXEL"
	TypeAck       = "ACK"
	TypeFrame     = "FRAME"
	TypeSubscribe = "SUBSCRIBE"
)

// BaseMessage is decoded first to pick the concrete message type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
