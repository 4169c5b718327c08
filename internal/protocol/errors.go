package protocol

const (
	// Malformed or out-of-order input.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Rejected by the world.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownAgent  = "E_UNKNOWN_AGENT"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNoRoute       = "E_NO_ROUTE"
	ErrBlocked       = "E_BLOCKED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrUnknownAgent:    {},
	ErrInvalidTarget:   {},
	ErrNoRoute:         {},
	ErrBlocked:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
