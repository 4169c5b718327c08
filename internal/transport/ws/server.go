package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	// bounds on waiting for a world loop that may have stopped
	lateJoinWait time.Duration
	leaveWait    time.Duration

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world:        w,
		log:          logger,
		lateJoinWait: 5 * time.Second,
		leaveWait:    time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, out := s.handshake(r.Context(), conn)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Every inbound message is validated before it reaches the world.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, ack := decodeAction(agentID, msg)
			if ack != nil {
				s.reply(out, *ack)
				continue
			}
			select {
			case s.world.Inbox() <- env:
			default:
				busy := protocol.NewAck(actionID(env), s.world.CurrentTick())
				busy.Code, busy.Message = protocol.ErrWorldBusy, "world inbox full"
				s.reply(out, busy)
			}
		}

		s.leave(agentID)
	}
}

// decodeAction validates one inbound frame. A non-nil ACK is the rejection
// to send back instead of forwarding.
func decodeAction(agentID string, msg []byte) (world.ActionEnvelope, *protocol.AckMsg) {
	env := world.ActionEnvelope{AgentID: agentID}
	reject := func(ackFor, text string) (world.ActionEnvelope, *protocol.AckMsg) {
		ack := protocol.NewAck(ackFor, 0)
		ack.Code, ack.Message = protocol.ErrProtoBadRequest, text
		return env, &ack
	}

	base, err := protocol.Validate(msg)
	if err != nil {
		return reject(base.ID, err.Error())
	}
	if base.ProtocolVersion != protocol.Version {
		return reject(base.ID, "bad protocol_version")
	}
	switch base.Type {
	case protocol.TypeWalk:
		var m protocol.WalkMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return reject(base.ID, err.Error())
		}
		env.Walk = &m
	case protocol.TypeLook:
		var m protocol.LookMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return reject(base.ID, err.Error())
		}
		env.Look = &m
	case protocol.TypeSetVoxel:
		var m protocol.SetVoxelMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return reject(base.ID, err.Error())
		}
		env.SetVoxel = &m
	default:
		return reject(base.ID, "unexpected message type "+base.Type)
	}
	return env, nil
}

func actionID(env world.ActionEnvelope) string {
	switch {
	case env.Walk != nil:
		return env.Walk.ID
	case env.Look != nil:
		return env.Look.ID
	case env.SetVoxel != nil:
		return env.SetVoxel.ID
	}
	return ""
}

func (s *Server) reply(out chan []byte, ack protocol.AckMsg) {
	if ack.ServerTick == 0 {
		ack.ServerTick = s.world.CurrentTick()
	}
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	sendLatest(out, b)
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	var hello protocol.HelloMsg
	base, err := protocol.DecodeValid(msg, &hello)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	join := world.JoinRequest{
		Name:      hello.AgentName,
		Speed:     hello.Speed,
		SessionID: uuid.NewString(),
		Out:       out,
		Resp:      respCh,
	}
	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case s.world.Join() <- join:
	case <-joinCtx.Done():
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, protocol.ErrWorldBusy), time.Now().Add(time.Second))
		return "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-joinCtx.Done():
		// The join may still land; release it if it does.
		go s.releaseLateJoin(respCh)
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(resp.Welcome.AgentID)
		return "", nil
	}
	s.log.Printf("agent %s joined as %q session=%s", resp.Welcome.AgentID, hello.AgentName, join.SessionID)
	return resp.Welcome.AgentID, out
}

func (s *Server) leave(agentID string) {
	select {
	case s.world.Leave() <- agentID:
	case <-time.After(s.leaveWait):
		s.log.Printf("leave for %s not delivered; world loop stopped", agentID)
	}
}

// releaseLateJoin waits a bounded time for a join the handshake gave up on
// and removes the agent if the world admitted it.
func (s *Server) releaseLateJoin(respCh <-chan world.JoinResponse) {
	select {
	case resp := <-respCh:
		s.leave(resp.Welcome.AgentID)
	case <-time.After(s.lateJoinWait):
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
