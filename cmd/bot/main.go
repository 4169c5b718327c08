package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "agent name")
		speed  = flag.Float64("speed", 0, "walk speed in blocks/s (0 = server default)")
		every  = flag.Uint64("every", 100, "ticks between walk attempts")
		radius = flag.Int("radius", 7, "max horizontal distance of a walk target")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Speed:           *speed,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{
		conn:   conn,
		log:    logger,
		every:  *every,
		radius: *radius,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.agentID = w.AgentID
			logger.Printf("WELCOME agent_id=%s world=%s tick_rate=%d seed=%d", w.AgentID, w.WorldParams.WorldID, w.WorldParams.TickRateHz, w.WorldParams.Seed)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("ACK %s rejected code=%s msg=%s", ack.AckFor, ack.Code, ack.Message)
			}

		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			b.handleFrame(&f)
		}
	}
}

type bot struct {
	conn    *websocket.Conn
	log     *log.Logger
	agentID string
	every   uint64
	radius  int
	rng     *rand.Rand
}

// handleFrame sends a WALK to a random nearby cell whenever the agent is idle
// on a walk boundary, and turns to face the origin in between.
func (b *bot) handleFrame(f *protocol.FrameMsg) {
	if b.agentID == "" || b.every == 0 {
		return
	}
	var self *protocol.AgentState
	for i := range f.Agents {
		if f.Agents[i].ID == b.agentID {
			self = &f.Agents[i]
			break
		}
	}
	if self == nil || self.Walking {
		return
	}

	switch f.Tick % b.every {
	case 0:
		span := 2*b.radius + 1
		target := [3]float64{
			self.Pos[0] + float64(b.rng.Intn(span)-b.radius),
			self.Pos[1],
			self.Pos[2] + float64(b.rng.Intn(span)-b.radius),
		}
		walk := protocol.WalkMsg{
			Type:            protocol.TypeWalk,
			ProtocolVersion: protocol.Version,
			ID:              "W_" + uuid.NewString(),
			Target:          target,
		}
		if err := b.conn.WriteJSON(walk); err != nil {
			b.log.Printf("send WALK: %v", err)
		}
	case b.every / 2:
		look := protocol.LookMsg{
			Type:            protocol.TypeLook,
			ProtocolVersion: protocol.Version,
			ID:              "L_" + uuid.NewString(),
			Target:          [3]float64{0, self.Pos[1], 0},
		}
		_ = b.conn.WriteJSON(look)
	}
}
