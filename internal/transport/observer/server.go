package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/world"
)

// Server streams FRAMEs to read-only observers on the loopback interface.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			// Loopback is enforced per request, so any page origin may connect.
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldID:         s.world.Config().ID,
			Tick:            s.world.CurrentTick(),
			WorldParams:     s.world.Params(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

const (
	handshakeWait = 5 * time.Second
	idleWait      = 60 * time.Second
	pingEvery     = 25 * time.Second
	writeWait     = 5 * time.Second
)

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
		_, first, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := decodeSubscribe(first)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sess := &session{id: fmt.Sprintf("O%d", s.nextID.Add(1)), conn: conn, out: make(chan []byte, 8)}
		if !s.subscribe(sess, sub) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.unsubscribe(sess.id)
		if s.log != nil {
			s.log.Printf("observer %s subscribed from %s (waypoints=%v)", sess.id, r.RemoteAddr, sub.Waypoints)
		}

		ctx, cancel := context.WithCancel(r.Context())
		done := make(chan struct{})
		go func() {
			defer close(done)
			sess.pump(ctx)
		}()

		// A later SUBSCRIBE replaces the stream options.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idleWait))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(idleWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, err := decodeSubscribe(msg); err == nil {
				s.subscribe(sess, sub)
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type session struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
}

// pump writes queued frames and keeps the connection alive with pings until
// ctx ends, the world closes out, or a write fails.
func (sess *session) pump(ctx context.Context) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case b, ok := <-sess.out:
			if !ok {
				return
			}
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// subscribe registers or updates a session with the world loop. It reports
// false when the loop's join queue is full.
func (s *Server) subscribe(sess *session, sub protocol.SubscribeMsg) bool {
	select {
	case s.world.ObserverJoin() <- world.ObserverJoinRequest{SessionID: sess.id, Waypoints: sub.Waypoints, Out: sess.out}:
		return true
	default:
		return false
	}
}

func (s *Server) unsubscribe(id string) {
	select {
	case s.world.ObserverLeave() <- id:
	default:
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, error) {
	var sub protocol.SubscribeMsg
	base, err := protocol.DecodeValid(msg, &sub)
	if err != nil {
		return sub, err
	}
	if base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
		return sub, fmt.Errorf("observer: unexpected %s/%s", base.Type, base.ProtocolVersion)
	}
	return sub, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.Trim(remoteAddr, "[]")
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
