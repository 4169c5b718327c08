// Package httpapi serves the JSON debug API. Every request runs inside the
// world loop through its request/response channels.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/encoding"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/world"
)

const defaultTimeout = 2 * time.Second

var errBusy = errors.New("httpapi: world busy")

type Server struct {
	world   *world.World
	log     *log.Logger
	timeout time.Duration
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{world: w, log: logger, timeout: defaultTimeout}
}

type PathRequest struct {
	From      [3]float64 `json:"from"`
	To        [3]float64 `json:"to"`
	Clearance int        `json:"clearance"`
}

type PathResponse struct {
	Waypoints [][3]float64 `json:"waypoints"`
	Found     bool         `json:"found"`
	Visited   int          `json:"visited"`
	Tick      uint64       `json:"tick"`
}

type GroundRequest struct {
	Pos       [3]float64 `json:"pos"`
	Clearance int        `json:"clearance"`
	MinY      int        `json:"min_y"`
}

type GroundResponse struct {
	OK  bool       `json:"ok"`
	Pos [3]float64 `json:"pos"`
}

type AgentsResponse struct {
	Tick   uint64                `json:"tick"`
	Agents []protocol.AgentState `json:"agents"`
}

type ObstaclesResponse struct {
	Tick      uint64   `json:"tick"`
	Obstacles [][3]int `json:"obstacles"`
}

// ChunkResponse carries one chunk's voxels, x fastest then z then y, as
// encoding.EncodeRLE output.
type ChunkResponse struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Size   int    `json:"size"`
	Height int    `json:"height"`
	Loaded bool   `json:"loaded"`
	Blocks string `json:"blocks_rle"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler returns the routed API with permissive CORS for browser tools.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/path", s.handlePath).Methods(http.MethodPost)
	api.HandleFunc("/ground", s.handleGround).Methods(http.MethodPost)
	api.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleAgent).Methods(http.MethodGet)
	api.HandleFunc("/obstacles", s.handleObstacles).Methods(http.MethodGet)
	api.HandleFunc("/chunks/{cx}/{cz}", s.handleChunk).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "invalid JSON")
		return
	}
	if msg := s.checkClearance(req.Clearance); msg != "" {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, msg)
		return
	}
	resp := make(chan world.PathResponse, 1)
	pr, err := roundTrip(r.Context(), s.timeout, s.world.PathQuery(), world.PathRequest{
		From:      grid.FromArray(req.From),
		To:        grid.FromArray(req.To),
		Clearance: req.Clearance,
		Resp:      resp,
	}, resp)
	if err != nil {
		writeBusy(w)
		return
	}
	out := PathResponse{
		Waypoints: make([][3]float64, 0, len(pr.Waypoints)),
		Found:     pr.Stats.Found,
		Visited:   pr.Stats.Visited,
		Tick:      s.world.CurrentTick(),
	}
	for _, p := range pr.Waypoints {
		out.Waypoints = append(out.Waypoints, p.Array())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGround(w http.ResponseWriter, r *http.Request) {
	var req GroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "invalid JSON")
		return
	}
	if msg := s.checkClearance(req.Clearance); msg != "" {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, msg)
		return
	}
	resp := make(chan world.GroundResponse, 1)
	gr, err := roundTrip(r.Context(), s.timeout, s.world.GroundQuery(), world.GroundRequest{
		Pos:       grid.FromArray(req.Pos),
		Clearance: req.Clearance,
		MinY:      req.MinY,
		Resp:      resp,
	}, resp)
	if err != nil {
		writeBusy(w)
		return
	}
	writeJSON(w, http.StatusOK, GroundResponse{OK: gr.OK, Pos: gr.Pos.Array()})
}

// checkClearance bounds headroom by the world height; every walkability
// check scans that many cells.
func (s *Server) checkClearance(c int) string {
	if h := s.world.Height(); c < 0 || c > h {
		return fmt.Sprintf("clearance must be in [0,%d]", h)
	}
	return ""
}

func (s *Server) state(ctx context.Context) (world.StateResponse, error) {
	resp := make(chan world.StateResponse, 1)
	return roundTrip(ctx, s.timeout, s.world.StateQuery(), world.StateRequest{Resp: resp}, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r.Context())
	if err != nil {
		writeBusy(w)
		return
	}
	writeJSON(w, http.StatusOK, AgentsResponse{Tick: st.Tick, Agents: st.Agents})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.state(r.Context())
	if err != nil {
		writeBusy(w)
		return
	}
	for _, a := range st.Agents {
		if a.ID == id {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeError(w, http.StatusNotFound, protocol.ErrUnknownAgent, "no agent "+id)
}

func (s *Server) handleObstacles(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r.Context())
	if err != nil {
		writeBusy(w)
		return
	}
	out := ObstaclesResponse{Tick: st.Tick, Obstacles: make([][3]int, 0, len(st.Obstacles))}
	for _, c := range st.Obstacles {
		out.Obstacles = append(out.Obstacles, c.Array())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cx, errX := strconv.Atoi(vars["cx"])
	cz, errZ := strconv.Atoi(vars["cz"])
	if errX != nil || errZ != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrBadRequest, "chunk coordinates must be integers")
		return
	}
	resp := make(chan world.ChunkResponse, 1)
	cr, err := roundTrip(r.Context(), s.timeout, s.world.ChunkQuery(), world.ChunkRequest{CX: cx, CZ: cz, Resp: resp}, resp)
	if err != nil {
		writeBusy(w)
		return
	}
	writeJSON(w, http.StatusOK, ChunkResponse{
		CX:     cx,
		CZ:     cz,
		Size:   store.ChunkSize,
		Height: cr.Height,
		Loaded: cr.Loaded,
		Blocks: encoding.EncodeRLE(cr.Blocks),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Metrics())
}

// roundTrip sends req into the world loop and waits for its answer. The
// response channel must be buffered so a late answer never blocks the loop.
func roundTrip[Req, Resp any](ctx context.Context, timeout time.Duration, ch chan<- Req, req Req, resp <-chan Resp) (Resp, error) {
	var zero Resp
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case ch <- req:
	case <-ctx.Done():
		return zero, errBusy
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return zero, errBusy
	}
}

func writeBusy(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "world did not answer in time")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
