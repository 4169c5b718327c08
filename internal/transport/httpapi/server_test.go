package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/encoding"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
)

func newWorld(t *testing.T, npcs int) *world.World {
	t.Helper()
	tu := tuning.Defaults()
	tu.NPC.Count = npcs
	g := store.DefaultWorldGen(3)
	g.Flat = true
	w, err := world.New(world.ConfigFromTuning("api_test", 3, tu), store.NewChunkStore(g), nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func startAPI(t *testing.T, npcs int) (*world.World, *httptest.Server) {
	t.Helper()
	w := newWorld(t, npcs)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return w, srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestPathAndGround(t *testing.T) {
	_, srv := startAPI(t, 0)

	var pr PathResponse
	code := postJSON(t, srv.URL+"/v1/path", PathRequest{From: [3]float64{0, 16, 0}, To: [3]float64{5, 16, 5}}, &pr)
	if code != http.StatusOK || !pr.Found {
		t.Fatalf("code=%d resp=%+v", code, pr)
	}
	if n := len(pr.Waypoints); n != 10 || pr.Waypoints[n-1] != [3]float64{5.5, 16, 5.5} {
		t.Fatalf("waypoints=%v", pr.Waypoints)
	}

	var gr GroundResponse
	if code := postJSON(t, srv.URL+"/v1/ground", GroundRequest{Pos: [3]float64{2.7, 40, -1.2}, Clearance: 3}, &gr); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if !gr.OK || gr.Pos != [3]float64{2, 16, -2} {
		t.Fatalf("ground=%+v", gr)
	}

	var e errorBody
	if code := postJSON(t, srv.URL+"/v1/path", PathRequest{Clearance: -1}, &e); code != http.StatusBadRequest || e.Code != protocol.ErrBadRequest {
		t.Fatalf("code=%d err=%+v", code, e)
	}
}

func TestClearanceBoundedByWorldHeight(t *testing.T) {
	w, srv := startAPI(t, 0)
	height := w.Height()

	for _, c := range []int{height + 1, 1_000_000_000} {
		var e errorBody
		if code := postJSON(t, srv.URL+"/v1/path", PathRequest{From: [3]float64{0, 16, 0}, To: [3]float64{1, 16, 0}, Clearance: c}, &e); code != http.StatusBadRequest || e.Code != protocol.ErrBadRequest {
			t.Fatalf("path clearance=%d: code=%d err=%+v", c, code, e)
		}
		e = errorBody{}
		if code := postJSON(t, srv.URL+"/v1/ground", GroundRequest{Pos: [3]float64{0, 40, 0}, Clearance: c}, &e); code != http.StatusBadRequest || e.Code != protocol.ErrBadRequest {
			t.Fatalf("ground clearance=%d: code=%d err=%+v", c, code, e)
		}
	}

	// the open sky above a flat world clears the full height
	var pr PathResponse
	if code := postJSON(t, srv.URL+"/v1/path", PathRequest{From: [3]float64{0, 16, 0}, To: [3]float64{1, 16, 0}, Clearance: height}, &pr); code != http.StatusOK {
		t.Fatalf("clearance=height: code=%d", code)
	}
	if !pr.Found {
		t.Fatalf("no route under open sky: %+v", pr)
	}
}

func TestAgentsAndObstacles(t *testing.T) {
	_, srv := startAPI(t, 4)

	var ar AgentsResponse
	if code := getJSON(t, srv.URL+"/v1/agents", &ar); code != http.StatusOK || len(ar.Agents) != 4 {
		t.Fatalf("code=%d agents=%d", code, len(ar.Agents))
	}
	var one protocol.AgentState
	if code := getJSON(t, srv.URL+"/v1/agents/N02", &one); code != http.StatusOK || one.ID != "N02" {
		t.Fatalf("code=%d agent=%+v", code, one)
	}
	var e errorBody
	if code := getJSON(t, srv.URL+"/v1/agents/A9", &e); code != http.StatusNotFound || e.Code != protocol.ErrUnknownAgent {
		t.Fatalf("code=%d err=%+v", code, e)
	}
	var or ObstaclesResponse
	if code := getJSON(t, srv.URL+"/v1/obstacles", &or); code != http.StatusOK || len(or.Obstacles) != 4 {
		t.Fatalf("code=%d obstacles=%v", code, or.Obstacles)
	}
	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz=%d", code)
	}
}

func TestBusyWorld(t *testing.T) {
	// The loop never runs, so the request can queue but is never answered.
	w := newWorld(t, 0)
	s := NewServer(w, nil)
	s.timeout = 50 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	var e errorBody
	if code := getJSON(t, srv.URL+"/v1/agents", &e); code != http.StatusServiceUnavailable || e.Code != protocol.ErrWorldBusy {
		t.Fatalf("code=%d err=%+v", code, e)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := startAPI(t, 0)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/path", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin=%q", got)
	}
}

func TestChunkVoxels(t *testing.T) {
	w, srv := startAPI(t, 0)
	before := w.Metrics().LoadedChunks

	var cr ChunkResponse
	if code := getJSON(t, srv.URL+"/v1/chunks/3/-2", &cr); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if cr.CX != 3 || cr.CZ != -2 || cr.Size != store.ChunkSize || cr.Height != 64 || cr.Loaded {
		t.Fatalf("resp=%+v", cr)
	}
	blocks, err := encoding.DecodeRLE(cr.Blocks, cr.Size*cr.Size*cr.Height)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(blocks) != cr.Size*cr.Size*cr.Height {
		t.Fatalf("len=%d", len(blocks))
	}
	layer := cr.Size * cr.Size
	if blocks[16*layer] == 0 || blocks[17*layer] != 0 {
		t.Fatalf("flat surface: y16=%d y17=%d", blocks[16*layer], blocks[17*layer])
	}

	var eb errorBody
	if code := getJSON(t, srv.URL+"/v1/chunks/x/1", &eb); code != http.StatusBadRequest || eb.Code != protocol.ErrBadRequest {
		t.Fatalf("bad coords: status=%d body=%+v", code, eb)
	}
	if got := w.Metrics().LoadedChunks; got != before {
		t.Fatalf("chunk read loaded chunks: %d -> %d", before, got)
	}
}
