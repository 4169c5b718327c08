package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"voxelnav.ai/internal/sim/encoding"
	"voxelnav.ai/internal/sim/mathx"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/transport/httpapi"
)

// terrain caches column surface heights fetched from the chunk endpoint.
// Fetches run on one background goroutine; missing chunks draw blank.
type terrain struct {
	base string
	cl   *http.Client

	mu      sync.Mutex
	surface map[[2]int][]int
	pending map[[2]int]bool
	queue   chan [2]int
}

func newTerrain(base string) *terrain {
	t := &terrain{
		base:    base,
		cl:      &http.Client{Timeout: 3 * time.Second},
		surface: map[[2]int][]int{},
		pending: map[[2]int]bool{},
		queue:   make(chan [2]int, 64),
	}
	go t.fetchLoop()
	return t
}

// surfaceY returns the top solid y of column (x,z), or ok=false while the
// chunk is unknown. Unknown chunks are queued for fetching.
func (t *terrain) surfaceY(x, z int) (int, bool) {
	key := [2]int{mathx.FloorDiv(x, store.ChunkSize), mathx.FloorDiv(z, store.ChunkSize)}
	t.mu.Lock()
	cols, ok := t.surface[key]
	if !ok && !t.pending[key] {
		select {
		case t.queue <- key:
			t.pending[key] = true
		default:
		}
	}
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	return cols[mathx.Mod(x, store.ChunkSize)+mathx.Mod(z, store.ChunkSize)*store.ChunkSize], true
}

func (t *terrain) fetchLoop() {
	for key := range t.queue {
		cols, err := t.fetch(key[0], key[1])
		t.mu.Lock()
		delete(t.pending, key)
		if err == nil {
			t.surface[key] = cols
		}
		t.mu.Unlock()
	}
}

func (t *terrain) fetch(cx, cz int) ([]int, error) {
	resp, err := t.cl.Get(fmt.Sprintf("%s/v1/chunks/%d/%d", t.base, cx, cz))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var cr httpapi.ChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}
	blocks, err := encoding.DecodeRLE(cr.Blocks, cr.Size*cr.Size*cr.Height)
	if err != nil {
		return nil, err
	}
	return columnSurfaces(blocks, cr.Size, cr.Height)
}

// columnSurfaces reduces a chunk to the top solid y per column (-1 = empty).
func columnSurfaces(blocks []uint16, size, height int) ([]int, error) {
	if size <= 0 || len(blocks) != size*size*height {
		return nil, fmt.Errorf("chunk shape: %d voxels for size=%d height=%d", len(blocks), size, height)
	}
	out := make([]int, size*size)
	for i := range out {
		out[i] = -1
		for y := height - 1; y >= 0; y-- {
			if blocks[i+y*size*size] != 0 {
				out[i] = y
				break
			}
		}
	}
	return out, nil
}
