package search

import (
	"container/heap"

	"voxelnav.ai/internal/nav/grid"
)

// AStar is a best-first search over the step model with a consistent
// heuristic, so the first time the goal is popped its route is optimal.
type AStar struct{}

type node struct {
	pos    grid.Vec3i
	parent grid.Vec3i
	g      float64
	f      float64
	seq    int
	index  int
	closed bool
}

type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// heuristic never overestimates: every step moves one cell horizontally and
// costs 1, plus 0.25 when it also changes elevation by one.
func heuristic(a, b grid.Vec3i) float64 {
	dxz := abs(a.X-b.X) + abs(a.Z-b.Z)
	dy := abs(a.Y - b.Y)
	m := dxz
	if dy > m {
		m = dy
	}
	return float64(m) + 0.25*float64(dy)
}

func (AStar) Search(host Host, from, to grid.Vec3i, maxVisited int) Stats {
	nodes := make(map[grid.Vec3i]*node, 256)
	open := &nodeHeap{}
	seq := 0

	start := &node{pos: from, parent: from, f: heuristic(from, to)}
	nodes[from] = start
	heap.Push(open, start)

	visited := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		cur.closed = true
		if cur.pos == to {
			parents := make(map[grid.Vec3i]grid.Vec3i, len(nodes))
			for p, n := range nodes {
				parents[p] = n.parent
			}
			n := emit(host, parents, from, to)
			return Stats{Visited: visited, Found: true, Cells: n}
		}
		visited++
		if visited > maxVisited {
			return Stats{Visited: visited}
		}
		for _, s := range steps {
			np := cur.pos.Add(s.d)
			if ex, ok := nodes[np]; ok && ex.closed {
				continue
			}
			if !host.CanWalkAt(np.X, np.Y, np.Z) {
				continue
			}
			g := cur.g + s.cost
			if ex, ok := nodes[np]; ok {
				if g < ex.g {
					ex.g = g
					ex.f = g + heuristic(np, to)
					ex.parent = cur.pos
					heap.Fix(open, ex.index)
				}
				continue
			}
			seq++
			nn := &node{pos: np, parent: cur.pos, g: g, f: g + heuristic(np, to), seq: seq}
			nodes[np] = nn
			heap.Push(open, nn)
		}
	}
	return Stats{Visited: visited}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
