package search

import "voxelnav.ai/internal/nav/grid"

// BFS treats every step as unit cost. Routes have the fewest cells, not the
// lowest weighted cost.
type BFS struct{}

func (BFS) Search(host Host, from, to grid.Vec3i, maxVisited int) Stats {
	parents := map[grid.Vec3i]grid.Vec3i{from: from}
	queue := make([]grid.Vec3i, 0, 256)
	queue = append(queue, from)

	visited := 0
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		if cur == to {
			n := emit(host, parents, from, to)
			return Stats{Visited: visited, Found: true, Cells: n}
		}
		visited++
		if visited > maxVisited {
			return Stats{Visited: visited}
		}
		for _, s := range steps {
			np := cur.Add(s.d)
			if _, seen := parents[np]; seen {
				continue
			}
			if !host.CanWalkAt(np.X, np.Y, np.Z) {
				continue
			}
			parents[np] = cur
			queue = append(queue, np)
		}
	}
	return Stats{Visited: visited}
}
