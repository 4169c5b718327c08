package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

type RouteRow struct {
	Tick      uint64     `json:"tick"`
	Seq       int        `json:"seq"`
	AgentID   string     `json:"agent_id"`
	Engine    string     `json:"engine"`
	From      [3]float64 `json:"from"`
	To        [3]float64 `json:"to"`
	Clearance int        `json:"clearance"`
	Found     bool       `json:"found"`
	Visited   int        `json:"visited"`
	Waypoints int        `json:"waypoints"`
}

type RouteSummary struct {
	Total      int     `json:"total"`
	Found      int     `json:"found"`
	AvgVisited float64 `json:"avg_visited"`
	MaxVisited int     `json:"max_visited"`
	VoxelEdits int     `json:"voxel_edits"`
	FirstTick  uint64  `json:"first_tick"`
	LastTick   uint64  `json:"last_tick"`
}

// Routes lists the most recent routes, newest first. An empty agentID
// matches every agent.
func (s *SQLiteIndex) Routes(ctx context.Context, agentID string, limit int) ([]RouteRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, seq, agent_id, engine, from_x, from_y, from_z, to_x, to_y, to_z, clearance, found, visited, waypoints
		FROM routes
		WHERE (? = '' OR agent_id = ?)
		ORDER BY tick DESC, seq DESC
		LIMIT ?`, agentID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteRow
	for rows.Next() {
		var r RouteRow
		var found int
		if err := rows.Scan(&r.Tick, &r.Seq, &r.AgentID, &r.Engine,
			&r.From[0], &r.From[1], &r.From[2], &r.To[0], &r.To[1], &r.To[2],
			&r.Clearance, &found, &r.Visited, &r.Waypoints); err != nil {
			return nil, err
		}
		r.Found = found != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Summary(ctx context.Context) (RouteSummary, error) {
	var sum RouteSummary
	var avg sql.NullFloat64
	var maxVisited, first, last sql.NullInt64
	var found sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(found), AVG(visited), MAX(visited), MIN(tick), MAX(tick) FROM routes`).
		Scan(&sum.Total, &found, &avg, &maxVisited, &first, &last)
	if err != nil {
		return sum, err
	}
	sum.Found = int(found.Int64)
	sum.AvgVisited = avg.Float64
	sum.MaxVisited = int(maxVisited.Int64)
	sum.FirstTick = uint64(first.Int64)
	sum.LastTick = uint64(last.Int64)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM voxel_edits`).Scan(&sum.VoxelEdits); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *SQLiteIndex) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, world_id, path, seed, height, chunks, digest, recorded_at
		FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Tick, &r.WorldID, &r.Path, &r.Seed, &r.Height, &r.Chunks, &r.Digest, &r.Recorded); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Meta returns one meta value, or "" when the key is unset.
func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}
