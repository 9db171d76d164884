package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListRuns returns the most recent runs first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.run_id, r.started_at_utc, r.finished_at_utc, r.time_scale, r.seed,
			r.station_count, r.bus_count,
			(SELECT COUNT(*) FROM sim_snapshots s WHERE s.run_id = r.run_id)
		FROM sim_runs r
		ORDER BY r.started_at_utc DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.RunID, &startedAt, &finishedAt, &r.TimeScale, &r.Seed,
			&r.StationCount, &r.BusCount, &r.SnapshotCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse start of run %s: %w", r.RunID, err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end of run %s: %w", r.RunID, err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
