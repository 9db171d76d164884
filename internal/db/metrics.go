package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/metrics"
)

// GetHeadwayBaseline retrieves the cross-run baseline of a station, nil
// when none was saved yet
func (db *DB) GetHeadwayBaseline(ctx context.Context, stationID string) (*metrics.HeadwayBaseline, error) {
	query := `
		SELECT station_id, mean_seconds, stddev_seconds, sample_count, run_count
		FROM headway_baselines
		WHERE station_id = ?
	`

	var b metrics.HeadwayBaseline
	err := db.conn.QueryRowContext(ctx, query, stationID).Scan(
		&b.StationID,
		&b.MeanSeconds,
		&b.StdDevSeconds,
		&b.SampleCount,
		&b.RunCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveHeadwayBaseline upserts a baseline record
func (db *DB) SaveHeadwayBaseline(ctx context.Context, b metrics.HeadwayBaseline) error {
	db.LockWrite()
	defer db.UnlockWrite()

	query := `
		INSERT INTO headway_baselines (station_id, mean_seconds, stddev_seconds, sample_count, run_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (station_id) DO UPDATE SET
			mean_seconds = excluded.mean_seconds,
			stddev_seconds = excluded.stddev_seconds,
			sample_count = excluded.sample_count,
			run_count = excluded.run_count,
			updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		b.StationID,
		b.MeanSeconds,
		b.StdDevSeconds,
		b.SampleCount,
		b.RunCount,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListHeadwayBaselines returns every saved baseline ordered by station
func (db *DB) ListHeadwayBaselines(ctx context.Context) ([]metrics.HeadwayBaseline, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT station_id, mean_seconds, stddev_seconds, sample_count, run_count
		FROM headway_baselines
		ORDER BY station_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", err)
	}
	defer rows.Close()

	var out []metrics.HeadwayBaseline
	for rows.Next() {
		var b metrics.HeadwayBaseline
		if err := rows.Scan(&b.StationID, &b.MeanSeconds, &b.StdDevSeconds, &b.SampleCount, &b.RunCount); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
