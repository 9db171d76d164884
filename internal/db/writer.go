package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateRun records the start of a simulation run
func (db *DB) CreateRun(ctx context.Context, run Run) error {
	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sim_runs (run_id, started_at_utc, time_scale, seed, station_count, bus_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, formatTime(run.StartedAt), run.TimeScale, run.Seed, run.StationCount, run.BusCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stamps the end of a run
func (db *DB) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx,
		"UPDATE sim_runs SET finished_at_utc = ? WHERE run_id = ?",
		formatTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// CreateSnapshot creates a new snapshot record and returns its ID
func (db *DB) CreateSnapshot(ctx context.Context, runID string, polledAt, simulatedAt time.Time) (string, error) {
	db.LockWrite()
	defer db.UnlockWrite()

	snapshotID := uuid.New().String()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sim_snapshots (snapshot_id, run_id, polled_at_utc, simulated_at_utc) VALUES (?, ?, ?, ?)",
		snapshotID, runID, formatTime(polledAt), formatTime(simulatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	return snapshotID, nil
}

// UpsertBusPositions updates the current position of each bus and appends
// it to the history
func (db *DB) UpsertBusPositions(ctx context.Context, runID, snapshotID string, polledAt time.Time, positions []BusPosition) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	polledAtStr := formatTime(polledAt)

	currentStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bus_positions_current (
			run_id, bus_id, snapshot_id, route_id, station_id, phase,
			latitude, longitude, bearing, onboard, capacity, boarded, delivered, departures,
			odometer_meters, simulated_at_utc, polled_at_utc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (run_id, bus_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			route_id = excluded.route_id,
			station_id = excluded.station_id,
			phase = excluded.phase,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bearing = excluded.bearing,
			onboard = excluded.onboard,
			capacity = excluded.capacity,
			boarded = excluded.boarded,
			delivered = excluded.delivered,
			departures = excluded.departures,
			odometer_meters = excluded.odometer_meters,
			simulated_at_utc = excluded.simulated_at_utc,
			polled_at_utc = excluded.polled_at_utc,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare current statement: %w", err)
	}
	defer currentStmt.Close()

	historyStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO bus_positions_history (
			run_id, bus_id, snapshot_id, route_id, phase,
			latitude, longitude, onboard, odometer_meters, simulated_at_utc, polled_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history statement: %w", err)
	}
	defer historyStmt.Close()

	for _, p := range positions {
		simulatedAt := formatTime(p.SimulatedAt)
		_, err := currentStmt.ExecContext(ctx,
			runID, p.BusID, snapshotID, p.RouteID, p.StationID, p.Phase,
			p.Latitude, p.Longitude, p.Bearing, p.Onboard, p.Capacity, p.Boarded, p.Delivered, p.Departures,
			p.OdometerMeters, simulatedAt, polledAtStr,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert bus %s: %w", p.BusID, err)
		}

		_, err = historyStmt.ExecContext(ctx,
			runID, p.BusID, snapshotID, p.RouteID, p.Phase,
			p.Latitude, p.Longitude, p.Onboard, p.OdometerMeters, simulatedAt, polledAtStr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history for bus %s: %w", p.BusID, err)
		}
	}

	return tx.Commit()
}

// UpsertStationStats updates the current statistics of each station
func (db *DB) UpsertStationStats(ctx context.Context, runID, snapshotID string, polledAt time.Time, stats []StationStat) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO station_stats_current (
			run_id, station_id, snapshot_id, name, waiting, arrivals, boarded, delivered,
			serving_routes, simulated_at_utc, polled_at_utc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (run_id, station_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			name = excluded.name,
			waiting = excluded.waiting,
			arrivals = excluded.arrivals,
			boarded = excluded.boarded,
			delivered = excluded.delivered,
			serving_routes = excluded.serving_routes,
			simulated_at_utc = excluded.simulated_at_utc,
			polled_at_utc = excluded.polled_at_utc,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	polledAtStr := formatTime(polledAt)
	for _, s := range stats {
		_, err := stmt.ExecContext(ctx,
			runID, s.StationID, snapshotID, s.Name, s.Waiting, s.Arrivals, s.Boarded, s.Delivered,
			strings.Join(s.ServingRoutes, ","), formatTime(s.SimulatedAt), polledAtStr,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert station %s: %w", s.StationID, err)
		}
	}

	return tx.Commit()
}

// UpsertHeadways updates the headway summary of each station for a run
func (db *DB) UpsertHeadways(ctx context.Context, runID string, headways []HeadwayStat) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO headway_stats (
			run_id, station_id, sample_count, mean_seconds, stddev_seconds,
			last_departure_utc, last_bus_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (run_id, station_id) DO UPDATE SET
			sample_count = excluded.sample_count,
			mean_seconds = excluded.mean_seconds,
			stddev_seconds = excluded.stddev_seconds,
			last_departure_utc = excluded.last_departure_utc,
			last_bus_id = excluded.last_bus_id,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range headways {
		_, err := stmt.ExecContext(ctx,
			runID, h.StationID, h.SampleCount, h.MeanSeconds, h.StdDevSeconds,
			formatTimePtr(h.LastDeparture), h.LastBusID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert headway for %s: %w", h.StationID, err)
		}
	}

	return tx.Commit()
}
