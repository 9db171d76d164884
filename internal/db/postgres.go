package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mini-rodalies-3d/transitsim/internal/metrics"
)

//go:embed schema_postgres.sql
var postgresSchemaSQL string

// Postgres is the run-report store backed by a PostgreSQL pool
type Postgres struct {
	pool *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Connected to PostgreSQL database")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	log.Println("Database schema ensured")
	return nil
}

func (p *Postgres) CreateRun(ctx context.Context, run Run) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sim_runs (run_id, started_at_utc, time_scale, seed, station_count, bus_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.RunID, run.StartedAt.UTC(), run.TimeScale, run.Seed, run.StationCount, run.BusCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (p *Postgres) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		"UPDATE sim_runs SET finished_at_utc = $1 WHERE run_id = $2",
		finishedAt.UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (p *Postgres) CreateSnapshot(ctx context.Context, runID string, polledAt, simulatedAt time.Time) (string, error) {
	snapshotID := uuid.New().String()
	_, err := p.pool.Exec(ctx,
		"INSERT INTO sim_snapshots (snapshot_id, run_id, polled_at_utc, simulated_at_utc) VALUES ($1, $2, $3, $4)",
		snapshotID, runID, polledAt.UTC(), simulatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	return snapshotID, nil
}

func (p *Postgres) UpsertBusPositions(ctx context.Context, runID, snapshotID string, polledAt time.Time, positions []BusPosition) error {
	batch := &pgx.Batch{}
	for _, pos := range positions {
		batch.Queue(`
			INSERT INTO bus_positions_current (
				run_id, bus_id, snapshot_id, route_id, station_id, phase,
				latitude, longitude, bearing, onboard, capacity, boarded, delivered, departures,
				odometer_meters, simulated_at_utc, polled_at_utc, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
			ON CONFLICT (run_id, bus_id) DO UPDATE SET
				snapshot_id = EXCLUDED.snapshot_id,
				route_id = EXCLUDED.route_id,
				station_id = EXCLUDED.station_id,
				phase = EXCLUDED.phase,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				bearing = EXCLUDED.bearing,
				onboard = EXCLUDED.onboard,
				capacity = EXCLUDED.capacity,
				boarded = EXCLUDED.boarded,
				delivered = EXCLUDED.delivered,
				departures = EXCLUDED.departures,
				odometer_meters = EXCLUDED.odometer_meters,
				simulated_at_utc = EXCLUDED.simulated_at_utc,
				polled_at_utc = EXCLUDED.polled_at_utc,
				updated_at = NOW()`,
			runID, pos.BusID, snapshotID, pos.RouteID, pos.StationID, pos.Phase,
			pos.Latitude, pos.Longitude, pos.Bearing, pos.Onboard, pos.Capacity, pos.Boarded, pos.Delivered, pos.Departures,
			pos.OdometerMeters, pos.SimulatedAt.UTC(), polledAt.UTC(),
		)
		batch.Queue(`
			INSERT INTO bus_positions_history (
				run_id, bus_id, snapshot_id, route_id, phase,
				latitude, longitude, onboard, odometer_meters, simulated_at_utc, polled_at_utc
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT DO NOTHING`,
			runID, pos.BusID, snapshotID, pos.RouteID, pos.Phase,
			pos.Latitude, pos.Longitude, pos.Onboard, pos.OdometerMeters, pos.SimulatedAt.UTC(), polledAt.UTC(),
		)
	}
	if err := p.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert bus positions: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertStationStats(ctx context.Context, runID, snapshotID string, polledAt time.Time, stats []StationStat) error {
	batch := &pgx.Batch{}
	for _, s := range stats {
		batch.Queue(`
			INSERT INTO station_stats_current (
				run_id, station_id, snapshot_id, name, waiting, arrivals, boarded, delivered,
				serving_routes, simulated_at_utc, polled_at_utc, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			ON CONFLICT (run_id, station_id) DO UPDATE SET
				snapshot_id = EXCLUDED.snapshot_id,
				name = EXCLUDED.name,
				waiting = EXCLUDED.waiting,
				arrivals = EXCLUDED.arrivals,
				boarded = EXCLUDED.boarded,
				delivered = EXCLUDED.delivered,
				serving_routes = EXCLUDED.serving_routes,
				simulated_at_utc = EXCLUDED.simulated_at_utc,
				polled_at_utc = EXCLUDED.polled_at_utc,
				updated_at = NOW()`,
			runID, s.StationID, snapshotID, s.Name, s.Waiting, s.Arrivals, s.Boarded, s.Delivered,
			strings.Join(s.ServingRoutes, ","), s.SimulatedAt.UTC(), polledAt.UTC(),
		)
	}
	if err := p.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert station stats: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertHeadways(ctx context.Context, runID string, headways []HeadwayStat) error {
	batch := &pgx.Batch{}
	for _, h := range headways {
		batch.Queue(`
			INSERT INTO headway_stats (
				run_id, station_id, sample_count, mean_seconds, stddev_seconds,
				last_departure_utc, last_bus_id, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (run_id, station_id) DO UPDATE SET
				sample_count = EXCLUDED.sample_count,
				mean_seconds = EXCLUDED.mean_seconds,
				stddev_seconds = EXCLUDED.stddev_seconds,
				last_departure_utc = EXCLUDED.last_departure_utc,
				last_bus_id = EXCLUDED.last_bus_id,
				updated_at = NOW()`,
			runID, h.StationID, h.SampleCount, h.MeanSeconds, h.StdDevSeconds,
			h.LastDeparture, h.LastBusID,
		)
	}
	if err := p.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to upsert headways: %w", err)
	}
	return nil
}

func (p *Postgres) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Cleanup(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention).UTC()
	total := int64(0)
	for _, table := range []string{"bus_positions_history", "sim_snapshots"} {
		tag, err := p.pool.Exec(ctx, "DELETE FROM "+table+" WHERE polled_at_utc < $1", cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	if total > 0 {
		log.Printf("Cleanup: deleted %d records older than %s", total, retention)
	}
	return nil
}

func (p *Postgres) GetHeadwayBaseline(ctx context.Context, stationID string) (*metrics.HeadwayBaseline, error) {
	var b metrics.HeadwayBaseline
	err := p.pool.QueryRow(ctx, `
		SELECT station_id, mean_seconds, stddev_seconds, sample_count, run_count
		FROM headway_baselines
		WHERE station_id = $1`, stationID,
	).Scan(&b.StationID, &b.MeanSeconds, &b.StdDevSeconds, &b.SampleCount, &b.RunCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *Postgres) SaveHeadwayBaseline(ctx context.Context, b metrics.HeadwayBaseline) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO headway_baselines (station_id, mean_seconds, stddev_seconds, sample_count, run_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (station_id) DO UPDATE SET
			mean_seconds = EXCLUDED.mean_seconds,
			stddev_seconds = EXCLUDED.stddev_seconds,
			sample_count = EXCLUDED.sample_count,
			run_count = EXCLUDED.run_count,
			updated_at = NOW()`,
		b.StationID, b.MeanSeconds, b.StdDevSeconds, b.SampleCount, b.RunCount,
	)
	return err
}

func (p *Postgres) ListHeadwayBaselines(ctx context.Context) ([]metrics.HeadwayBaseline, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT station_id, mean_seconds, stddev_seconds, sample_count, run_count
		FROM headway_baselines
		ORDER BY station_id`)
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

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
		SELECT r.run_id, r.started_at_utc, r.finished_at_utc, r.time_scale, r.seed,
			r.station_count, r.bus_count,
			(SELECT COUNT(*) FROM sim_snapshots s WHERE s.run_id = r.run_id)
		FROM sim_runs r
		ORDER BY r.started_at_utc DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.TimeScale, &r.Seed,
			&r.StationCount, &r.BusCount, &r.SnapshotCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
