// Package recorder writes periodic snapshots of a running simulation to a
// report store.
package recorder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/db"
	"github.com/mini-rodalies-3d/transitsim/internal/departure"
	"github.com/mini-rodalies-3d/transitsim/internal/logging"
	"github.com/mini-rodalies-3d/transitsim/internal/metrics"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

// Source is the simulation being recorded
type Source interface {
	Clock() *clock.Clock
	Buses(ctx context.Context) ([]bus.Status, error)
	Stations(ctx context.Context) ([]station.Stats, error)
	Path(ctx context.Context, busID string) (tracking.Path, error)
	Headways(ctx context.Context) ([]departure.Headway, error)
}

// Store persists run reports. Implemented by *db.DB and *db.Postgres.
type Store interface {
	metrics.BaselineStore
	CreateRun(ctx context.Context, run db.Run) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error
	CreateSnapshot(ctx context.Context, runID string, polledAt, simulatedAt time.Time) (string, error)
	UpsertBusPositions(ctx context.Context, runID, snapshotID string, polledAt time.Time, positions []db.BusPosition) error
	UpsertStationStats(ctx context.Context, runID, snapshotID string, polledAt time.Time, stats []db.StationStat) error
	UpsertHeadways(ctx context.Context, runID string, headways []db.HeadwayStat) error
	Cleanup(ctx context.Context, retention time.Duration) error
}

// Recorder writes one run to a Store
type Recorder struct {
	store     Store
	source    Source
	learner   *metrics.BaselineLearner
	run       db.Run
	retention time.Duration
}

// New creates a recorder for run. A run without an id gets a fresh one.
func New(store Store, source Source, run db.Run, retention time.Duration) *Recorder {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return &Recorder{
		store:     store,
		source:    source,
		learner:   metrics.NewBaselineLearner(store),
		run:       run,
		retention: retention,
	}
}

func (r *Recorder) RunID() string {
	return r.run.RunID
}

// Start registers the run with the store
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.store.CreateRun(ctx, r.run); err != nil {
		return err
	}
	log.Printf("Recorder: run %s started", r.run.RunID)
	return nil
}

// Poll writes one snapshot of buses, stations and headways
func (r *Recorder) Poll(ctx context.Context) error {
	polledAt := time.Now().UTC()
	simulatedAt := r.source.Clock().Now()

	buses, err := r.source.Buses(ctx)
	if err != nil {
		return fmt.Errorf("failed to query buses: %w", err)
	}
	stations, err := r.source.Stations(ctx)
	if err != nil {
		return fmt.Errorf("failed to query stations: %w", err)
	}
	headways, err := r.source.Headways(ctx)
	if err != nil {
		return fmt.Errorf("failed to query headways: %w", err)
	}

	snapshotID, err := r.store.CreateSnapshot(ctx, r.run.RunID, polledAt, simulatedAt)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	positions := make([]db.BusPosition, 0, len(buses))
	for _, b := range buses {
		positions = append(positions, r.busPosition(ctx, b))
	}
	if err := r.store.UpsertBusPositions(ctx, r.run.RunID, snapshotID, polledAt, positions); err != nil {
		return fmt.Errorf("failed to write bus positions: %w", err)
	}

	stats := make([]db.StationStat, 0, len(stations))
	for _, s := range stations {
		stats = append(stats, db.StationStat{
			StationID:     s.ID,
			Name:          s.Name,
			Waiting:       s.Waiting,
			Arrivals:      s.Arrivals,
			Boarded:       s.Boarded,
			Delivered:     s.Delivered,
			ServingRoutes: s.ServingRoutes,
			SimulatedAt:   s.At,
		})
	}
	if err := r.store.UpsertStationStats(ctx, r.run.RunID, snapshotID, polledAt, stats); err != nil {
		return fmt.Errorf("failed to write station stats: %w", err)
	}

	if err := r.store.UpsertHeadways(ctx, r.run.RunID, headwayStats(headways)); err != nil {
		return fmt.Errorf("failed to write headways: %w", err)
	}

	logging.Debugf("Recorder: snapshot %s with %d buses, %d stations", snapshotID, len(positions), len(stats))
	return nil
}

func (r *Recorder) busPosition(ctx context.Context, b bus.Status) db.BusPosition {
	pos := db.BusPosition{
		BusID:       b.BusID,
		RouteID:     b.RouteID,
		Phase:       b.Phase,
		Bearing:     b.Bearing,
		Onboard:     b.Onboard,
		Capacity:    b.Capacity,
		Boarded:     b.Boarded,
		Delivered:   b.Delivered,
		Departures:  b.Departures,
		SimulatedAt: b.At,
	}
	if b.StationID != "" {
		stationID := b.StationID
		pos.StationID = &stationID
	}
	if b.Positioned {
		pos.Latitude = b.Position.Lat
		pos.Longitude = b.Position.Lng
	}

	path, err := r.source.Path(ctx, b.BusID)
	if err != nil {
		// Non-fatal: the snapshot is still useful without the odometer
		log.Printf("Recorder: failed to read path of bus %s: %v", b.BusID, err)
	} else {
		pos.OdometerMeters = path.TotalMeters()
	}
	return pos
}

func headwayStats(headways []departure.Headway) []db.HeadwayStat {
	out := make([]db.HeadwayStat, 0, len(headways))
	for _, h := range headways {
		stat := db.HeadwayStat{
			StationID:     h.StationID,
			SampleCount:   h.Count,
			MeanSeconds:   h.MeanSeconds,
			StdDevSeconds: h.StdDevSeconds,
		}
		if !h.LastDeparture.IsZero() {
			at := h.LastDeparture
			stat.LastDeparture = &at
		}
		if h.LastBusID != "" {
			busID := h.LastBusID
			stat.LastBusID = &busID
		}
		out = append(out, stat)
	}
	return out
}

// Cleanup drops history older than the retention period
func (r *Recorder) Cleanup(ctx context.Context) error {
	return r.store.Cleanup(ctx, r.retention)
}

// Loop polls every interval until ctx is done. Errors are logged.
func (r *Recorder) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil {
				log.Printf("Recorder: poll error: %v", err)
			}
			if err := r.Cleanup(ctx); err != nil {
				log.Printf("Recorder: cleanup error: %v", err)
			}
		case <-ctx.Done():
			log.Println("Recorder: loop stopped")
			return
		}
	}
}

// Finish folds the run's headways into the cross-run baselines and marks
// the run finished. The simulation must still answer queries.
func (r *Recorder) Finish(ctx context.Context) error {
	headways, err := r.source.Headways(ctx)
	if err != nil {
		return fmt.Errorf("failed to query headways: %w", err)
	}

	samples := make([]metrics.HeadwaySample, 0, len(headways))
	for _, h := range headways {
		samples = append(samples, metrics.HeadwaySample{
			StationID:     h.StationID,
			Count:         h.Count,
			MeanSeconds:   h.MeanSeconds,
			StdDevSeconds: h.StdDevSeconds,
		})
	}
	updated := r.learner.Learn(ctx, samples)

	if err := r.store.FinishRun(ctx, r.run.RunID, time.Now().UTC()); err != nil {
		return err
	}
	log.Printf("Recorder: run %s finished, %d headway baselines updated", r.run.RunID, updated)
	return nil
}
