package metrics

import (
	"context"
	"log"
)

// HeadwayBaseline is the headway distribution of one station merged across runs
type HeadwayBaseline struct {
	StationID     string
	MeanSeconds   float64
	StdDevSeconds float64
	SampleCount   int
	RunCount      int
}

// HeadwaySample is the headway summary a single run produced for a station
type HeadwaySample struct {
	StationID     string
	Count         int
	MeanSeconds   float64
	StdDevSeconds float64
}

// BaselineStore defines the interface for baseline persistence
type BaselineStore interface {
	GetHeadwayBaseline(ctx context.Context, stationID string) (*HeadwayBaseline, error)
	SaveHeadwayBaseline(ctx context.Context, baseline HeadwayBaseline) error
}

// BaselineLearner folds the headways of finished runs into stored baselines
type BaselineLearner struct {
	store BaselineStore
}

func NewBaselineLearner(store BaselineStore) *BaselineLearner {
	return &BaselineLearner{store: store}
}

// Learn merges one run's samples. A station that fails is logged and
// skipped; the count of updated baselines is returned.
func (l *BaselineLearner) Learn(ctx context.Context, samples []HeadwaySample) int {
	updated := 0
	for _, s := range samples {
		if err := l.learnStation(ctx, s); err != nil {
			log.Printf("Baseline: failed to update %s: %v", s.StationID, err)
			continue
		}
		if s.Count > 0 {
			updated++
		}
	}
	return updated
}

func (l *BaselineLearner) learnStation(ctx context.Context, s HeadwaySample) error {
	// A station that saw fewer than two departures has no headway yet
	if s.Count == 0 {
		return nil
	}

	existing, err := l.store.GetHeadwayBaseline(ctx, s.StationID)
	if err != nil {
		return err
	}

	acc := &Welford{}
	runs := 0
	if existing != nil {
		acc = NewWelford(existing.MeanSeconds, existing.StdDevSeconds, existing.SampleCount)
		runs = existing.RunCount
	}
	acc.Merge(NewWelford(s.MeanSeconds, s.StdDevSeconds, s.Count))

	return l.store.SaveHeadwayBaseline(ctx, HeadwayBaseline{
		StationID:     s.StationID,
		MeanSeconds:   acc.Mean(),
		StdDevSeconds: acc.StdDev(),
		SampleCount:   acc.Count(),
		RunCount:      runs + 1,
	})
}
