package metrics

import "math"

// Welford holds running statistics using Welford's online algorithm, so
// headways can be summarised without keeping every observation.
type Welford struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// NewWelford restores a running state from a saved summary.
// stddev is the population standard deviation.
func NewWelford(mean, stddev float64, count int) *Welford {
	if count <= 0 {
		return &Welford{}
	}
	return &Welford{
		count: count,
		mean:  mean,
		m2:    stddev * stddev * float64(count),
	}
}

// Observe adds one observation
func (w *Welford) Observe(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

// Merge folds other into w (Chan et al. parallel combination)
func (w *Welford) Merge(other *Welford) {
	if other == nil || other.count == 0 {
		return
	}
	if w.count == 0 {
		*w = *other
		return
	}
	n := w.count + other.count
	delta := other.mean - w.mean
	w.m2 += other.m2 + delta*delta*float64(w.count)*float64(other.count)/float64(n)
	w.mean += delta * float64(other.count) / float64(n)
	w.count = n
}

func (w *Welford) Count() int { return w.count }

func (w *Welford) Mean() float64 { return w.mean }

// StdDev returns the population standard deviation, 0 below two observations
func (w *Welford) StdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}
