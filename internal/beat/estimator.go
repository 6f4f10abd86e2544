package beat

import "fmt"

// Weights builds the period weight vector for a window of w gaps.
//
// Weights grow linearly from oldest to most recent: the i-th gap (1-based,
// oldest first) gets i / (1+2+...+w). The vector has length w, sums to 1
// and is non-decreasing.
func Weights(w int) []float64 {
	if w <= 0 {
		return nil
	}
	sum := float64(w*(w+1)) / 2
	out := make([]float64, w)
	for i := range out {
		out[i] = float64(i+1) / sum
	}
	return out
}

// Estimator computes the smoothed inter-beat period from a History.
type Estimator struct {
	weights       []float64
	defaultPeriod float64
}

// NewEstimator creates an estimator over a window of w gaps that falls back
// to defaultPeriod during cold start.
func NewEstimator(w int, defaultPeriod float64) *Estimator {
	return &Estimator{
		weights:       Weights(w),
		defaultPeriod: defaultPeriod,
	}
}

// Window returns the number of gaps the estimator averages.
func (e *Estimator) Window() int { return len(e.weights) }

// WeightVector returns a copy of the weights, oldest first.
func (e *Estimator) WeightVector() []float64 {
	return append([]float64(nil), e.weights...)
}

// DefaultPeriod returns the cold-start period in seconds.
func (e *Estimator) DefaultPeriod() float64 { return e.defaultPeriod }

// Estimate returns the period estimate for h and whether it is the
// cold-start default. With W or fewer timestamps the default is returned;
// otherwise the last W gaps are combined with the weight vector.
func (e *Estimator) Estimate(h *History) (period float64, coldStart bool) {
	w := len(e.weights)
	if h.Len() <= w {
		return e.defaultPeriod, true
	}
	gaps := h.Gaps(w)
	for i, g := range gaps {
		period += e.weights[i] * g
	}
	return period, false
}

// BPM converts a period in seconds to beats per minute.
func BPM(period float64) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrNonPositivePeriod, period)
	}
	return 60.0 / period, nil
}
