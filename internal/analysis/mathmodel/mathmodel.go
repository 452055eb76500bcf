// Package mathmodel provides the stateless numeric primitives shared by the
// factor scoring engine, the action-layer calculator, and the Monte Carlo
// simulator: logistic normalization, weighted aggregation, and clamping.
package mathmodel

import "math"

// LogisticNormalize maps a raw score into (0,1) through the logistic curve
//
//	1 / (1 + e^(-k*(raw - midpoint)))
//
// The steepness k and midpoint are per-factor calibration constants.  The
// curve bounds pathological raw inputs without the discontinuities that
// hard clipping would introduce.
func LogisticNormalize(raw, k, midpoint float64) float64 {
	return 1.0 / (1.0 + math.Exp(-k*(raw-midpoint)))
}

// WeightedMean returns sum(w_i * v_i) / sum(w_i).  A zero total weight
// yields 0 rather than NaN so callers can aggregate sparse inputs safely.
func WeightedMean(values, weights []float64) float64 {
	var sum, total float64
	n := len(values)
	if len(weights) < n {
		n = len(weights)
	}
	for i := 0; i < n; i++ {
		sum += weights[i] * values[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to the unit interval.
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Mean returns the arithmetic mean of samples, 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// StdDev returns the population standard deviation of samples.
func StdDev(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	mean := Mean(samples)
	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n))
}

// Percentile returns the p-th percentile (p in [0,100]) of sorted samples
// using linear interpolation between closest ranks.  The input must already
// be sorted ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	p = Clamp(p, 0, 100)
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
