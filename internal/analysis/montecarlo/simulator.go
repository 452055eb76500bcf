// Package montecarlo estimates outcome distributions for matched strategic
// patterns by repeated stochastic sampling.  Each draw perturbs the
// pattern's base score with one independent draw per uncertainty source
// and maps the perturbed sum through a logistic curve, so outcomes stay
// in [0,1] without clipping.  Runs are deterministic for a fixed seed so
// results are reproducible across regenerations and environments.
package montecarlo

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// DefaultIterations is the sample count used when the caller does not
// override it.
const DefaultIterations = 1000

// defaultSuccessThreshold classifies an iteration as a success when no
// pattern-specific threshold is supplied.
const defaultSuccessThreshold = 0.5

// Logistic constants mapping a perturbed raw sum into [0,1].  The
// midpoint pins raw 0.5 to outcome 0.5 so the default success threshold
// keeps its meaning on the normalized scale.
const (
	outcomeSteepness = 4.0
	outcomeMidpoint  = 0.5
)

// Distributions accepted for an uncertainty source.  Empty means
// DistNormal.
const (
	DistNormal  = "normal"
	DistUniform = "uniform"
)

// ConfidenceLevels are the empirical interval bands reported per run.
var ConfidenceLevels = []float64{0.80, 0.90, 0.95}

// Uncertainty describes one stochastic source.  Each iteration adds an
// independent draw from the source's distribution to the base score:
// normal draws are N(Mean, Std), uniform draws cover [Mean-Std, Mean+Std].
type Uncertainty struct {
	Distribution string
	Mean         float64
	Std          float64
}

// Params describes one simulation run.  ExpectedScore is the pattern's
// base outcome in [0,1]; the three multipliers are the pattern's
// calibration constants.
type Params struct {
	ExpectedScore     float64
	PatternMultiplier float64
	IndustryFactor    float64
	TimeDecayFactor   float64

	// SuccessThreshold classifies iterations; zero means the default.
	SuccessThreshold float64

	// Uncertainties holds the per-source perturbations.  An empty map is
	// valid and produces a degenerate (deterministic) distribution.
	Uncertainties map[string]Uncertainty

	// Iterations must be at least 1.  RunPatternSimulation resolves a
	// zero value to the simulator's configured default before validating,
	// so only explicit non-positive counts reach Validate.
	Iterations int

	// Seed fixes the random stream.  Equal params and seed produce
	// bit-identical results.
	Seed int64
}

// Validate rejects parameter sets that would make sampling meaningless.
// It runs before any sampling so an invalid call costs nothing.
func (p *Params) Validate() error {
	if p.ExpectedScore < 0 || p.ExpectedScore > 1 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"expected score %f outside [0,1]", p.ExpectedScore)
	}
	if p.PatternMultiplier <= 0 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"pattern multiplier %f must be positive", p.PatternMultiplier)
	}
	if p.IndustryFactor <= 0 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"industry factor %f must be positive", p.IndustryFactor)
	}
	if p.TimeDecayFactor <= 0 || p.TimeDecayFactor > 1 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"time decay factor %f outside (0,1]", p.TimeDecayFactor)
	}
	if p.Iterations < 1 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"iterations %d must be at least 1", p.Iterations)
	}
	if p.SuccessThreshold < 0 || p.SuccessThreshold > 1 {
		return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
			"success threshold %f outside [0,1]", p.SuccessThreshold)
	}
	for name, u := range p.Uncertainties {
		switch u.Distribution {
		case "", DistNormal, DistUniform:
		default:
			return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
				"uncertainty %q has unknown distribution %q", name, u.Distribution)
		}
		if u.Std <= 0 {
			return errors.Newf(errors.ErrCodeInvalidSimulationParameters,
				"uncertainty %q has non-positive standard deviation %f", name, u.Std)
		}
	}
	return nil
}

// Outcome is the summarized distribution of one simulation run.
type Outcome struct {
	Iterations         int
	Mean               float64
	StdDev             float64
	Median             float64
	SuccessProbability float64
	// ConfidenceIntervals holds the empirical [lo, hi] band per level in
	// ConfidenceLevels, keyed by the level (0.90 -> [p5, p95]).
	ConfidenceIntervals map[float64][2]float64
}

// Interval returns the band for one confidence level, or zeros when the
// level was not computed.
func (o *Outcome) Interval(level float64) [2]float64 {
	return o.ConfidenceIntervals[level]
}

// KPIResults flattens the outcome into the persisted KPI map.
func (o *Outcome) KPIResults() map[string]float64 {
	kpi := map[string]float64{
		"mean":    o.Mean,
		"median":  o.Median,
		"std_dev": o.StdDev,
	}
	for level, band := range o.ConfidenceIntervals {
		pct := int(level*100 + 0.5)
		kpi[fmt.Sprintf("ci%d_low", pct)] = band[0]
		kpi[fmt.Sprintf("ci%d_high", pct)] = band[1]
	}
	return kpi
}

// Simulator runs pattern simulations.  It is stateless; every run builds
// its own seeded random stream, so concurrent runs are safe.
type Simulator struct {
	log               logging.Logger
	defaultIterations int
}

// NewSimulator builds a simulator.  defaultIterations <= 0 falls back to
// DefaultIterations.
func NewSimulator(log logging.Logger, defaultIterations int) *Simulator {
	if log == nil {
		log = logging.Default()
	}
	if defaultIterations <= 0 {
		defaultIterations = DefaultIterations
	}
	return &Simulator{log: log.Named("montecarlo"), defaultIterations: defaultIterations}
}

// RunPatternSimulation samples the outcome model
//
//	raw_i     = expected * multiplier * industry * decay + sum(draw_i per source)
//	outcome_i = 1 / (1 + e^(-k * (raw_i - midpoint)))
//
// with one independent draw per uncertainty source each iteration.  The
// confidence bands are taken from the empirical percentiles of the
// sorted samples, not from a normality assumption, since the composed
// perturbations can produce skew.
func (s *Simulator) RunPatternSimulation(params Params) (*Outcome, error) {
	if params.Iterations == 0 {
		params.Iterations = s.defaultIterations
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	threshold := params.SuccessThreshold
	if threshold == 0 {
		threshold = defaultSuccessThreshold
	}

	base := params.ExpectedScore * params.PatternMultiplier * params.IndustryFactor * params.TimeDecayFactor

	// Sources are applied in sorted name order so the consumed random
	// stream, and therefore the result, is independent of map iteration
	// order.
	sources := make([]string, 0, len(params.Uncertainties))
	for name := range params.Uncertainties {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	rng := rand.New(rand.NewSource(params.Seed))
	samples := make([]float64, params.Iterations)
	successes := 0
	for i := range samples {
		raw := base
		for _, name := range sources {
			u := params.Uncertainties[name]
			switch u.Distribution {
			case DistUniform:
				raw += u.Mean + (2*rng.Float64()-1)*u.Std
			default:
				raw += u.Mean + rng.NormFloat64()*u.Std
			}
		}
		outcome := mathmodel.LogisticNormalize(raw, outcomeSteepness, outcomeMidpoint)
		samples[i] = outcome
		if outcome >= threshold {
			successes++
		}
	}

	sort.Float64s(samples)
	intervals := make(map[float64][2]float64, len(ConfidenceLevels))
	for _, level := range ConfidenceLevels {
		tail := 100 * (1 - level) / 2
		intervals[level] = [2]float64{
			mathmodel.Percentile(samples, tail),
			mathmodel.Percentile(samples, 100-tail),
		}
	}
	out := &Outcome{
		Iterations:          params.Iterations,
		Mean:                mathmodel.Mean(samples),
		StdDev:              mathmodel.StdDev(samples),
		Median:              mathmodel.Percentile(samples, 50),
		SuccessProbability:  float64(successes) / float64(params.Iterations),
		ConfidenceIntervals: intervals,
	}

	s.log.Debug("simulation complete",
		logging.Int("iterations", params.Iterations),
		logging.Float64("mean", out.Mean),
		logging.Float64("success_probability", out.SuccessProbability),
	)
	return out, nil
}

// ToScenario converts the outcome into a persistable scenario row for the
// given pattern.  The row's single interval column carries the 90% band;
// the full per-level map is preserved inside the KPI results.
func (o *Outcome) ToScenario(sessionID common.SessionID, topic string, segment results.Segment, patternID, patternName, strategicResponse string) results.MonteCarloScenario {
	return results.MonteCarloScenario{
		SessionID:          sessionID,
		Topic:              topic,
		Segment:            segment,
		ScenarioID:         "scn-" + patternID,
		PatternID:          patternID,
		PatternName:        patternName,
		StrategicResponse:  strategicResponse,
		KPIResults:         o.KPIResults(),
		ProbabilitySuccess: o.SuccessProbability,
		ConfidenceInterval: o.Interval(0.90),
		Iterations:         o.Iterations,
	}
}
