package montecarlo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/pkg/errors"
)

func validParams() Params {
	return Params{
		ExpectedScore:     0.7,
		PatternMultiplier: 1.2,
		IndustryFactor:    1.05,
		TimeDecayFactor:   0.92,
		Uncertainties: map[string]Uncertainty{
			"demand":    {Std: 0.15},
			"execution": {Mean: 0.02, Std: 0.10},
		},
		Iterations: 1000,
		Seed:       42,
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"expected score above 1", func(p *Params) { p.ExpectedScore = 1.5 }},
		{"negative expected score", func(p *Params) { p.ExpectedScore = -0.1 }},
		{"zero pattern multiplier", func(p *Params) { p.PatternMultiplier = 0 }},
		{"negative industry factor", func(p *Params) { p.IndustryFactor = -1 }},
		{"decay above 1", func(p *Params) { p.TimeDecayFactor = 1.2 }},
		{"zero decay", func(p *Params) { p.TimeDecayFactor = 0 }},
		{"negative iterations", func(p *Params) { p.Iterations = -5 }},
		{"threshold above 1", func(p *Params) { p.SuccessThreshold = 1.1 }},
		{"zero uncertainty std", func(p *Params) { p.Uncertainties["demand"] = Uncertainty{Std: 0} }},
		{"negative uncertainty std", func(p *Params) { p.Uncertainties["demand"] = Uncertainty{Std: -0.2} }},
		{"unknown distribution", func(p *Params) { p.Uncertainties["demand"] = Uncertainty{Distribution: "cauchy", Std: 0.1} }},
	}
	sim := NewSimulator(nil, 0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := sim.RunPatternSimulation(p)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidSimulationParameters))
		})
	}
}

func TestValidateRejectsZeroIterations(t *testing.T) {
	// Only RunPatternSimulation resolves zero to the configured default;
	// on its own a zero count is an invalid run.
	p := validParams()
	p.Iterations = 0
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidSimulationParameters))
}

func TestRunDeterministicForFixedSeed(t *testing.T) {
	sim := NewSimulator(nil, 0)

	a, err := sim.RunPatternSimulation(validParams())
	require.NoError(t, err)
	b, err := sim.RunPatternSimulation(validParams())
	require.NoError(t, err)

	// Equal params and seed must be bit-identical, not merely close.
	assert.Equal(t, a, b)

	other := validParams()
	other.Seed = 43
	c, err := sim.RunPatternSimulation(other)
	require.NoError(t, err)
	assert.NotEqual(t, a.Mean, c.Mean)
}

func TestRunOutcomeShape(t *testing.T) {
	sim := NewSimulator(nil, 0)
	out, err := sim.RunPatternSimulation(validParams())
	require.NoError(t, err)

	assert.Equal(t, 1000, out.Iterations)
	assert.GreaterOrEqual(t, out.Mean, 0.0)
	assert.LessOrEqual(t, out.Mean, 1.0)
	assert.GreaterOrEqual(t, out.SuccessProbability, 0.0)
	assert.LessOrEqual(t, out.SuccessProbability, 1.0)
	assert.Greater(t, out.StdDev, 0.0)

	require.Len(t, out.ConfidenceIntervals, len(ConfidenceLevels))
	ci80 := out.Interval(0.80)
	ci90 := out.Interval(0.90)
	ci95 := out.Interval(0.95)
	// Wider levels nest around narrower ones, all straddling the median.
	assert.LessOrEqual(t, ci95[0], ci90[0])
	assert.LessOrEqual(t, ci90[0], ci80[0])
	assert.LessOrEqual(t, ci80[0], out.Median)
	assert.LessOrEqual(t, out.Median, ci80[1])
	assert.LessOrEqual(t, ci80[1], ci90[1])
	assert.LessOrEqual(t, ci90[1], ci95[1])
	assert.GreaterOrEqual(t, ci95[0], 0.0)
	assert.LessOrEqual(t, ci95[1], 1.0)

	kpi := out.KPIResults()
	for _, key := range []string{
		"mean", "median", "std_dev",
		"ci80_low", "ci80_high", "ci90_low", "ci90_high", "ci95_low", "ci95_high",
	} {
		assert.Contains(t, kpi, key)
	}
}

func TestRunDefaultsApplied(t *testing.T) {
	sim := NewSimulator(nil, 250)

	p := validParams()
	p.Iterations = 0
	out, err := sim.RunPatternSimulation(p)
	require.NoError(t, err)
	assert.Equal(t, 250, out.Iterations)

	// Constructor default when nothing is configured.
	sim = NewSimulator(nil, 0)
	out, err = sim.RunPatternSimulation(p)
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, out.Iterations)
}

func TestRunNoUncertaintyIsDegenerate(t *testing.T) {
	sim := NewSimulator(nil, 0)

	p := validParams()
	p.Uncertainties = nil
	out, err := sim.RunPatternSimulation(p)
	require.NoError(t, err)

	base := p.ExpectedScore * p.PatternMultiplier * p.IndustryFactor * p.TimeDecayFactor
	want := mathmodel.LogisticNormalize(base, outcomeSteepness, outcomeMidpoint)
	assert.InDelta(t, want, out.Mean, 1e-12)
	assert.InDelta(t, 0.0, out.StdDev, 1e-12)
	for _, level := range ConfidenceLevels {
		band := out.Interval(level)
		assert.InDelta(t, out.Mean, band[0], 1e-12)
		assert.InDelta(t, out.Mean, band[1], 1e-12)
	}
	// base clears the default threshold, so every iteration succeeds.
	assert.Equal(t, 1.0, out.SuccessProbability)
}

func TestRunSourceMeanShiftsOutcome(t *testing.T) {
	sim := NewSimulator(nil, 0)

	neutral := validParams()
	neutral.Uncertainties = map[string]Uncertainty{"demand": {Std: 0.1}}
	shifted := validParams()
	shifted.Uncertainties = map[string]Uncertainty{"demand": {Mean: -0.4, Std: 0.1}}

	a, err := sim.RunPatternSimulation(neutral)
	require.NoError(t, err)
	b, err := sim.RunPatternSimulation(shifted)
	require.NoError(t, err)

	assert.Greater(t, a.Mean, b.Mean)
	assert.GreaterOrEqual(t, a.SuccessProbability, b.SuccessProbability)
}

func TestRunUniformDistribution(t *testing.T) {
	sim := NewSimulator(nil, 0)

	p := validParams()
	p.Uncertainties = map[string]Uncertainty{
		"demand": {Distribution: DistUniform, Std: 0.2},
	}
	a, err := sim.RunPatternSimulation(p)
	require.NoError(t, err)
	b, err := sim.RunPatternSimulation(p)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Greater(t, a.StdDev, 0.0)
}

func TestRunKeepsOutcomesInUnitInterval(t *testing.T) {
	sim := NewSimulator(nil, 0)

	// Wildly dispersed sources still land inside [0,1] through the
	// logistic mapping.
	p := validParams()
	p.Uncertainties = map[string]Uncertainty{
		"demand": {Mean: 0.5, Std: 3.0},
		"supply": {Mean: -0.5, Std: 3.0},
	}
	out, err := sim.RunPatternSimulation(p)
	require.NoError(t, err)

	band := out.Interval(0.95)
	assert.GreaterOrEqual(t, band[0], 0.0)
	assert.LessOrEqual(t, band[1], 1.0)
	assert.GreaterOrEqual(t, out.Mean, 0.0)
	assert.LessOrEqual(t, out.Mean, 1.0)
}

func TestRunSuccessProbabilityTracksThreshold(t *testing.T) {
	sim := NewSimulator(nil, 0)

	lenient := validParams()
	lenient.SuccessThreshold = 0.3
	strict := validParams()
	strict.SuccessThreshold = 0.9

	lo, err := sim.RunPatternSimulation(lenient)
	require.NoError(t, err)
	hi, err := sim.RunPatternSimulation(strict)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, lo.SuccessProbability, hi.SuccessProbability)
}

func TestToScenario(t *testing.T) {
	sim := NewSimulator(nil, 0)
	out, err := sim.RunPatternSimulation(validParams())
	require.NoError(t, err)

	scn := out.ToScenario("sess-1", "foldable drones", results.SegmentMarket,
		"MKT-01", "expansion_window", "Accelerate entry.")
	assert.Equal(t, "scn-MKT-01", scn.ScenarioID)
	assert.Equal(t, results.SegmentMarket, scn.Segment)
	assert.Equal(t, out.SuccessProbability, scn.ProbabilitySuccess)
	assert.Equal(t, out.Interval(0.90), scn.ConfidenceInterval)
	assert.Equal(t, 1000, scn.Iterations)
}
