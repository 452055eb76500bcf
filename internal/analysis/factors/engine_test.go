package factors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/pkg/errors"
)

func TestCalibrationTableIntegrity(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, FactorCount)

	seen := make(map[string]bool)
	catWeight := make(map[Category]float64)
	segCount := make(map[results.Segment]int)
	for _, d := range defs {
		assert.False(t, seen[d.ID], "duplicate factor id %s", d.ID)
		seen[d.ID] = true
		assert.True(t, d.Segment.Valid(), "factor %s has invalid segment", d.ID)
		catWeight[d.Category] += d.Weight
		segCount[d.Segment]++

		var fieldWeight float64
		for _, f := range d.Fields {
			fieldWeight += f.Weight
		}
		assert.InDelta(t, 1.0, fieldWeight, 1e-9, "factor %s field weights", d.ID)
		assert.Greater(t, d.K, 0.0, "factor %s steepness", d.ID)
	}

	for _, cat := range AllCategories() {
		assert.InDelta(t, 1.0, catWeight[cat], 1e-9, "category %s weights", cat)
	}
	var total float64
	for _, w := range CategoryWeights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	// Every segment owns at least one factor.
	for _, seg := range results.AllSegments() {
		assert.Greater(t, segCount[seg], 0, "segment %s owns no factors", seg)
	}
}

func TestDefinitionLookups(t *testing.T) {
	d := DefinitionByID("F11")
	require.NotNil(t, d)
	assert.Equal(t, "consumer_affinity", d.Name)
	assert.Equal(t, results.SegmentConsumer, d.Segment)

	assert.Nil(t, DefinitionByID("F99"))

	consumer := DefinitionsForSegment(results.SegmentConsumer)
	for _, cd := range consumer {
		assert.Equal(t, results.SegmentConsumer, cd.Segment)
	}
	assert.NotEmpty(t, consumer)
}

func fullInputs(fieldValue, confidence float64) []Input {
	var inputs []Input
	for _, d := range Definitions() {
		fields := make(map[string]float64, len(d.Fields))
		for _, f := range d.Fields {
			fields[f.Name] = fieldValue
		}
		inputs = append(inputs, Input{FactorID: d.ID, Fields: fields, Confidence: confidence})
	}
	return inputs
}

func TestCalculateAllFullInputs(t *testing.T) {
	eng := NewEngine(nil)

	set, err := eng.CalculateAll(fullInputs(0.9, 1.0))
	require.NoError(t, err)
	require.Len(t, set.Factors, FactorCount)

	for id, r := range set.Factors {
		assert.GreaterOrEqual(t, r.Value, 0.0, id)
		assert.LessOrEqual(t, r.Value, 1.0, id)
		assert.Equal(t, 1.0, r.Confidence, id)
		assert.Empty(t, r.MissingFields, id)
		assert.NotEmpty(t, r.FormulaApplied, id)
		require.Len(t, r.Trace, 4, id)
		assert.Equal(t, "raw_score", r.Trace[1].Stage)
	}
	for _, cat := range AllCategories() {
		score := set.CategoryScores[cat]
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
	assert.GreaterOrEqual(t, set.OverallScore, 0.0)
	assert.LessOrEqual(t, set.OverallScore, 1.0)
	assert.Equal(t, 1.0, set.MeanConfidence)
	assert.Equal(t, 1.0, set.MinConfidence)
}

func TestCalculateAllScoresTrackInputs(t *testing.T) {
	eng := NewEngine(nil)

	strong, err := eng.CalculateAll(fullInputs(0.95, 1.0))
	require.NoError(t, err)
	weak, err := eng.CalculateAll(fullInputs(0.1, 1.0))
	require.NoError(t, err)

	assert.Greater(t, strong.OverallScore, weak.OverallScore)
	// F3 inverts competitor_density, so a uniformly high reading does not
	// monotonically help every factor; the aggregate still must.
	assert.Greater(t, strong.CategoryScores[CategoryProduct], weak.CategoryScores[CategoryProduct])
}

func TestCalculateAllMissingInputsFloorConfidence(t *testing.T) {
	eng := NewEngine(nil)

	// No inputs at all: every factor scores at the neutral value with
	// floored confidence, and nothing errors.
	set, err := eng.CalculateAll(nil)
	require.NoError(t, err)
	require.Len(t, set.Factors, FactorCount)
	for id, r := range set.Factors {
		assert.Equal(t, minConfidence, r.Confidence, id)
		assert.Len(t, r.MissingFields, len(DefinitionByID(id).Fields), id)
	}
	assert.InDelta(t, minConfidence, set.MeanConfidence, 1e-9)
}

func TestCalculateAllPartialFieldsScaleConfidence(t *testing.T) {
	eng := NewEngine(nil)

	// F1 has two fields; supply only one.
	set, err := eng.CalculateAll([]Input{{
		FactorID:   "F1",
		Fields:     map[string]float64{"tam_score": 0.8},
		Confidence: 1.0,
	}})
	require.NoError(t, err)

	r := set.Factors["F1"]
	assert.InDelta(t, 0.5, r.Confidence, 1e-9)
	assert.Equal(t, []string{"sam_ratio"}, r.MissingFields)
}

func TestCalculateAllUnknownFactor(t *testing.T) {
	eng := NewEngine(nil)

	_, err := eng.CalculateAll([]Input{{FactorID: "F404"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFactorUnknown))
}

func TestCalculateAllClampsOutOfRangeFields(t *testing.T) {
	eng := NewEngine(nil)

	set, err := eng.CalculateAll([]Input{{
		FactorID: "F2",
		Fields:   map[string]float64{"cagr_score": 7.5, "trend_momentum": -3.0},
	}})
	require.NoError(t, err)

	r := set.Factors["F2"]
	assert.GreaterOrEqual(t, r.Value, 0.0)
	assert.LessOrEqual(t, r.Value, 1.0)
	// Clamped fields: 0.7*1.0 + 0.3*0.0 = 0.7.
	assert.InDelta(t, 0.7, r.RawScore, 1e-9)
}

func TestSegmentResultsAndConversion(t *testing.T) {
	eng := NewEngine(nil)
	set, err := eng.CalculateAll(fullInputs(0.7, 0.9))
	require.NoError(t, err)

	total := 0
	for _, seg := range results.AllSegments() {
		segResults := set.SegmentResults(seg)
		total += len(segResults)
		for i := 1; i < len(segResults); i++ {
			assert.Less(t, segResults[i-1].FactorID, segResults[i].FactorID)
		}
	}
	assert.Equal(t, FactorCount, total)

	now := time.Now()
	rows := set.ToFactorScores("sess-1", "electric bikes", results.SegmentConsumer, now)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		require.NoError(t, row.Validate())
		assert.Equal(t, results.SegmentConsumer, row.Segment)
		assert.Equal(t, now, row.UpdatedAt)
		assert.Contains(t, row.CalcMetadata, "trace")
	}
}
