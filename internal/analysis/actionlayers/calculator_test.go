package actionlayers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/internal/analysis/factors"
	"github.com/stratlens/stratlens/internal/domain/results"
)

func TestLayerTableIntegrity(t *testing.T) {
	seen := make(map[string]bool)
	perSegment := make(map[results.Segment]int)
	for _, l := range Layers() {
		assert.False(t, seen[l.ID], "duplicate layer id %s", l.ID)
		seen[l.ID] = true
		assert.True(t, l.Segment.Valid(), l.ID)
		assert.Greater(t, l.Importance, 0.0, l.ID)
		assert.LessOrEqual(t, l.Importance, 1.0, l.ID)
		perSegment[l.Segment]++

		var total float64
		for _, c := range l.Components {
			total += c.Weight
			assert.NotNil(t, factors.DefinitionByID(c.FactorID),
				"layer %s references unknown factor %s", l.ID, c.FactorID)
		}
		assert.InDelta(t, 1.0, total, 1e-9, "layer %s component weights", l.ID)
	}
	for _, seg := range results.AllSegments() {
		assert.Greater(t, perSegment[seg], 0, "segment %s has no layers", seg)
	}
}

func allFactorValues(value, confidence float64) map[string]FactorValue {
	scores := make(map[string]FactorValue)
	for _, d := range factors.Definitions() {
		scores[d.ID] = FactorValue{Value: value, Confidence: confidence}
	}
	return scores
}

func TestCalculateAllUniformScores(t *testing.T) {
	calc := NewCalculator()
	out := calc.CalculateAll(allFactorValues(0.8, 0.9))

	require.Len(t, out.Layers, len(Layers()))
	for _, l := range out.Layers {
		assert.InDelta(t, 0.8, l.Score, 1e-9, l.LayerID)
		assert.InDelta(t, 0.9, l.Confidence, 1e-9, l.LayerID)
		assert.InDelta(t, 0.2*l.Importance, l.PriorityScore, 1e-9, l.LayerID)
	}
}

func TestPrioritiesRankWeakImportantLayersFirst(t *testing.T) {
	calc := NewCalculator()

	// Everything strong except the acquisition layer's factors.
	scores := allFactorValues(0.9, 1.0)
	scores["F11"] = FactorValue{Value: 0.2, Confidence: 1}
	scores["F12"] = FactorValue{Value: 0.2, Confidence: 1}
	scores["F17"] = FactorValue{Value: 0.2, Confidence: 1}

	out := calc.CalculateAll(scores)
	require.NotEmpty(t, out.Priorities)
	assert.Equal(t, "AL-03", out.Priorities[0].LayerID)

	// Ranking is monotone non-increasing with deterministic tie order.
	for i := 1; i < len(out.Priorities); i++ {
		prev, cur := out.Priorities[i-1], out.Priorities[i]
		ok := prev.PriorityScore > cur.PriorityScore ||
			(prev.PriorityScore == cur.PriorityScore && prev.LayerID < cur.LayerID)
		assert.True(t, ok, "priority order broken at %d", i)
	}
}

func TestCalculateAllMissingFactorsDepressConfidence(t *testing.T) {
	calc := NewCalculator()
	out := calc.CalculateAll(nil)

	for _, l := range out.Layers {
		assert.InDelta(t, 0.5, l.Score, 1e-9, l.LayerID)
		assert.InDelta(t, 0.0, l.Confidence, 1e-9, l.LayerID)
	}
}

func TestSegmentLayersAndRichContent(t *testing.T) {
	calc := NewCalculator()
	out := calc.CalculateAll(allFactorValues(0.6, 0.8))

	total := 0
	for _, seg := range results.AllSegments() {
		total += len(out.SegmentLayers(seg))
	}
	assert.Equal(t, len(Layers()), total)

	rc := out.ToRichContent("sess-3", "oat milk", results.SegmentConsumer)
	assert.Equal(t, "action_layers", rc.ContentType)
	assert.Equal(t, results.SegmentConsumer, rc.Segment)

	segLayers, ok := rc.ContentData["layers"].([]LayerScore)
	require.True(t, ok)
	assert.Len(t, segLayers, len(out.SegmentLayers(results.SegmentConsumer)))

	priorities, ok := rc.ContentData["strategic_priorities"].([]string)
	require.True(t, ok)
	assert.Len(t, priorities, len(segLayers))
}
