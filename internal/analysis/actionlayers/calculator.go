// Package actionlayers rolls factor scores up into strategic action
// layers: named intervention areas scored as weighted factor subsets,
// then ranked into priorities where weak scores on important layers
// surface first.
package actionlayers

import (
	"sort"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Component is one factor's contribution to a layer.
type Component struct {
	FactorID string
	Weight   float64
}

// Layer is one strategic action area.  Importance weighs the layer when
// ranking priorities; component weights sum to 1.0 per layer.
type Layer struct {
	ID         string
	Name       string
	Segment    results.Segment
	Importance float64
	Components []Component
}

// layers is the shipped action-layer table, two to three layers per
// segment.  Weights and importance values are calibration data.
var layers = []Layer{
	{ID: "AL-01", Name: "market_entry", Segment: results.SegmentMarket, Importance: 0.9,
		Components: []Component{{"F1", 0.35}, {"F2", 0.35}, {"F4", 0.30}}},
	{ID: "AL-02", Name: "competitive_defense", Segment: results.SegmentMarket, Importance: 0.7,
		Components: []Component{{"F3", 0.50}, {"F5", 0.25}, {"F6", 0.25}}},
	{ID: "AL-03", Name: "acquisition", Segment: results.SegmentConsumer, Importance: 0.9,
		Components: []Component{{"F11", 0.40}, {"F12", 0.35}, {"F17", 0.25}}},
	{ID: "AL-04", Name: "retention", Segment: results.SegmentConsumer, Importance: 0.8,
		Components: []Component{{"F18", 0.50}, {"F13", 0.50}}},
	{ID: "AL-05", Name: "product_positioning", Segment: results.SegmentProduct, Importance: 0.85,
		Components: []Component{{"F8", 0.40}, {"F10", 0.35}, {"F9", 0.25}}},
	{ID: "AL-06", Name: "pricing", Segment: results.SegmentProduct, Importance: 0.75,
		Components: []Component{{"F15", 0.50}, {"F16", 0.50}}},
	{ID: "AL-07", Name: "innovation_investment", Segment: results.SegmentProduct, Importance: 0.6,
		Components: []Component{{"F25", 1.00}}},
	{ID: "AL-08", Name: "brand_building", Segment: results.SegmentBrand, Importance: 0.8,
		Components: []Component{{"F22", 0.40}, {"F23", 0.35}, {"F24", 0.25}}},
	{ID: "AL-09", Name: "partnerships", Segment: results.SegmentBrand, Importance: 0.55,
		Components: []Component{{"F26", 0.70}, {"F19", 0.30}}},
	{ID: "AL-10", Name: "journey_optimization", Segment: results.SegmentExperience, Importance: 0.8,
		Components: []Component{{"F14", 0.50}, {"F7", 0.50}}},
	{ID: "AL-11", Name: "operational_excellence", Segment: results.SegmentExperience, Importance: 0.75,
		Components: []Component{{"F27", 0.40}, {"F20", 0.35}, {"F21", 0.25}}},
	{ID: "AL-12", Name: "risk_management", Segment: results.SegmentExperience, Importance: 0.65,
		Components: []Component{{"F28", 1.00}}},
}

// Layers returns the full table.
func Layers() []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers)
	return out
}

// FactorValue is the score-and-confidence pair a layer consumes per
// factor.
type FactorValue struct {
	Value      float64
	Confidence float64
}

// LayerScore is one scored layer.  PriorityScore grows with importance
// and with weakness: important layers scoring poorly rank first.
type LayerScore struct {
	LayerID       string          `json:"layer_id"`
	Name          string          `json:"name"`
	Segment       results.Segment `json:"segment"`
	Score         float64         `json:"score"`
	Confidence    float64         `json:"confidence"`
	Importance    float64         `json:"importance"`
	PriorityScore float64         `json:"priority_score"`
}

// Output is the full result of one calculation pass.
type Output struct {
	Layers []LayerScore
	// Priorities holds the same layers ranked by priority score
	// descending, layer ID ascending on ties.
	Priorities []LayerScore
}

// Calculator scores action layers from factor values.  Stateless.
type Calculator struct{}

// NewCalculator builds a calculator over the shipped layer table.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// CalculateAll scores every layer.  A factor absent from the score map
// contributes the neutral 0.5 at zero confidence, so sparse inputs
// depress a layer's confidence rather than its score.
func (c *Calculator) CalculateAll(scores map[string]FactorValue) *Output {
	out := &Output{Layers: make([]LayerScore, 0, len(layers))}
	for _, l := range layers {
		var values, confidences, weights []float64
		for _, comp := range l.Components {
			fv, ok := scores[comp.FactorID]
			if !ok {
				fv = FactorValue{Value: 0.5, Confidence: 0}
			}
			values = append(values, fv.Value)
			confidences = append(confidences, fv.Confidence)
			weights = append(weights, comp.Weight)
		}
		score := mathmodel.Clamp01(mathmodel.WeightedMean(values, weights))
		ls := LayerScore{
			LayerID:       l.ID,
			Name:          l.Name,
			Segment:       l.Segment,
			Score:         score,
			Confidence:    mathmodel.Clamp01(mathmodel.WeightedMean(confidences, weights)),
			Importance:    l.Importance,
			PriorityScore: (1 - score) * l.Importance,
		}
		out.Layers = append(out.Layers, ls)
	}

	out.Priorities = make([]LayerScore, len(out.Layers))
	copy(out.Priorities, out.Layers)
	sort.Slice(out.Priorities, func(i, j int) bool {
		if out.Priorities[i].PriorityScore != out.Priorities[j].PriorityScore {
			return out.Priorities[i].PriorityScore > out.Priorities[j].PriorityScore
		}
		return out.Priorities[i].LayerID < out.Priorities[j].LayerID
	})
	return out
}

// SegmentLayers returns the scored layers owned by the segment, in table
// order.
func (o *Output) SegmentLayers(segment results.Segment) []LayerScore {
	var out []LayerScore
	for _, l := range o.Layers {
		if l.Segment == segment {
			out = append(out, l)
		}
	}
	return out
}

// ToRichContent packages a segment's layer scores and the segment-local
// priority ranking as a rich-content row.
func (o *Output) ToRichContent(sessionID common.SessionID, topic string, segment results.Segment) results.SegmentRichContent {
	segLayers := o.SegmentLayers(segment)
	priorities := make([]string, 0, len(segLayers))
	for _, p := range o.Priorities {
		if p.Segment == segment {
			priorities = append(priorities, p.LayerID)
		}
	}
	return results.SegmentRichContent{
		SessionID:   sessionID,
		Topic:       topic,
		Segment:     segment,
		ContentType: "action_layers",
		ContentData: map[string]interface{}{
			"layers":               segLayers,
			"strategic_priorities": priorities,
		},
	}
}
