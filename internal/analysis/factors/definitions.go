// Package factors implements the factor scoring engine: 28 predefined
// quantitative indicators computed from raw segment inputs, logistic-
// normalized into [0,1], aggregated into category scores and one overall
// score, with a per-factor calculation trace for auditability.
package factors

import (
	"fmt"
	"strings"

	"github.com/stratlens/stratlens/internal/domain/results"
)

// Category groups factors for score aggregation.  Categories are distinct
// from segments: a segment owns a factor for persistence, a category weighs
// it for scoring.
type Category string

const (
	CategoryMarket    Category = "market"
	CategoryProduct   Category = "product"
	CategoryFinancial Category = "financial"
	CategoryStrategic Category = "strategic"
)

// AllCategories returns the canonical category order.
func AllCategories() []Category {
	return []Category{CategoryMarket, CategoryProduct, CategoryFinancial, CategoryStrategic}
}

// CategoryWeights weighs category scores into the overall score.  The
// values are calibration data, not derivable constants; they sum to 1.0.
var CategoryWeights = map[Category]float64{
	CategoryMarket:    0.30,
	CategoryProduct:   0.25,
	CategoryFinancial: 0.20,
	CategoryStrategic: 0.25,
}

// FieldSpec is one raw input field consumed by a factor formula.  Invert
// flips the field (1 - v) for indicators where a high raw reading is
// unfavourable, e.g. competitive intensity.
type FieldSpec struct {
	Name   string
	Weight float64
	Invert bool
}

// Definition is the calibration record for one factor: which segment owns
// it, which category weighs it, the raw fields its formula combines, and
// the logistic constants that normalize the combined raw score.
type Definition struct {
	ID       string
	Name     string
	Category Category
	Segment  results.Segment

	// Fields define the weighted linear combination producing the raw
	// score.  Field weights sum to 1.0 per factor.
	Fields []FieldSpec

	// K and Midpoint parameterize the logistic normalization.
	K        float64
	Midpoint float64

	// Weight is the factor's share inside its category; weights sum to
	// 1.0 within each category.
	Weight float64
}

// Formula renders the factor's raw-score expression for the
// formula_applied audit column.
func (d *Definition) Formula() string {
	parts := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Invert {
			parts = append(parts, fmt.Sprintf("%.2f*(1-%s)", f.Weight, f.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%.2f*%s", f.Weight, f.Name))
		}
	}
	return fmt.Sprintf("logistic(%s, k=%.1f, x0=%.2f)", strings.Join(parts, " + "), d.K, d.Midpoint)
}

// definitions is the 28-factor calibration table.  F1–F7 form the market
// category, F8–F14 product, F15–F21 financial, F22–F28 strategic.  Segment
// ownership spreads the same factors across the five analysis lenses.
// The numeric constants are calibration data shipped with the library.
var definitions = []Definition{
	// ── Market category ──────────────────────────────────────────────────
	{ID: "F1", Name: "market_size", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "tam_score", Weight: 0.6}, {Name: "sam_ratio", Weight: 0.4}},
		K:      6.0, Midpoint: 0.50, Weight: 0.20},
	{ID: "F2", Name: "market_growth", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "cagr_score", Weight: 0.7}, {Name: "trend_momentum", Weight: 0.3}},
		K:      7.0, Midpoint: 0.45, Weight: 0.18},
	{ID: "F3", Name: "competitive_intensity", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "competitor_density", Weight: 0.5, Invert: true}, {Name: "entry_barriers", Weight: 0.5}},
		K:      6.0, Midpoint: 0.50, Weight: 0.15},
	{ID: "F4", Name: "market_accessibility", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "channel_openness", Weight: 0.6}, {Name: "regulatory_ease", Weight: 0.4}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},
	{ID: "F5", Name: "demand_stability", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "demand_volatility", Weight: 0.6, Invert: true}, {Name: "recurring_share", Weight: 0.4}},
		K:      6.5, Midpoint: 0.50, Weight: 0.12},
	{ID: "F6", Name: "regulatory_exposure", Category: CategoryMarket, Segment: results.SegmentMarket,
		Fields: []FieldSpec{{Name: "compliance_burden", Weight: 0.7, Invert: true}, {Name: "policy_tailwind", Weight: 0.3}},
		K:      5.0, Midpoint: 0.50, Weight: 0.11},
	{ID: "F7", Name: "channel_coverage", Category: CategoryMarket, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "distribution_reach", Weight: 0.6}, {Name: "digital_presence", Weight: 0.4}},
		K:      6.0, Midpoint: 0.45, Weight: 0.12},

	// ── Product category ─────────────────────────────────────────────────
	{ID: "F8", Name: "product_differentiation", Category: CategoryProduct, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "uniqueness_score", Weight: 0.6}, {Name: "patent_coverage", Weight: 0.4}},
		K:      7.0, Midpoint: 0.50, Weight: 0.20},
	{ID: "F9", Name: "feature_completeness", Category: CategoryProduct, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "feature_parity", Weight: 0.7}, {Name: "roadmap_velocity", Weight: 0.3}},
		K:      6.0, Midpoint: 0.50, Weight: 0.14},
	{ID: "F10", Name: "quality_perception", Category: CategoryProduct, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "review_sentiment", Weight: 0.6}, {Name: "defect_rate", Weight: 0.4, Invert: true}},
		K:      6.5, Midpoint: 0.50, Weight: 0.15},
	{ID: "F11", Name: "consumer_affinity", Category: CategoryProduct, Segment: results.SegmentConsumer,
		Fields: []FieldSpec{{Name: "sentiment_score", Weight: 0.5}, {Name: "engagement_depth", Weight: 0.5}},
		K:      7.0, Midpoint: 0.45, Weight: 0.16},
	{ID: "F12", Name: "adoption_rate", Category: CategoryProduct, Segment: results.SegmentConsumer,
		Fields: []FieldSpec{{Name: "trial_conversion", Weight: 0.6}, {Name: "activation_speed", Weight: 0.4}},
		K:      6.5, Midpoint: 0.50, Weight: 0.13},
	{ID: "F13", Name: "switching_friction", Category: CategoryProduct, Segment: results.SegmentConsumer,
		Fields: []FieldSpec{{Name: "lock_in_strength", Weight: 0.5}, {Name: "migration_cost", Weight: 0.5}},
		K:      6.0, Midpoint: 0.50, Weight: 0.10},
	{ID: "F14", Name: "experience_consistency", Category: CategoryProduct, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "journey_smoothness", Weight: 0.6}, {Name: "support_quality", Weight: 0.4}},
		K:      6.0, Midpoint: 0.50, Weight: 0.12},

	// ── Financial category ───────────────────────────────────────────────
	{ID: "F15", Name: "price_competitiveness", Category: CategoryFinancial, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "price_position", Weight: 0.6}, {Name: "value_perception", Weight: 0.4}},
		K:      6.0, Midpoint: 0.50, Weight: 0.16},
	{ID: "F16", Name: "margin_potential", Category: CategoryFinancial, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "gross_margin_score", Weight: 0.7}, {Name: "scale_leverage", Weight: 0.3}},
		K:      6.5, Midpoint: 0.50, Weight: 0.16},
	{ID: "F17", Name: "acquisition_efficiency", Category: CategoryFinancial, Segment: results.SegmentConsumer,
		Fields: []FieldSpec{{Name: "cac_score", Weight: 0.6, Invert: true}, {Name: "organic_share", Weight: 0.4}},
		K:      6.0, Midpoint: 0.50, Weight: 0.15},
	{ID: "F18", Name: "lifetime_value", Category: CategoryFinancial, Segment: results.SegmentConsumer,
		Fields: []FieldSpec{{Name: "retention_score", Weight: 0.6}, {Name: "expansion_revenue", Weight: 0.4}},
		K:      7.0, Midpoint: 0.50, Weight: 0.17},
	{ID: "F19", Name: "revenue_diversification", Category: CategoryFinancial, Segment: results.SegmentBrand,
		Fields: []FieldSpec{{Name: "stream_spread", Weight: 0.6}, {Name: "concentration_risk", Weight: 0.4, Invert: true}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},
	{ID: "F20", Name: "cost_structure", Category: CategoryFinancial, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "fixed_cost_ratio", Weight: 0.5, Invert: true}, {Name: "automation_level", Weight: 0.5}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},
	{ID: "F21", Name: "investment_capacity", Category: CategoryFinancial, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "funding_runway", Weight: 0.6}, {Name: "reinvestment_rate", Weight: 0.4}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},

	// ── Strategic category ───────────────────────────────────────────────
	{ID: "F22", Name: "brand_recognition", Category: CategoryStrategic, Segment: results.SegmentBrand,
		Fields: []FieldSpec{{Name: "awareness_score", Weight: 0.6}, {Name: "share_of_voice", Weight: 0.4}},
		K:      6.5, Midpoint: 0.45, Weight: 0.17},
	{ID: "F23", Name: "brand_loyalty", Category: CategoryStrategic, Segment: results.SegmentBrand,
		Fields: []FieldSpec{{Name: "repeat_rate", Weight: 0.6}, {Name: "advocacy_score", Weight: 0.4}},
		K:      7.0, Midpoint: 0.50, Weight: 0.17},
	{ID: "F24", Name: "strategic_positioning", Category: CategoryStrategic, Segment: results.SegmentBrand,
		Fields: []FieldSpec{{Name: "position_clarity", Weight: 0.5}, {Name: "whitespace_fit", Weight: 0.5}},
		K:      6.0, Midpoint: 0.50, Weight: 0.15},
	{ID: "F25", Name: "innovation_pipeline", Category: CategoryStrategic, Segment: results.SegmentProduct,
		Fields: []FieldSpec{{Name: "rd_intensity", Weight: 0.5}, {Name: "launch_cadence", Weight: 0.5}},
		K:      6.0, Midpoint: 0.50, Weight: 0.14},
	{ID: "F26", Name: "partnership_leverage", Category: CategoryStrategic, Segment: results.SegmentBrand,
		Fields: []FieldSpec{{Name: "alliance_strength", Weight: 0.6}, {Name: "ecosystem_depth", Weight: 0.4}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},
	{ID: "F27", Name: "execution_capability", Category: CategoryStrategic, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "delivery_track_record", Weight: 0.6}, {Name: "talent_density", Weight: 0.4}},
		K:      6.0, Midpoint: 0.50, Weight: 0.13},
	{ID: "F28", Name: "risk_exposure", Category: CategoryStrategic, Segment: results.SegmentExperience,
		Fields: []FieldSpec{{Name: "threat_level", Weight: 0.6, Invert: true}, {Name: "resilience_score", Weight: 0.4}},
		K:      5.5, Midpoint: 0.50, Weight: 0.12},
}

// FactorCount is the size of the predefined factor set.
const FactorCount = 28

var definitionIndex = func() map[string]*Definition {
	idx := make(map[string]*Definition, len(definitions))
	for i := range definitions {
		idx[definitions[i].ID] = &definitions[i]
	}
	return idx
}()

// Definitions returns the full calibration table in factor-ID order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionByID looks up a factor definition, nil when unknown.
func DefinitionByID(id string) *Definition {
	return definitionIndex[id]
}

// DefinitionsForSegment returns the factors owned by the given segment.
func DefinitionsForSegment(segment results.Segment) []Definition {
	var out []Definition
	for _, d := range definitions {
		if d.Segment == segment {
			out = append(out, d)
		}
	}
	return out
}
