package patterns

import (
	"sort"

	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Pattern types classify the strategic situation a pattern describes.
const (
	TypeOpportunity = "opportunity"
	TypeRisk        = "risk"
	TypeCompetitive = "competitive"
	TypeGrowth      = "growth"
	TypeEfficiency  = "efficiency"
)

// SimulationParams are the pattern's Monte Carlo calibration constants,
// carried here so simulation needs no second lookup table.
type SimulationParams struct {
	PatternMultiplier float64 `json:"pattern_multiplier"`
	IndustryFactor    float64 `json:"industry_factor"`
	TimeDecayFactor   float64 `json:"time_decay_factor"`
}

// Pattern is one declarative strategic pattern.
type Pattern struct {
	ID                string
	Name              string
	Type              string
	Segment           results.Segment
	Predicate         Predicate
	StrategicResponse string
	EffectSizeHints   map[string]float64
	ProbabilityRange  [2]float64
	Simulation        SimulationParams
}

// Match is one pattern that triggered against a score map.
type Match struct {
	Pattern          *Pattern
	Confidence       float64
	MatchScore       float64
	Margin           float64
	FactorsTriggered []string
}

// ToPatternMatch converts the match into a persistable row.
func (m *Match) ToPatternMatch(sessionID common.SessionID, topic string) results.PatternMatch {
	return results.PatternMatch{
		SessionID:         sessionID,
		Topic:             topic,
		Segment:           m.Pattern.Segment,
		PatternID:         m.Pattern.ID,
		PatternName:       m.Pattern.Name,
		PatternType:       m.Pattern.Type,
		Confidence:        m.Confidence,
		MatchScore:        m.MatchScore,
		StrategicResponse: m.Pattern.StrategicResponse,
		EffectSizeHints:   m.Pattern.EffectSizeHints,
		ProbabilityRange:  m.Pattern.ProbabilityRange,
		FactorsTriggered:  m.FactorsTriggered,
	}
}

// Library holds the pattern set grouped by segment.
type Library struct {
	bySegment map[results.Segment][]*Pattern
	byID      map[string]*Pattern
}

// NewLibrary returns the built-in pattern library.
func NewLibrary() *Library {
	lib, err := NewLibraryWithPatterns(builtinPatterns())
	if err != nil {
		// The built-in table is static; a validation failure here is a
		// programming error caught by the package tests.
		panic(err)
	}
	return lib
}

// NewLibraryWithPatterns builds a library from an explicit pattern set,
// validating every predicate tree.
func NewLibraryWithPatterns(patterns []Pattern) (*Library, error) {
	lib := &Library{
		bySegment: make(map[results.Segment][]*Pattern),
		byID:      make(map[string]*Pattern, len(patterns)),
	}
	for i := range patterns {
		p := &patterns[i]
		if err := p.Predicate.Validate(); err != nil {
			return nil, err
		}
		lib.bySegment[p.Segment] = append(lib.bySegment[p.Segment], p)
		lib.byID[p.ID] = p
	}
	return lib, nil
}

// PatternsForSegment returns the segment's patterns in definition order.
func (l *Library) PatternsForSegment(segment results.Segment) []*Pattern {
	return l.bySegment[segment]
}

// PatternByID looks up a pattern, nil when unknown.
func (l *Library) PatternByID(id string) *Pattern {
	return l.byID[id]
}

// Len returns the total pattern count.
func (l *Library) Len() int {
	return len(l.byID)
}

// Match evaluates every pattern of the segment against the score map and
// returns all matches.  Match confidence is the minimum confidence among
// the triggering factors; the match score is monotone in how decisively
// the scores clear the pattern's thresholds.  Results are ordered by
// match score descending, pattern ID ascending on ties.
func (l *Library) Match(segment results.Segment, scores map[string]FactorValue) []Match {
	var matches []Match
	for _, p := range l.bySegment[segment] {
		ok, triggered, margin := p.Predicate.Evaluate(scores)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Pattern:          p,
			Confidence:       minTriggeredConfidence(triggered, scores),
			MatchScore:       0.5 + 0.5*margin,
			Margin:           margin,
			FactorsTriggered: dedupe(triggered),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		return matches[i].Pattern.ID < matches[j].Pattern.ID
	})
	return matches
}

func minTriggeredConfidence(triggered []string, scores map[string]FactorValue) float64 {
	min := 1.0
	for _, id := range triggered {
		if fv, ok := scores[id]; ok && fv.Confidence < min {
			min = fv.Confidence
		}
	}
	return min
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// builtinPatterns is the shipped pattern catalogue.  Thresholds,
// probability ranges, and simulation constants are calibration data.
func builtinPatterns() []Pattern {
	return []Pattern{
		// ── Market segment ───────────────────────────────────────────────
		{
			ID: "MKT-01", Name: "expansion_window", Type: TypeOpportunity, Segment: results.SegmentMarket,
			Predicate:         All(Condition{"F1", CmpGT, 0.60}, Condition{"F2", CmpGT, 0.65}),
			StrategicResponse: "Accelerate market entry while the growth window is open; prioritize share capture over margin.",
			EffectSizeHints:   map[string]float64{"revenue_growth": 0.25, "market_share": 0.12},
			ProbabilityRange:  [2]float64{0.55, 0.85},
			Simulation:        SimulationParams{PatternMultiplier: 1.20, IndustryFactor: 1.05, TimeDecayFactor: 0.92},
		},
		{
			ID: "MKT-02", Name: "defensible_position", Type: TypeCompetitive, Segment: results.SegmentMarket,
			Predicate:         All(Condition{"F3", CmpGT, 0.60}, Condition{"F4", CmpGT, 0.55}),
			StrategicResponse: "Exploit low competitive pressure and open channels; lock in distribution before rivals arrive.",
			EffectSizeHints:   map[string]float64{"market_share": 0.15},
			ProbabilityRange:  [2]float64{0.50, 0.80},
			Simulation:        SimulationParams{PatternMultiplier: 1.10, IndustryFactor: 1.00, TimeDecayFactor: 0.95},
		},
		{
			ID: "MKT-03", Name: "volatile_demand_risk", Type: TypeRisk, Segment: results.SegmentMarket,
			Predicate:         All(Condition{"F5", CmpLT, 0.40}),
			StrategicResponse: "Hedge demand volatility with flexible capacity and contract diversification.",
			EffectSizeHints:   map[string]float64{"revenue_variance": 0.30},
			ProbabilityRange:  [2]float64{0.35, 0.65},
			Simulation:        SimulationParams{PatternMultiplier: 0.85, IndustryFactor: 0.95, TimeDecayFactor: 0.90},
		},
		{
			ID: "MKT-04", Name: "regulatory_headwind", Type: TypeRisk, Segment: results.SegmentMarket,
			Predicate:         All(Condition{"F6", CmpLT, 0.35}, Condition{"F2", CmpGT, 0.50}),
			StrategicResponse: "Front-load compliance investment; regulatory drag erodes an otherwise growing market.",
			EffectSizeHints:   map[string]float64{"cost_increase": 0.18},
			ProbabilityRange:  [2]float64{0.40, 0.70},
			Simulation:        SimulationParams{PatternMultiplier: 0.80, IndustryFactor: 0.90, TimeDecayFactor: 0.88},
		},
		{
			ID: "MKT-05", Name: "niche_consolidation", Type: TypeGrowth, Segment: results.SegmentMarket,
			Predicate: Predicate{Op: OpOr, Subs: []Predicate{
				All(Condition{"F1", CmpLT, 0.45}, Condition{"F2", CmpGT, 0.60}),
				All(Condition{"F3", CmpGT, 0.70}, Condition{"F4", CmpGT, 0.60}),
			}},
			StrategicResponse: "Dominate a fast-growing niche before expanding; small defensible markets compound.",
			EffectSizeHints:   map[string]float64{"niche_share": 0.30},
			ProbabilityRange:  [2]float64{0.45, 0.75},
			Simulation:        SimulationParams{PatternMultiplier: 1.05, IndustryFactor: 1.00, TimeDecayFactor: 0.93},
		},

		// ── Consumer segment ─────────────────────────────────────────────
		{
			ID: "CON-01", Name: "affinity_led_adoption", Type: TypeOpportunity, Segment: results.SegmentConsumer,
			Predicate:         All(Condition{"F11", CmpGT, 0.60}, Condition{"F13", CmpLT, 0.40}),
			StrategicResponse: "Convert high affinity and low switching friction into rapid trial; invest in frictionless onboarding.",
			EffectSizeHints:   map[string]float64{"adoption_rate": 0.22, "cac_reduction": 0.10},
			ProbabilityRange:  [2]float64{0.55, 0.85},
			Simulation:        SimulationParams{PatternMultiplier: 1.25, IndustryFactor: 1.05, TimeDecayFactor: 0.94},
		},
		{
			ID: "CON-02", Name: "retention_flywheel", Type: TypeGrowth, Segment: results.SegmentConsumer,
			Predicate:         All(Condition{"F12", CmpGT, 0.65}, Condition{"F18", CmpGT, 0.60}),
			StrategicResponse: "Shift spend from acquisition to expansion; adoption and lifetime value already compound.",
			EffectSizeHints:   map[string]float64{"ltv_growth": 0.20},
			ProbabilityRange:  [2]float64{0.50, 0.80},
			Simulation:        SimulationParams{PatternMultiplier: 1.15, IndustryFactor: 1.00, TimeDecayFactor: 0.96},
		},
		{
			ID: "CON-03", Name: "efficient_funnel", Type: TypeEfficiency, Segment: results.SegmentConsumer,
			Predicate:         All(Condition{"F17", CmpGT, 0.65}, Condition{"F12", CmpGT, 0.50}),
			StrategicResponse: "Scale the acquisition engine; unit economics support aggressive volume.",
			EffectSizeHints:   map[string]float64{"cac_payback": -0.15},
			ProbabilityRange:  [2]float64{0.50, 0.78},
			Simulation:        SimulationParams{PatternMultiplier: 1.10, IndustryFactor: 1.00, TimeDecayFactor: 0.95},
		},
		{
			ID: "CON-04", Name: "captive_base", Type: TypeCompetitive, Segment: results.SegmentConsumer,
			Predicate:         All(Condition{"F13", CmpGT, 0.70}, Condition{"F18", CmpGT, 0.55}),
			StrategicResponse: "Monetize the locked-in base carefully; switching friction protects price increases but invites disruption.",
			EffectSizeHints:   map[string]float64{"pricing_power": 0.12},
			ProbabilityRange:  [2]float64{0.45, 0.75},
			Simulation:        SimulationParams{PatternMultiplier: 1.05, IndustryFactor: 0.98, TimeDecayFactor: 0.90},
		},
		{
			ID: "CON-05", Name: "breakout_enthusiasm", Type: TypeOpportunity, Segment: results.SegmentConsumer,
			Predicate:         Any(Condition{"F11", CmpGT, 0.85}, Condition{"F12", CmpGT, 0.85}),
			StrategicResponse: "Amplify organic momentum with community and referral programs before it cools.",
			EffectSizeHints:   map[string]float64{"organic_growth": 0.28},
			ProbabilityRange:  [2]float64{0.60, 0.90},
			Simulation:        SimulationParams{PatternMultiplier: 1.30, IndustryFactor: 1.08, TimeDecayFactor: 0.90},
		},

		// ── Product segment ──────────────────────────────────────────────
		{
			ID: "PRD-01", Name: "differentiation_premium", Type: TypeOpportunity, Segment: results.SegmentProduct,
			Predicate:         All(Condition{"F8", CmpGT, 0.65}, Condition{"F16", CmpGT, 0.55}),
			StrategicResponse: "Price on differentiation, not cost; protect the premium with continued uniqueness investment.",
			EffectSizeHints:   map[string]float64{"margin_expansion": 0.15},
			ProbabilityRange:  [2]float64{0.55, 0.85},
			Simulation:        SimulationParams{PatternMultiplier: 1.20, IndustryFactor: 1.02, TimeDecayFactor: 0.94},
		},
		{
			ID: "PRD-02", Name: "feature_gap_risk", Type: TypeRisk, Segment: results.SegmentProduct,
			Predicate:         All(Condition{"F9", CmpLT, 0.40}, Condition{"F8", CmpLT, 0.50}),
			StrategicResponse: "Close table-stakes feature gaps before differentiating; parity is the entry ticket.",
			EffectSizeHints:   map[string]float64{"churn_risk": 0.20},
			ProbabilityRange:  [2]float64{0.35, 0.65},
			Simulation:        SimulationParams{PatternMultiplier: 0.80, IndustryFactor: 0.92, TimeDecayFactor: 0.90},
		},
		{
			ID: "PRD-03", Name: "quality_halo", Type: TypeCompetitive, Segment: results.SegmentProduct,
			Predicate:         All(Condition{"F10", CmpGT, 0.70}, Condition{"F15", CmpGT, 0.50}),
			StrategicResponse: "Lead marketing with proof of quality; the halo supports both share and price.",
			EffectSizeHints:   map[string]float64{"conversion_lift": 0.14},
			ProbabilityRange:  [2]float64{0.50, 0.82},
			Simulation:        SimulationParams{PatternMultiplier: 1.15, IndustryFactor: 1.00, TimeDecayFactor: 0.95},
		},
		{
			ID: "PRD-04", Name: "innovation_engine", Type: TypeGrowth, Segment: results.SegmentProduct,
			Predicate:         All(Condition{"F25", CmpGT, 0.65}, Condition{"F9", CmpGT, 0.55}),
			StrategicResponse: "Ship the pipeline on a drumbeat cadence; a visible innovation rhythm compounds positioning.",
			EffectSizeHints:   map[string]float64{"pipeline_value": 0.18},
			ProbabilityRange:  [2]float64{0.48, 0.78},
			Simulation:        SimulationParams{PatternMultiplier: 1.12, IndustryFactor: 1.03, TimeDecayFactor: 0.93},
		},
		{
			ID: "PRD-05", Name: "price_pressure", Type: TypeRisk, Segment: results.SegmentProduct,
			Predicate:         Any(Condition{"F15", CmpLT, 0.35}, Condition{"F16", CmpLT, 0.30}),
			StrategicResponse: "Restructure cost or reposition up-market; the current price-margin posture is not sustainable.",
			EffectSizeHints:   map[string]float64{"margin_compression": 0.22},
			ProbabilityRange:  [2]float64{0.30, 0.60},
			Simulation:        SimulationParams{PatternMultiplier: 0.75, IndustryFactor: 0.90, TimeDecayFactor: 0.88},
		},

		// ── Brand segment ────────────────────────────────────────────────
		{
			ID: "BRD-01", Name: "brand_equity_moat", Type: TypeCompetitive, Segment: results.SegmentBrand,
			Predicate:         All(Condition{"F22", CmpGT, 0.65}, Condition{"F23", CmpGT, 0.60}),
			StrategicResponse: "Extend the brand into adjacent categories; recognition plus loyalty travels.",
			EffectSizeHints:   map[string]float64{"extension_success": 0.20},
			ProbabilityRange:  [2]float64{0.55, 0.85},
			Simulation:        SimulationParams{PatternMultiplier: 1.18, IndustryFactor: 1.04, TimeDecayFactor: 0.96},
		},
		{
			ID: "BRD-02", Name: "positioning_drift", Type: TypeRisk, Segment: results.SegmentBrand,
			Predicate:         All(Condition{"F24", CmpLT, 0.40}),
			StrategicResponse: "Re-anchor the positioning before spending on reach; unclear positioning wastes media.",
			EffectSizeHints:   map[string]float64{"media_efficiency": -0.18},
			ProbabilityRange:  [2]float64{0.35, 0.65},
			Simulation:        SimulationParams{PatternMultiplier: 0.82, IndustryFactor: 0.94, TimeDecayFactor: 0.90},
		},
		{
			ID: "BRD-03", Name: "alliance_amplifier", Type: TypeGrowth, Segment: results.SegmentBrand,
			Predicate:         All(Condition{"F26", CmpGT, 0.60}, Condition{"F22", CmpGT, 0.50}),
			StrategicResponse: "Co-market through the strongest alliances; borrowed trust scales cheaper than bought reach.",
			EffectSizeHints:   map[string]float64{"reach_multiplier": 0.25},
			ProbabilityRange:  [2]float64{0.48, 0.78},
			Simulation:        SimulationParams{PatternMultiplier: 1.10, IndustryFactor: 1.02, TimeDecayFactor: 0.94},
		},
		{
			ID: "BRD-04", Name: "revenue_concentration_risk", Type: TypeRisk, Segment: results.SegmentBrand,
			Predicate:         All(Condition{"F19", CmpLT, 0.35}),
			StrategicResponse: "Diversify revenue streams deliberately; concentration converts any shock into an existential one.",
			EffectSizeHints:   map[string]float64{"downside_exposure": 0.30},
			ProbabilityRange:  [2]float64{0.30, 0.60},
			Simulation:        SimulationParams{PatternMultiplier: 0.78, IndustryFactor: 0.92, TimeDecayFactor: 0.88},
		},
		{
			ID: "BRD-05", Name: "challenger_breakout", Type: TypeOpportunity, Segment: results.SegmentBrand,
			Predicate: Predicate{Op: OpOr, Subs: []Predicate{
				All(Condition{"F24", CmpGT, 0.70}, Condition{"F22", CmpLT, 0.50}),
				All(Condition{"F26", CmpGT, 0.70}, Condition{"F23", CmpGT, 0.55}),
			}},
			StrategicResponse: "Run a focused challenger play: sharp positioning or strong alliances can outrun low awareness.",
			EffectSizeHints:   map[string]float64{"awareness_growth": 0.30},
			ProbabilityRange:  [2]float64{0.40, 0.72},
			Simulation:        SimulationParams{PatternMultiplier: 1.08, IndustryFactor: 1.00, TimeDecayFactor: 0.91},
		},

		// ── Experience segment ───────────────────────────────────────────
		{
			ID: "EXP-01", Name: "frictionless_journey", Type: TypeOpportunity, Segment: results.SegmentExperience,
			Predicate:         All(Condition{"F14", CmpGT, 0.65}, Condition{"F7", CmpGT, 0.55}),
			StrategicResponse: "Promote the experience itself; consistent journeys across wide channels convert reputation into growth.",
			EffectSizeHints:   map[string]float64{"nps_lift": 0.16},
			ProbabilityRange:  [2]float64{0.52, 0.82},
			Simulation:        SimulationParams{PatternMultiplier: 1.14, IndustryFactor: 1.02, TimeDecayFactor: 0.95},
		},
		{
			ID: "EXP-02", Name: "operational_drag", Type: TypeRisk, Segment: results.SegmentExperience,
			Predicate:         All(Condition{"F20", CmpLT, 0.40}, Condition{"F27", CmpLT, 0.50}),
			StrategicResponse: "Fix cost structure and delivery discipline before scaling; growth amplifies operational drag.",
			EffectSizeHints:   map[string]float64{"opex_overrun": 0.20},
			ProbabilityRange:  [2]float64{0.32, 0.62},
			Simulation:        SimulationParams{PatternMultiplier: 0.76, IndustryFactor: 0.90, TimeDecayFactor: 0.87},
		},
		{
			ID: "EXP-03", Name: "execution_edge", Type: TypeCompetitive, Segment: results.SegmentExperience,
			Predicate:         All(Condition{"F27", CmpGT, 0.70}, Condition{"F21", CmpGT, 0.50}),
			StrategicResponse: "Out-execute rather than out-spend; reliable delivery plus funding headroom wins drawn-out contests.",
			EffectSizeHints:   map[string]float64{"win_rate": 0.15},
			ProbabilityRange:  [2]float64{0.52, 0.82},
			Simulation:        SimulationParams{PatternMultiplier: 1.16, IndustryFactor: 1.03, TimeDecayFactor: 0.95},
		},
		{
			ID: "EXP-04", Name: "exposure_alert", Type: TypeRisk, Segment: results.SegmentExperience,
			Predicate:         All(Condition{"F28", CmpLT, 0.35}),
			StrategicResponse: "Build resilience buffers now; current threat exposure outpaces the ability to absorb shocks.",
			EffectSizeHints:   map[string]float64{"shock_sensitivity": 0.28},
			ProbabilityRange:  [2]float64{0.30, 0.58},
			Simulation:        SimulationParams{PatternMultiplier: 0.72, IndustryFactor: 0.88, TimeDecayFactor: 0.86},
		},
		{
			ID: "EXP-05", Name: "scalable_reach", Type: TypeGrowth, Segment: results.SegmentExperience,
			Predicate:         All(Condition{"F7", CmpGT, 0.70}, Condition{"F20", CmpGT, 0.55}),
			StrategicResponse: "Scale distribution aggressively; reach and cost structure both support volume.",
			EffectSizeHints:   map[string]float64{"volume_growth": 0.22},
			ProbabilityRange:  [2]float64{0.50, 0.80},
			Simulation:        SimulationParams{PatternMultiplier: 1.12, IndustryFactor: 1.02, TimeDecayFactor: 0.94},
		},
	}
}
