package factors

import (
	"sort"
	"time"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// minConfidence is the floor applied when a factor's raw inputs are
// partially or fully absent.  The factor still scores, it just scores
// with low confidence instead of aborting the whole segment.
const minConfidence = 0.2

// neutralFieldValue substitutes for an absent raw field so the formula
// stays computable.  0.5 sits at the logistic midpoint of nearly every
// factor, so substitution pulls the result toward "no signal" rather
// than toward either extreme.
const neutralFieldValue = 0.5

// Input carries the raw field readings for one factor.  Confidence is
// the upstream data-quality estimate in [0,1]; zero means "unstated"
// and is treated as full confidence.
type Input struct {
	FactorID   string
	Fields     map[string]float64
	Confidence float64
}

// TraceStep is one entry of the ordered calculation trace kept for each
// factor result.
type TraceStep struct {
	Stage string  `json:"stage"`
	Value float64 `json:"value"`
}

// Result is one computed factor.
type Result struct {
	FactorID       string
	Name           string
	Category       Category
	Segment        results.Segment
	RawScore       float64
	Value          float64 // logistic-normalized, [0,1]
	Confidence     float64 // [0,1]
	FormulaApplied string
	MissingFields  []string
	Trace          []TraceStep
}

// ScoreSet is the complete output of one scoring pass: all 28 factor
// results plus their category and overall aggregates.
type ScoreSet struct {
	Factors        map[string]Result
	CategoryScores map[Category]float64
	OverallScore   float64

	// MeanConfidence and MinConfidence summarize how much of the input
	// surface was actually backed by data.
	MeanConfidence float64
	MinConfidence  float64
}

// Engine computes the predefined factor set from raw inputs.  It is
// stateless and safe for concurrent use.
type Engine struct {
	log logging.Logger
}

// NewEngine builds a scoring engine.  A nil logger falls back to the
// process default.
func NewEngine(log logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	return &Engine{log: log.Named("factors")}
}

// CalculateAll scores every predefined factor from the given inputs.
// Factors with absent or incomplete inputs are scored at the neutral
// field value with floored confidence; the only error condition is an
// input naming a factor that does not exist.
func (e *Engine) CalculateAll(inputs []Input) (*ScoreSet, error) {
	byID := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		if DefinitionByID(in.FactorID) == nil {
			return nil, errors.Newf(errors.ErrCodeFactorUnknown, "unknown factor id %q", in.FactorID)
		}
		byID[in.FactorID] = in
	}

	set := &ScoreSet{
		Factors:        make(map[string]Result, FactorCount),
		CategoryScores: make(map[Category]float64, len(CategoryWeights)),
		MinConfidence:  1.0,
	}

	catValues := make(map[Category][]float64)
	catWeights := make(map[Category][]float64)
	var confSum float64

	for i := range definitions {
		def := &definitions[i]
		res := e.calculateOne(def, byID[def.ID])
		set.Factors[def.ID] = res

		catValues[def.Category] = append(catValues[def.Category], res.Value)
		catWeights[def.Category] = append(catWeights[def.Category], def.Weight)

		confSum += res.Confidence
		if res.Confidence < set.MinConfidence {
			set.MinConfidence = res.Confidence
		}
	}
	set.MeanConfidence = confSum / FactorCount

	var overallValues, overallWeights []float64
	for _, cat := range AllCategories() {
		score := mathmodel.WeightedMean(catValues[cat], catWeights[cat])
		set.CategoryScores[cat] = score
		overallValues = append(overallValues, score)
		overallWeights = append(overallWeights, CategoryWeights[cat])
	}
	set.OverallScore = mathmodel.WeightedMean(overallValues, overallWeights)

	e.log.Debug("factor scoring complete",
		logging.Int("inputs", len(inputs)),
		logging.Float64("overall_score", set.OverallScore),
		logging.Float64("mean_confidence", set.MeanConfidence),
	)
	return set, nil
}

func (e *Engine) calculateOne(def *Definition, in Input) Result {
	res := Result{
		FactorID:       def.ID,
		Name:           def.Name,
		Category:       def.Category,
		Segment:        def.Segment,
		FormulaApplied: def.Formula(),
	}

	var raw float64
	present := 0
	for _, fs := range def.Fields {
		v, ok := in.Fields[fs.Name]
		if !ok {
			v = neutralFieldValue
			res.MissingFields = append(res.MissingFields, fs.Name)
		} else {
			present++
			v = mathmodel.Clamp01(v)
		}
		if fs.Invert {
			v = 1 - v
		}
		raw += fs.Weight * v
	}
	res.RawScore = raw
	res.Value = mathmodel.LogisticNormalize(raw, def.K, def.Midpoint)

	base := in.Confidence
	if base <= 0 || base > 1 {
		base = 1.0
	}
	completeness := float64(present) / float64(len(def.Fields))
	res.Confidence = mathmodel.Clamp(base*completeness, minConfidence, 1.0)

	res.Trace = []TraceStep{
		{Stage: "fields_present", Value: float64(present)},
		{Stage: "raw_score", Value: res.RawScore},
		{Stage: "logistic_normalized", Value: res.Value},
		{Stage: "confidence", Value: res.Confidence},
	}
	return res
}

// SegmentResults returns the factors owned by the given segment, ordered
// by factor ID for stable persistence and comparison.
func (s *ScoreSet) SegmentResults(segment results.Segment) []Result {
	var out []Result
	for _, r := range s.Factors {
		if r.Segment == segment {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FactorID < out[j].FactorID })
	return out
}

// ToFactorScores converts a segment's results into persistable rows.
func (s *ScoreSet) ToFactorScores(sessionID common.SessionID, topic string, segment results.Segment, now time.Time) []results.FactorScore {
	segResults := s.SegmentResults(segment)
	rows := make([]results.FactorScore, 0, len(segResults))
	for _, r := range segResults {
		meta := map[string]interface{}{
			"category":  string(r.Category),
			"raw_score": r.RawScore,
			"trace":     r.Trace,
		}
		if len(r.MissingFields) > 0 {
			meta["missing_fields"] = r.MissingFields
		}
		rows = append(rows, results.FactorScore{
			SessionID:      sessionID,
			Topic:          topic,
			Segment:        segment,
			FactorID:       r.FactorID,
			Value:          r.Value,
			Confidence:     r.Confidence,
			FormulaApplied: r.FormulaApplied,
			CalcMetadata:   meta,
			UpdatedAt:      now,
		})
	}
	return rows
}
