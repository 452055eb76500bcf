package results

import (
	"time"

	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// GenerationState is the lifecycle state of one session's generation run.
type GenerationState string

const (
	StatePending    GenerationState = "pending"
	StateProcessing GenerationState = "processing"
	StateCompleted  GenerationState = "completed"
	StateFailed     GenerationState = "failed"
)

// FactorScore is one normalized factor result for a session.  factor_id is
// globally unique per session because each factor belongs to exactly one
// segment by definition.
type FactorScore struct {
	SessionID      common.SessionID       `json:"session_id"`
	Topic          string                 `json:"topic"`
	Segment        Segment                `json:"segment"`
	FactorID       string                 `json:"factor_id"`
	Value          float64                `json:"value"`      // [0,1]
	Confidence     float64                `json:"confidence"` // [0,1]
	FormulaApplied string                 `json:"formula_applied"`
	CalcMetadata   map[string]interface{} `json:"calculation_metadata,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Validate checks the range invariants before persistence.
func (f *FactorScore) Validate() error {
	if f.SessionID == "" {
		return errors.NewValidation("factor score: session_id must not be empty")
	}
	if f.FactorID == "" {
		return errors.NewValidation("factor score: factor_id must not be empty")
	}
	if !f.Segment.Valid() {
		return errors.Newf(errors.ErrCodeValidation, "factor score %s: invalid segment %q", f.FactorID, f.Segment)
	}
	if f.Value < 0 || f.Value > 1 {
		return errors.Newf(errors.ErrCodeValidation, "factor score %s: value %f outside [0,1]", f.FactorID, f.Value)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return errors.Newf(errors.ErrCodeValidation, "factor score %s: confidence %f outside [0,1]", f.FactorID, f.Confidence)
	}
	return nil
}

// PatternMatch is one strategic pattern that triggered against a session's
// factor scores.  Many rows per (session, segment); append-only within one
// generation run.
type PatternMatch struct {
	SessionID         common.SessionID `json:"session_id"`
	Topic             string           `json:"topic"`
	Segment           Segment          `json:"segment"`
	PatternID         string           `json:"pattern_id"`
	PatternName       string           `json:"pattern_name"`
	PatternType       string           `json:"pattern_type"`
	Confidence        float64          `json:"confidence"`
	MatchScore        float64          `json:"match_score"`
	StrategicResponse string           `json:"strategic_response"`
	EffectSizeHints   map[string]float64 `json:"effect_size_hints,omitempty"`
	ProbabilityRange  [2]float64       `json:"probability_range"`
	FactorsTriggered  []string         `json:"factors_triggered"`
}

// MonteCarloScenario is the summarized outcome distribution for one matched
// pattern.  scenario_id is unique per session; regeneration upserts rather
// than duplicates.
type MonteCarloScenario struct {
	SessionID          common.SessionID   `json:"session_id"`
	Topic              string             `json:"topic"`
	Segment            Segment            `json:"segment"`
	ScenarioID         string             `json:"scenario_id"`
	PatternID          string             `json:"pattern_id"`
	PatternName        string             `json:"pattern_name"`
	StrategicResponse  string             `json:"strategic_response"`
	KPIResults         map[string]float64 `json:"kpi_results"`
	ProbabilitySuccess float64            `json:"probability_success"` // [0,1]
	ConfidenceInterval [2]float64         `json:"confidence_interval"`
	Iterations         int                `json:"iterations"`

	// ErrorMessage is set when the pattern's simulation failed; the
	// statistics fields are zero in that case.
	ErrorMessage string `json:"error_message,omitempty"`
}

// ConsumerPersona is a synthesized consumer archetype.  Only the consumer
// segment produces personas; shares across a session sum to 1.0.
type ConsumerPersona struct {
	SessionID      common.SessionID `json:"session_id"`
	Topic          string           `json:"topic"`
	PersonaName    string           `json:"persona_name"`
	Age            string           `json:"age"`
	Demographics   string           `json:"demographics"`
	Psychographics string           `json:"psychographics"`
	PainPoints     []string         `json:"pain_points"`
	Goals          []string         `json:"goals"`
	BuyingBehavior string           `json:"buying_behavior"`
	MarketShare    float64          `json:"market_share"` // (0,1]
	ValueTier      string           `json:"value_tier"`
	KeyMessaging   []string         `json:"key_messaging"`
	Confidence     float64          `json:"confidence"`
}

// SegmentRichContent holds non-tabular derived artifacts keyed by a
// content-type tag, unique per (session, segment, content_type).
type SegmentRichContent struct {
	SessionID   common.SessionID       `json:"session_id"`
	Topic       string                 `json:"topic"`
	Segment     Segment                `json:"segment"`
	ContentType string                 `json:"content_type"`
	ContentData map[string]interface{} `json:"content_data"`
}

// ContentTypeError tags the rich-content row that carries a segment's error
// marker when that segment failed during generation.
const ContentTypeError = "generation_error"

// GenerationStatus is the single progress-tracking row per session.
type GenerationStatus struct {
	SessionID          common.SessionID `json:"session_id"`
	Topic              string           `json:"topic"`
	Status             GenerationState  `json:"status"`
	CurrentStage       string           `json:"current_stage"`
	ProgressPercentage float64          `json:"progress_percentage"` // [0,100]
	TotalSegments      int              `json:"total_segments"`
	CompletedSegments  int              `json:"completed_segments"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
	ErrorMessage       string           `json:"error_message,omitempty"`
}

// Terminal reports whether the run has finished, successfully or not.
func (g *GenerationStatus) Terminal() bool {
	return g.Status == StateCompleted || g.Status == StateFailed
}

// SegmentBundle is the full persisted result set for one segment, the unit
// returned by the read path.
type SegmentBundle struct {
	SessionID   common.SessionID     `json:"session_id"`
	Topic       string               `json:"topic"`
	Segment     Segment              `json:"segment"`
	Factors     []FactorScore        `json:"factors"`
	Patterns    []PatternMatch       `json:"patterns"`
	Scenarios   []MonteCarloScenario `json:"scenarios"`
	Personas    []ConsumerPersona    `json:"personas,omitempty"`
	RichContent []SegmentRichContent `json:"rich_content,omitempty"`
}

// ErrorMarker returns the segment's generation error description if the
// bundle carries one, and whether it does.
func (b *SegmentBundle) ErrorMarker() (string, bool) {
	for _, rc := range b.RichContent {
		if rc.ContentType == ContentTypeError {
			if msg, ok := rc.ContentData["error"].(string); ok {
				return msg, true
			}
			return "generation failed", true
		}
	}
	return "", false
}
