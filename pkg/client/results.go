package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ResultsClient accesses the results resource of analysis sessions.
type ResultsClient struct {
	client *Client
}

// FactorScore is one scored strategic factor.
type FactorScore struct {
	SessionID      string                 `json:"session_id"`
	Topic          string                 `json:"topic"`
	Segment        string                 `json:"segment"`
	FactorID       string                 `json:"factor_id"`
	Value          float64                `json:"value"`
	Confidence     float64                `json:"confidence"`
	FormulaApplied string                 `json:"formula_applied"`
	CalcMetadata   map[string]interface{} `json:"calculation_metadata,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// PatternMatch is one triggered strategic pattern.
type PatternMatch struct {
	SessionID         string             `json:"session_id"`
	Topic             string             `json:"topic"`
	Segment           string             `json:"segment"`
	PatternID         string             `json:"pattern_id"`
	PatternName       string             `json:"pattern_name"`
	PatternType       string             `json:"pattern_type"`
	Confidence        float64            `json:"confidence"`
	MatchScore        float64            `json:"match_score"`
	StrategicResponse string             `json:"strategic_response"`
	EffectSizeHints   map[string]float64 `json:"effect_size_hints,omitempty"`
	ProbabilityRange  [2]float64         `json:"probability_range"`
	FactorsTriggered  []string           `json:"factors_triggered"`
}

// Scenario is one simulated outcome for a matched pattern.
type Scenario struct {
	SessionID          string             `json:"session_id"`
	Topic              string             `json:"topic"`
	Segment            string             `json:"segment"`
	ScenarioID         string             `json:"scenario_id"`
	PatternID          string             `json:"pattern_id"`
	PatternName        string             `json:"pattern_name"`
	StrategicResponse  string             `json:"strategic_response"`
	KPIResults         map[string]float64 `json:"kpi_results"`
	ProbabilitySuccess float64            `json:"probability_success"`
	ConfidenceInterval [2]float64         `json:"confidence_interval"`
	Iterations         int                `json:"iterations"`
	ErrorMessage       string             `json:"error_message,omitempty"`
}

// Persona is one synthesized consumer persona.
type Persona struct {
	SessionID      string   `json:"session_id"`
	Topic          string   `json:"topic"`
	PersonaName    string   `json:"persona_name"`
	Age            string   `json:"age"`
	Demographics   string   `json:"demographics"`
	Psychographics string   `json:"psychographics"`
	PainPoints     []string `json:"pain_points"`
	Goals          []string `json:"goals"`
	BuyingBehavior string   `json:"buying_behavior"`
	MarketShare    float64  `json:"market_share"`
	ValueTier      string   `json:"value_tier"`
	KeyMessaging   []string `json:"key_messaging"`
	Confidence     float64  `json:"confidence"`
}

// RichContent is one structured content block of a segment.
type RichContent struct {
	SessionID   string                 `json:"session_id"`
	Topic       string                 `json:"topic"`
	Segment     string                 `json:"segment"`
	ContentType string                 `json:"content_type"`
	ContentData map[string]interface{} `json:"content_data"`
}

// SegmentBundle is the full result set of one segment.
type SegmentBundle struct {
	SessionID   string         `json:"session_id"`
	Topic       string         `json:"topic"`
	Segment     string         `json:"segment"`
	Factors     []FactorScore  `json:"factors"`
	Patterns    []PatternMatch `json:"patterns"`
	Scenarios   []Scenario     `json:"scenarios"`
	Personas    []Persona      `json:"personas,omitempty"`
	RichContent []RichContent  `json:"rich_content,omitempty"`
}

// GenerationStatus is the progress row of a generation run.
type GenerationStatus struct {
	SessionID          string     `json:"session_id"`
	Topic              string     `json:"topic"`
	Status             string     `json:"status"`
	CurrentStage       string     `json:"current_stage"`
	ProgressPercentage float64    `json:"progress_percentage"`
	TotalSegments      int        `json:"total_segments"`
	CompletedSegments  int        `json:"completed_segments"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ErrorMessage       string     `json:"error_message,omitempty"`
}

// SessionResults is the full bundle set of a session.
type SessionResults struct {
	SessionID string          `json:"session_id"`
	Segments  []SegmentBundle `json:"segments"`
}

// GenerateRequest asks for a generation run.
type GenerateRequest struct {
	Topic string `json:"topic"`
	Force bool   `json:"force"`
}

// GenerateAck acknowledges an accepted generation request.
type GenerateAck struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Generate queues a generation run for the session.  The server answers
// before the run finishes; poll Status to follow progress.
func (rc *ResultsClient) Generate(ctx context.Context, sessionID string, req GenerateRequest) (*GenerateAck, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("stratlens: sessionID must not be empty")
	}
	var ack GenerateAck
	path := fmt.Sprintf("%s/sessions/%s/results/generate", apiPrefix, url.PathEscape(sessionID))
	if err := rc.client.post(ctx, path, req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Status fetches the generation progress of a session.
func (rc *ResultsClient) Status(ctx context.Context, sessionID string) (*GenerationStatus, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("stratlens: sessionID must not be empty")
	}
	var status GenerationStatus
	path := fmt.Sprintf("%s/sessions/%s/results/status", apiPrefix, url.PathEscape(sessionID))
	if err := rc.client.get(ctx, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Get fetches all five segment bundles of a completed session.
func (rc *ResultsClient) Get(ctx context.Context, sessionID string) (*SessionResults, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("stratlens: sessionID must not be empty")
	}
	var results SessionResults
	path := fmt.Sprintf("%s/sessions/%s/results", apiPrefix, url.PathEscape(sessionID))
	if err := rc.client.get(ctx, path, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Segment fetches one segment bundle of a completed session.
func (rc *ResultsClient) Segment(ctx context.Context, sessionID, segment string) (*SegmentBundle, error) {
	if sessionID == "" || segment == "" {
		return nil, fmt.Errorf("stratlens: sessionID and segment must not be empty")
	}
	var bundle SegmentBundle
	path := fmt.Sprintf("%s/sessions/%s/results/segments/%s",
		apiPrefix, url.PathEscape(sessionID), url.PathEscape(segment))
	if err := rc.client.get(ctx, path, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Clear deletes all persisted results of a session.
func (rc *ResultsClient) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("stratlens: sessionID must not be empty")
	}
	path := fmt.Sprintf("%s/sessions/%s/results", apiPrefix, url.PathEscape(sessionID))
	return rc.client.delete(ctx, path)
}
