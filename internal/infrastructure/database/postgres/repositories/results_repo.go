package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// ResultsRepo is the PostgreSQL implementation of results.Repository.
// Every write is an upsert on the entity's natural unique key, enforced
// by unique indexes in the schema.
type ResultsRepo struct {
	db  queryExecutor
	log logging.Logger
}

// NewResultsRepo builds the repository over a *sql.DB or *sql.Tx.
func NewResultsRepo(db queryExecutor, log logging.Logger) *ResultsRepo {
	if log == nil {
		log = logging.Default()
	}
	return &ResultsRepo{db: db, log: log.Named("results_repo")}
}

var _ results.Repository = (*ResultsRepo)(nil)

// TryStartGeneration claims the session for a new run in one conditional
// upsert.  The WHERE clause on the conflict arm is what makes the claim
// atomic: a row already in processing matches nothing, affects zero
// rows, and the caller backs off.
func (r *ResultsRepo) TryStartGeneration(ctx context.Context, sessionID common.SessionID, topic string, now time.Time) (bool, error) {
	const query = `
		INSERT INTO generation_status (
			session_id, topic, status, current_stage, progress_percentage,
			total_segments, completed_segments, started_at, completed_at,
			updated_at, error_message
		) VALUES ($1, $2, 'processing', 'starting', 0, $3, 0, $4, NULL, $4, '')
		ON CONFLICT (session_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			status = 'processing',
			current_stage = 'starting',
			progress_percentage = 0,
			total_segments = EXCLUDED.total_segments,
			completed_segments = 0,
			started_at = EXCLUDED.started_at,
			completed_at = NULL,
			updated_at = EXCLUDED.updated_at,
			error_message = ''
		WHERE generation_status.status IN ('pending', 'completed', 'failed')`

	res, err := r.db.ExecContext(ctx, query, sessionID, topic, results.SegmentCount, now)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to claim generation run")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read claim result")
	}
	return affected == 1, nil
}

// UpdateStatus overwrites the mutable fields of the session's status row.
func (r *ResultsRepo) UpdateStatus(ctx context.Context, status *results.GenerationStatus) error {
	const query = `
		UPDATE generation_status SET
			status = $2,
			current_stage = $3,
			progress_percentage = $4,
			completed_segments = $5,
			completed_at = $6,
			updated_at = $7,
			error_message = $8
		WHERE session_id = $1`

	res, err := r.db.ExecContext(ctx, query,
		status.SessionID, status.Status, status.CurrentStage,
		status.ProgressPercentage, status.CompletedSegments,
		status.CompletedAt, status.UpdatedAt, status.ErrorMessage,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update generation status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read status update result")
	}
	if affected == 0 {
		return errors.Newf(errors.ErrCodeGenerationNotFound, "no generation run for session %s", status.SessionID)
	}
	return nil
}

// GetGenerationStatus returns the status row, nil when the session never
// generated.
func (r *ResultsRepo) GetGenerationStatus(ctx context.Context, sessionID common.SessionID) (*results.GenerationStatus, error) {
	const query = `
		SELECT session_id, topic, status, current_stage, progress_percentage,
		       total_segments, completed_segments, started_at, completed_at,
		       updated_at, error_message
		FROM generation_status
		WHERE session_id = $1`

	var st results.GenerationStatus
	var startedAt, completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&st.SessionID, &st.Topic, &st.Status, &st.CurrentStage,
		&st.ProgressPercentage, &st.TotalSegments, &st.CompletedSegments,
		&startedAt, &completedAt, &st.UpdatedAt, &st.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load generation status")
	}
	if startedAt.Valid {
		st.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		st.CompletedAt = &completedAt.Time
	}
	return &st, nil
}

// ResultsExist reports whether the session's run completed.
func (r *ResultsRepo) ResultsExist(ctx context.Context, sessionID common.SessionID) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM generation_status WHERE session_id = $1 AND status = 'completed')`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check results existence")
	}
	return exists, nil
}

// ResetStaleProcessing force-fails runs stuck in processing since before
// the cutoff and returns how many were reset.
func (r *ResultsRepo) ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `
		UPDATE generation_status SET
			status = 'failed',
			error_message = 'generation timed out',
			completed_at = NOW(),
			updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1`

	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to reset stale runs")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read stale reset result")
	}
	if affected > 0 {
		r.log.Warn("reset stale processing runs", logging.Int64("count", affected))
	}
	return affected, nil
}

// UpsertFactorScores writes factor scores keyed by (session_id, factor_id).
func (r *ResultsRepo) UpsertFactorScores(ctx context.Context, scores []results.FactorScore) error {
	const query = `
		INSERT INTO factor_scores (
			session_id, topic, segment, factor_id, value, confidence,
			formula_applied, calculation_metadata, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, factor_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			segment = EXCLUDED.segment,
			value = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			formula_applied = EXCLUDED.formula_applied,
			calculation_metadata = EXCLUDED.calculation_metadata,
			updated_at = EXCLUDED.updated_at`

	for i := range scores {
		s := &scores[i]
		if err := s.Validate(); err != nil {
			return err
		}
		meta, err := marshalJSONB(s.CalcMetadata)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			s.SessionID, s.Topic, s.Segment, s.FactorID, s.Value,
			s.Confidence, s.FormulaApplied, meta, s.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert factor score")
		}
	}
	return nil
}

// UpsertPatternMatches writes matches keyed by (session_id, pattern_id).
func (r *ResultsRepo) UpsertPatternMatches(ctx context.Context, matches []results.PatternMatch) error {
	const query = `
		INSERT INTO pattern_matches (
			session_id, topic, segment, pattern_id, pattern_name, pattern_type,
			confidence, match_score, strategic_response, effect_size_hints,
			probability_low, probability_high, factors_triggered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, pattern_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			segment = EXCLUDED.segment,
			pattern_name = EXCLUDED.pattern_name,
			pattern_type = EXCLUDED.pattern_type,
			confidence = EXCLUDED.confidence,
			match_score = EXCLUDED.match_score,
			strategic_response = EXCLUDED.strategic_response,
			effect_size_hints = EXCLUDED.effect_size_hints,
			probability_low = EXCLUDED.probability_low,
			probability_high = EXCLUDED.probability_high,
			factors_triggered = EXCLUDED.factors_triggered`

	for i := range matches {
		m := &matches[i]
		hints, err := marshalJSONB(m.EffectSizeHints)
		if err != nil {
			return err
		}
		triggered, err := marshalJSONB(m.FactorsTriggered)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			m.SessionID, m.Topic, m.Segment, m.PatternID, m.PatternName,
			m.PatternType, m.Confidence, m.MatchScore, m.StrategicResponse,
			hints, m.ProbabilityRange[0], m.ProbabilityRange[1], triggered,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert pattern match")
		}
	}
	return nil
}

// UpsertScenarios writes scenarios keyed by (session_id, scenario_id).
func (r *ResultsRepo) UpsertScenarios(ctx context.Context, scenarios []results.MonteCarloScenario) error {
	const query = `
		INSERT INTO monte_carlo_scenarios (
			session_id, topic, segment, scenario_id, pattern_id, pattern_name,
			strategic_response, kpi_results, probability_success,
			ci_low, ci_high, iterations, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, scenario_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			segment = EXCLUDED.segment,
			pattern_id = EXCLUDED.pattern_id,
			pattern_name = EXCLUDED.pattern_name,
			strategic_response = EXCLUDED.strategic_response,
			kpi_results = EXCLUDED.kpi_results,
			probability_success = EXCLUDED.probability_success,
			ci_low = EXCLUDED.ci_low,
			ci_high = EXCLUDED.ci_high,
			iterations = EXCLUDED.iterations,
			error_message = EXCLUDED.error_message`

	for i := range scenarios {
		s := &scenarios[i]
		kpi, err := marshalJSONB(s.KPIResults)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			s.SessionID, s.Topic, s.Segment, s.ScenarioID, s.PatternID,
			s.PatternName, s.StrategicResponse, kpi, s.ProbabilitySuccess,
			s.ConfidenceInterval[0], s.ConfidenceInterval[1], s.Iterations,
			s.ErrorMessage,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert scenario")
		}
	}
	return nil
}

// UpsertPersonas writes personas keyed by (session_id, persona_name).
func (r *ResultsRepo) UpsertPersonas(ctx context.Context, personas []results.ConsumerPersona) error {
	const query = `
		INSERT INTO consumer_personas (
			session_id, topic, persona_name, age, demographics, psychographics,
			pain_points, goals, buying_behavior, market_share, value_tier,
			key_messaging, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, persona_name) DO UPDATE SET
			topic = EXCLUDED.topic,
			age = EXCLUDED.age,
			demographics = EXCLUDED.demographics,
			psychographics = EXCLUDED.psychographics,
			pain_points = EXCLUDED.pain_points,
			goals = EXCLUDED.goals,
			buying_behavior = EXCLUDED.buying_behavior,
			market_share = EXCLUDED.market_share,
			value_tier = EXCLUDED.value_tier,
			key_messaging = EXCLUDED.key_messaging,
			confidence = EXCLUDED.confidence`

	for i := range personas {
		p := &personas[i]
		painPoints, err := marshalJSONB(p.PainPoints)
		if err != nil {
			return err
		}
		goals, err := marshalJSONB(p.Goals)
		if err != nil {
			return err
		}
		messaging, err := marshalJSONB(p.KeyMessaging)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			p.SessionID, p.Topic, p.PersonaName, p.Age, p.Demographics,
			p.Psychographics, painPoints, goals, p.BuyingBehavior,
			p.MarketShare, p.ValueTier, messaging, p.Confidence,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert persona")
		}
	}
	return nil
}

// UpsertRichContent writes rich content keyed by
// (session_id, segment, content_type).
func (r *ResultsRepo) UpsertRichContent(ctx context.Context, content []results.SegmentRichContent) error {
	const query = `
		INSERT INTO segment_rich_content (
			session_id, topic, segment, content_type, content_data
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, segment, content_type) DO UPDATE SET
			topic = EXCLUDED.topic,
			content_data = EXCLUDED.content_data`

	for i := range content {
		c := &content[i]
		data, err := marshalJSONB(c.ContentData)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			c.SessionID, c.Topic, c.Segment, c.ContentType, data,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert rich content")
		}
	}
	return nil
}

// GetFactors loads the segment's factor scores ordered by factor_id.
func (r *ResultsRepo) GetFactors(ctx context.Context, sessionID common.SessionID, segment results.Segment) ([]results.FactorScore, error) {
	const query = `
		SELECT session_id, topic, segment, factor_id, value, confidence,
		       formula_applied, calculation_metadata, updated_at
		FROM factor_scores
		WHERE session_id = $1 AND segment = $2
		ORDER BY factor_id`

	rows, err := r.db.QueryContext(ctx, query, sessionID, segment)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load factor scores")
	}
	defer rows.Close()

	var out []results.FactorScore
	for rows.Next() {
		var fs results.FactorScore
		var meta []byte
		if err := rows.Scan(
			&fs.SessionID, &fs.Topic, &fs.Segment, &fs.FactorID, &fs.Value,
			&fs.Confidence, &fs.FormulaApplied, &meta, &fs.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan factor score")
		}
		if err := unmarshalJSONB(meta, &fs.CalcMetadata); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// GetPatternMatches loads the segment's matches ordered by match score.
func (r *ResultsRepo) GetPatternMatches(ctx context.Context, sessionID common.SessionID, segment results.Segment) ([]results.PatternMatch, error) {
	const query = `
		SELECT session_id, topic, segment, pattern_id, pattern_name,
		       pattern_type, confidence, match_score, strategic_response,
		       effect_size_hints, probability_low, probability_high,
		       factors_triggered
		FROM pattern_matches
		WHERE session_id = $1 AND segment = $2
		ORDER BY match_score DESC, pattern_id`

	rows, err := r.db.QueryContext(ctx, query, sessionID, segment)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load pattern matches")
	}
	defer rows.Close()

	var out []results.PatternMatch
	for rows.Next() {
		var pm results.PatternMatch
		var hints, triggered []byte
		if err := rows.Scan(
			&pm.SessionID, &pm.Topic, &pm.Segment, &pm.PatternID,
			&pm.PatternName, &pm.PatternType, &pm.Confidence, &pm.MatchScore,
			&pm.StrategicResponse, &hints,
			&pm.ProbabilityRange[0], &pm.ProbabilityRange[1], &triggered,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan pattern match")
		}
		if err := unmarshalJSONB(hints, &pm.EffectSizeHints); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(triggered, &pm.FactorsTriggered); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

// GetScenarios loads the segment's scenarios ordered by scenario_id.
func (r *ResultsRepo) GetScenarios(ctx context.Context, sessionID common.SessionID, segment results.Segment) ([]results.MonteCarloScenario, error) {
	const query = `
		SELECT session_id, topic, segment, scenario_id, pattern_id,
		       pattern_name, strategic_response, kpi_results,
		       probability_success, ci_low, ci_high, iterations, error_message
		FROM monte_carlo_scenarios
		WHERE session_id = $1 AND segment = $2
		ORDER BY scenario_id`

	rows, err := r.db.QueryContext(ctx, query, sessionID, segment)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load scenarios")
	}
	defer rows.Close()

	var out []results.MonteCarloScenario
	for rows.Next() {
		var sc results.MonteCarloScenario
		var kpi []byte
		if err := rows.Scan(
			&sc.SessionID, &sc.Topic, &sc.Segment, &sc.ScenarioID,
			&sc.PatternID, &sc.PatternName, &sc.StrategicResponse, &kpi,
			&sc.ProbabilitySuccess, &sc.ConfidenceInterval[0],
			&sc.ConfidenceInterval[1], &sc.Iterations, &sc.ErrorMessage,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan scenario")
		}
		if err := unmarshalJSONB(kpi, &sc.KPIResults); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GetPersonas loads the session's personas ordered by market share.
func (r *ResultsRepo) GetPersonas(ctx context.Context, sessionID common.SessionID) ([]results.ConsumerPersona, error) {
	const query = `
		SELECT session_id, topic, persona_name, age, demographics,
		       psychographics, pain_points, goals, buying_behavior,
		       market_share, value_tier, key_messaging, confidence
		FROM consumer_personas
		WHERE session_id = $1
		ORDER BY market_share DESC, persona_name`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load personas")
	}
	defer rows.Close()

	var out []results.ConsumerPersona
	for rows.Next() {
		var p results.ConsumerPersona
		var painPoints, goals, messaging []byte
		if err := rows.Scan(
			&p.SessionID, &p.Topic, &p.PersonaName, &p.Age, &p.Demographics,
			&p.Psychographics, &painPoints, &goals, &p.BuyingBehavior,
			&p.MarketShare, &p.ValueTier, &messaging, &p.Confidence,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan persona")
		}
		if err := unmarshalJSONB(painPoints, &p.PainPoints); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(goals, &p.Goals); err != nil {
			return nil, err
		}
		if err := unmarshalJSONB(messaging, &p.KeyMessaging); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetRichContent loads the segment's rich content, narrowed to one
// content type when contentType is non-empty.
func (r *ResultsRepo) GetRichContent(ctx context.Context, sessionID common.SessionID, segment results.Segment, contentType string) ([]results.SegmentRichContent, error) {
	query := `
		SELECT session_id, topic, segment, content_type, content_data
		FROM segment_rich_content
		WHERE session_id = $1 AND segment = $2`
	args := []interface{}{sessionID, segment}
	if contentType != "" {
		query += ` AND content_type = $3`
		args = append(args, contentType)
	}
	query += ` ORDER BY content_type`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load rich content")
	}
	defer rows.Close()

	var out []results.SegmentRichContent
	for rows.Next() {
		var rc results.SegmentRichContent
		var data []byte
		if err := rows.Scan(&rc.SessionID, &rc.Topic, &rc.Segment, &rc.ContentType, &data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan rich content")
		}
		if err := unmarshalJSONB(data, &rc.ContentData); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// resultTables are the five result entity tables; generation_status is
// deliberately not among them.
var resultTables = []string{
	"factor_scores",
	"pattern_matches",
	"monte_carlo_scenarios",
	"consumer_personas",
	"segment_rich_content",
}

// ClearResults deletes the session's result rows but keeps its
// generation status row intact.
func (r *ResultsRepo) ClearResults(ctx context.Context, sessionID common.SessionID) error {
	for _, table := range resultTables {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = $1", sessionID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear "+table)
		}
	}
	r.log.Info("cleared session results", logging.String("session_id", string(sessionID)))
	return nil
}

// ClearAll deletes every entity kind for the session, status included.
func (r *ResultsRepo) ClearAll(ctx context.Context, sessionID common.SessionID) error {
	if err := r.ClearResults(ctx, sessionID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM generation_status WHERE session_id = $1", sessionID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear generation_status")
	}
	return nil
}
