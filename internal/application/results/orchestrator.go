// Package results drives the generation pipeline: it claims a session,
// collects content, scores factors, matches patterns, simulates
// scenarios, synthesizes personas, and persists everything with
// monotonic progress tracking.  The companion Reader serves persisted
// results without recomputation.
package results

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/stratlens/stratlens/internal/analysis/actionlayers"
	"github.com/stratlens/stratlens/internal/analysis/factors"
	"github.com/stratlens/stratlens/internal/analysis/montecarlo"
	"github.com/stratlens/stratlens/internal/analysis/patterns"
	"github.com/stratlens/stratlens/internal/analysis/personas"
	domain "github.com/stratlens/stratlens/internal/domain/results"
	content "github.com/stratlens/stratlens/internal/infrastructure/content/opensearch"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/prometheus"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Stage names recorded in GenerationStatus.CurrentStage.  Per-segment
// stages use the segment name itself.
const (
	StageCollectContent = "collect_content"
	StageFactorScoring  = "factor_scoring"
	StageFinalize       = "finalize"
)

// ContentSource is the research-content collaborator.  An empty result
// is valid; the pipeline degrades to floored confidence.
type ContentSource interface {
	FetchSegmentContent(ctx context.Context, sessionID common.SessionID, topic string, segment domain.Segment) ([]content.Snippet, error)
}

// CacheInvalidator drops a session's cached bundles when a new run
// starts or the session is cleared.
type CacheInvalidator interface {
	InvalidateSession(ctx context.Context, sessionID common.SessionID) error
}

// Archiver stores the completed bundle set, best effort.
type Archiver interface {
	ArchiveSession(ctx context.Context, sessionID common.SessionID, topic string, bundles []domain.SegmentBundle) error
}

// CompletionPublisher announces finished runs, best effort.
type CompletionPublisher interface {
	PublishGenerationCompleted(ctx context.Context, payload kafka.GenerationCompletedPayload) error
}

// OrchestratorDeps wires the orchestrator.  Repo is required; nil
// analysis components fall back to the shipped defaults, and nil
// collaborators disable their concern.
type OrchestratorDeps struct {
	Repo      domain.Repository
	Source    ContentSource
	Engine    *factors.Engine
	Library   *patterns.Library
	Simulator *montecarlo.Simulator
	Layers    *actionlayers.Calculator
	Personas  *personas.Synthesizer
	Cache     CacheInvalidator
	Archiver  Archiver
	Publisher CompletionPublisher
	Metrics   *prometheus.Metrics
	Logger    logging.Logger
}

// Orchestrator runs the generation state machine for one session at a
// time per call.  It is safe for concurrent use across sessions; the
// store-level conditional claim serializes runs within a session.
type Orchestrator struct {
	repo      domain.Repository
	source    ContentSource
	engine    *factors.Engine
	library   *patterns.Library
	simulator *montecarlo.Simulator
	layers    *actionlayers.Calculator
	personas  *personas.Synthesizer
	cache     CacheInvalidator
	archiver  Archiver
	publisher CompletionPublisher
	metrics   *prometheus.Metrics
	logger    logging.Logger
	now       func() time.Time
}

// NewOrchestrator builds an orchestrator from its dependencies.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Repo == nil {
		return nil, errors.NewValidation("orchestrator: repository must not be nil")
	}
	log := deps.Logger
	if log == nil {
		log = logging.Default()
	}
	if deps.Engine == nil {
		deps.Engine = factors.NewEngine(log)
	}
	if deps.Library == nil {
		deps.Library = patterns.NewLibrary()
	}
	if deps.Simulator == nil {
		deps.Simulator = montecarlo.NewSimulator(log, 0)
	}
	if deps.Layers == nil {
		deps.Layers = actionlayers.NewCalculator()
	}
	if deps.Personas == nil {
		deps.Personas = personas.NewSynthesizer(nil, log, 0, 0)
	}
	return &Orchestrator{
		repo:      deps.Repo,
		source:    deps.Source,
		engine:    deps.Engine,
		library:   deps.Library,
		simulator: deps.Simulator,
		layers:    deps.Layers,
		personas:  deps.Personas,
		cache:     deps.Cache,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    log.Named("orchestrator"),
		now:       time.Now,
	}, nil
}

// Generate runs the full pipeline for a session.  Without force, a
// session with completed results is a no-op.  A session already in
// processing returns ErrCodeGenerationInProgress; the caller decides
// whether that is an error or a collapse.
func (o *Orchestrator) Generate(ctx context.Context, sessionID common.SessionID, topic string, force bool) error {
	if sessionID == "" {
		return errors.NewValidation("generate: session id must not be empty")
	}

	if !force {
		exists, err := o.repo.ResultsExist(ctx, sessionID)
		if err != nil {
			return err
		}
		if exists {
			o.logger.Info("results already complete, skipping",
				logging.String("session_id", string(sessionID)))
			return nil
		}
	}

	claimed, err := o.repo.TryStartGeneration(ctx, sessionID, topic, o.now())
	if err != nil {
		return err
	}
	if !claimed {
		return errors.Newf(errors.ErrCodeGenerationInProgress,
			"generation already in progress for session %s", sessionID)
	}

	if o.cache != nil {
		if err := o.cache.InvalidateSession(ctx, sessionID); err != nil {
			o.logger.Warn("cache invalidation failed",
				logging.String("session_id", string(sessionID)), logging.Err(err))
		}
	}
	if force {
		// ClearResults, not ClearAll: the status row just claimed above
		// must survive, or the run loses its own processing claim.
		if err := o.repo.ClearResults(ctx, sessionID); err != nil {
			return o.fail(ctx, sessionID, topic, err)
		}
	}

	start := o.now()
	bundles, failedSegments, err := o.run(ctx, sessionID, topic)
	if err != nil {
		return o.fail(ctx, sessionID, topic, err)
	}

	duration := o.now().Sub(start)
	o.logger.Info("generation complete",
		logging.String("session_id", string(sessionID)),
		logging.Duration("duration", duration),
		logging.Int("failed_segments", len(failedSegments)),
	)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(string(domain.StateCompleted), duration)
	}
	o.archive(ctx, sessionID, topic, bundles)
	o.announce(ctx, sessionID, topic, domain.StateCompleted, len(bundles)-len(failedSegments), failedSegments)
	return nil
}

// run executes the segment loop.  An error return is run-level: the
// caller flips the session to failed.  Per-segment errors are absorbed
// into error markers and reported via failedSegments.
func (o *Orchestrator) run(ctx context.Context, sessionID common.SessionID, topic string) ([]domain.SegmentBundle, []string, error) {
	status, err := o.repo.GetGenerationStatus(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if status == nil {
		return nil, nil, errors.Newf(errors.ErrCodeGenerationNotFound,
			"no generation run for session %s", sessionID)
	}

	if err := o.progress(ctx, status, StageCollectContent); err != nil {
		return nil, nil, err
	}
	segmentContent, fetchErrs := o.collectContent(ctx, sessionID, topic)

	if err := o.progress(ctx, status, StageFactorScoring); err != nil {
		return nil, nil, err
	}
	scores, err := o.engine.CalculateAll(buildFactorInputs(segmentContent))
	if err != nil {
		return nil, nil, err
	}
	patternValues := toPatternValues(scores)
	layerOutput := o.layers.CalculateAll(toLayerValues(scores))

	now := o.now()
	bundles := make([]domain.SegmentBundle, 0, domain.SegmentCount)
	var failedSegments []string
	for _, segment := range domain.AllSegments() {
		if err := o.progress(ctx, status, string(segment)); err != nil {
			return nil, nil, err
		}

		var bundle domain.SegmentBundle
		segErr := fetchErrs[segment]
		if segErr == nil {
			segStart := o.now()
			bundle, segErr = o.processSegment(ctx, sessionID, topic, segment, scores, patternValues, layerOutput, segmentContent[segment], now)
			if o.metrics != nil {
				o.metrics.ObserveStage(string(segment), o.now().Sub(segStart))
			}
		}
		if segErr != nil {
			o.logger.Error("segment generation failed",
				logging.String("session_id", string(sessionID)),
				logging.String("segment", string(segment)),
				logging.Err(segErr),
			)
			if o.metrics != nil {
				o.metrics.SegmentFailuresTotal.WithLabelValues(string(segment)).Inc()
			}
			failedSegments = append(failedSegments, string(segment))
			bundle = o.markSegmentError(ctx, sessionID, topic, segment, segErr)
		} else {
			status.CompletedSegments++
		}
		bundles = append(bundles, bundle)
		status.ProgressPercentage = 100 * float64(len(bundles)) / float64(domain.SegmentCount)
		if err := o.progress(ctx, status, string(segment)); err != nil {
			return nil, nil, err
		}
	}

	completedAt := o.now()
	status.Status = domain.StateCompleted
	status.CurrentStage = StageFinalize
	status.CompletedAt = &completedAt
	if err := o.progress(ctx, status, StageFinalize); err != nil {
		return nil, nil, err
	}
	return bundles, failedSegments, nil
}

// processSegment runs the analysis chain for one segment and persists
// its rows.  Everything it writes is an idempotent upsert, so a retry
// after a mid-segment crash supersedes instead of duplicating.
func (o *Orchestrator) processSegment(
	ctx context.Context,
	sessionID common.SessionID,
	topic string,
	segment domain.Segment,
	scores *factors.ScoreSet,
	patternValues map[string]patterns.FactorValue,
	layerOutput *actionlayers.Output,
	snippets []content.Snippet,
	now time.Time,
) (domain.SegmentBundle, error) {
	bundle := domain.SegmentBundle{SessionID: sessionID, Topic: topic, Segment: segment}

	bundle.Factors = scores.ToFactorScores(sessionID, topic, segment, now)
	if err := o.repo.UpsertFactorScores(ctx, bundle.Factors); err != nil {
		return bundle, err
	}

	matches := o.library.Match(segment, patternValues)
	bundle.Patterns = make([]domain.PatternMatch, 0, len(matches))
	bundle.Scenarios = make([]domain.MonteCarloScenario, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		bundle.Patterns = append(bundle.Patterns, m.ToPatternMatch(sessionID, topic))

		outcome, simErr := o.simulator.RunPatternSimulation(simulationParams(m, sessionID))
		if simErr != nil {
			// Bad simulation parameters are fatal to this pattern's
			// scenario only.  Record the failure on the scenario row and
			// keep simulating the sibling patterns.
			o.logger.Warn("pattern simulation failed",
				logging.String("session_id", string(sessionID)),
				logging.String("segment", string(segment)),
				logging.String("pattern_id", m.Pattern.ID),
				logging.Err(simErr),
			)
			bundle.Scenarios = append(bundle.Scenarios, domain.MonteCarloScenario{
				SessionID:         sessionID,
				Topic:             topic,
				Segment:           segment,
				ScenarioID:        "scn-" + m.Pattern.ID,
				PatternID:         m.Pattern.ID,
				PatternName:       m.Pattern.Name,
				StrategicResponse: m.Pattern.StrategicResponse,
				ErrorMessage:      simErr.Error(),
			})
			continue
		}
		bundle.Scenarios = append(bundle.Scenarios, outcome.ToScenario(
			sessionID, topic, segment, m.Pattern.ID, m.Pattern.Name, m.Pattern.StrategicResponse))
	}
	if err := o.repo.UpsertPatternMatches(ctx, bundle.Patterns); err != nil {
		return bundle, err
	}
	if err := o.repo.UpsertScenarios(ctx, bundle.Scenarios); err != nil {
		return bundle, err
	}

	if segment == domain.SegmentConsumer {
		bundle.Personas = o.personas.Generate(ctx, sessionID, topic, content.Texts(snippets))
		if err := o.repo.UpsertPersonas(ctx, bundle.Personas); err != nil {
			return bundle, err
		}
	}

	bundle.RichContent = []domain.SegmentRichContent{
		layerOutput.ToRichContent(sessionID, topic, segment),
	}
	if err := o.repo.UpsertRichContent(ctx, bundle.RichContent); err != nil {
		return bundle, err
	}
	return bundle, nil
}

// collectContent fetches research snippets for every segment.  A fetch
// failure is returned per segment so the run loop records that segment's
// error marker; an empty (but successful) result is not an error and
// merely floors factor confidence.
func (o *Orchestrator) collectContent(ctx context.Context, sessionID common.SessionID, topic string) (map[domain.Segment][]content.Snippet, map[domain.Segment]error) {
	out := make(map[domain.Segment][]content.Snippet, domain.SegmentCount)
	fetchErrs := make(map[domain.Segment]error)
	if o.source == nil {
		return out, fetchErrs
	}
	for _, segment := range domain.AllSegments() {
		snippets, err := o.source.FetchSegmentContent(ctx, sessionID, topic, segment)
		if err != nil {
			o.logger.Warn("content fetch failed",
				logging.String("session_id", string(sessionID)),
				logging.String("segment", string(segment)),
				logging.Err(err),
			)
			fetchErrs[segment] = errors.Wrap(err, errors.ErrCodeContentSourceUnavailable,
				"content fetch failed for segment "+string(segment))
			continue
		}
		out[segment] = snippets
	}
	return out, fetchErrs
}

// markSegmentError persists the segment's error marker so the read path
// can report the partial failure.  The marker write itself is best
// effort; a failure here only logs.
func (o *Orchestrator) markSegmentError(ctx context.Context, sessionID common.SessionID, topic string, segment domain.Segment, segErr error) domain.SegmentBundle {
	marker := domain.SegmentRichContent{
		SessionID:   sessionID,
		Topic:       topic,
		Segment:     segment,
		ContentType: domain.ContentTypeError,
		ContentData: map[string]interface{}{
			"error": segErr.Error(),
			"code":  string(errors.GetCode(segErr)),
		},
	}
	if err := o.repo.UpsertRichContent(ctx, []domain.SegmentRichContent{marker}); err != nil {
		o.logger.Error("failed to persist segment error marker",
			logging.String("session_id", string(sessionID)),
			logging.String("segment", string(segment)),
			logging.Err(err),
		)
	}
	return domain.SegmentBundle{
		SessionID:   sessionID,
		Topic:       topic,
		Segment:     segment,
		RichContent: []domain.SegmentRichContent{marker},
	}
}

// progress writes the status row with the given stage.
func (o *Orchestrator) progress(ctx context.Context, status *domain.GenerationStatus, stage string) error {
	status.CurrentStage = stage
	status.UpdatedAt = o.now()
	return o.repo.UpdateStatus(ctx, status)
}

// fail flips the session to failed with the run error recorded.
func (o *Orchestrator) fail(ctx context.Context, sessionID common.SessionID, topic string, runErr error) error {
	o.logger.Error("generation run failed",
		logging.String("session_id", string(sessionID)),
		logging.Err(runErr),
	)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(string(domain.StateFailed), 0)
	}

	status, err := o.repo.GetGenerationStatus(ctx, sessionID)
	if err != nil || status == nil {
		o.logger.Error("cannot load status row to record failure", logging.Err(err))
	} else {
		completedAt := o.now()
		status.Status = domain.StateFailed
		status.CompletedAt = &completedAt
		status.UpdatedAt = completedAt
		status.ErrorMessage = runErr.Error()
		if err := o.repo.UpdateStatus(ctx, status); err != nil {
			o.logger.Error("cannot record failed status", logging.Err(err))
		}
	}
	o.announce(ctx, sessionID, topic, domain.StateFailed, 0, nil)
	return runErr
}

func (o *Orchestrator) archive(ctx context.Context, sessionID common.SessionID, topic string, bundles []domain.SegmentBundle) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchiveSession(ctx, sessionID, topic, bundles); err != nil {
		o.logger.Warn("bundle archival failed",
			logging.String("session_id", string(sessionID)), logging.Err(err))
	}
}

func (o *Orchestrator) announce(ctx context.Context, sessionID common.SessionID, topic string, state domain.GenerationState, completed int, failedSegments []string) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.PublishGenerationCompleted(ctx, kafka.GenerationCompletedPayload{
		SessionID:         sessionID,
		Topic:             topic,
		Status:            string(state),
		CompletedSegments: completed,
		FailedSegments:    failedSegments,
		CompletedAt:       o.now().UTC(),
	})
	if err != nil {
		o.logger.Warn("completion event publish failed",
			logging.String("session_id", string(sessionID)), logging.Err(err))
	}
}

// buildFactorInputs aggregates snippet metrics into per-factor inputs.
// Each metric key is averaged across the snippets that carry it; a
// factor's confidence grows with how many snippets back its fields.
func buildFactorInputs(segmentContent map[domain.Segment][]content.Snippet) []factors.Input {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, snippets := range segmentContent {
		for _, sn := range snippets {
			for name, v := range sn.Metrics {
				sums[name] += v
				counts[name]++
			}
		}
	}

	var inputs []factors.Input
	for _, def := range factors.Definitions() {
		fields := make(map[string]float64, len(def.Fields))
		support := 0
		for _, fs := range def.Fields {
			if n := counts[fs.Name]; n > 0 {
				fields[fs.Name] = sums[fs.Name] / float64(n)
				if n > support {
					support = n
				}
			}
		}
		if len(fields) == 0 {
			continue
		}
		// Three independent sources is treated as full confidence.
		confidence := float64(support) / 3
		if confidence > 1 {
			confidence = 1
		}
		inputs = append(inputs, factors.Input{
			FactorID:   def.ID,
			Fields:     fields,
			Confidence: confidence,
		})
	}
	return inputs
}

func toPatternValues(scores *factors.ScoreSet) map[string]patterns.FactorValue {
	out := make(map[string]patterns.FactorValue, len(scores.Factors))
	for id, r := range scores.Factors {
		out[id] = patterns.FactorValue{Value: r.Value, Confidence: r.Confidence}
	}
	return out
}

func toLayerValues(scores *factors.ScoreSet) map[string]actionlayers.FactorValue {
	out := make(map[string]actionlayers.FactorValue, len(scores.Factors))
	for id, r := range scores.Factors {
		out[id] = actionlayers.FactorValue{Value: r.Value, Confidence: r.Confidence}
	}
	return out
}

// simulationParams assembles the simulator call for one match.  The
// pattern's effect-size hints drive the uncertainty spread, and the seed
// is derived from (session, pattern) so regeneration reproduces the same
// scenario rows.
func simulationParams(m *patterns.Match, sessionID common.SessionID) montecarlo.Params {
	// A hint's sign encodes the effect direction; only its magnitude is a
	// spread.  Patterns with adverse hints must still simulate.
	uncertainties := make(map[string]montecarlo.Uncertainty, len(m.Pattern.EffectSizeHints))
	for name, hint := range m.Pattern.EffectSizeHints {
		uncertainties[name] = montecarlo.Uncertainty{Std: math.Abs(hint)}
	}
	return montecarlo.Params{
		ExpectedScore:     m.MatchScore,
		PatternMultiplier: m.Pattern.Simulation.PatternMultiplier,
		IndustryFactor:    m.Pattern.Simulation.IndustryFactor,
		TimeDecayFactor:   m.Pattern.Simulation.TimeDecayFactor,
		Uncertainties:     uncertainties,
		Seed:              simulationSeed(sessionID, m.Pattern.ID),
	}
}

func simulationSeed(sessionID common.SessionID, patternID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{'|'})
	h.Write([]byte(patternID))
	return int64(h.Sum64())
}
