package results

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/internal/analysis/factors"
	"github.com/stratlens/stratlens/internal/analysis/montecarlo"
	"github.com/stratlens/stratlens/internal/analysis/patterns"
	domain "github.com/stratlens/stratlens/internal/domain/results"
	content "github.com/stratlens/stratlens/internal/infrastructure/content/opensearch"
	"github.com/stratlens/stratlens/internal/infrastructure/messaging/kafka"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// fakeRepo is an in-memory Repository with the same claim and upsert
// semantics as the Postgres implementation.
type fakeRepo struct {
	mu        sync.Mutex
	status    map[common.SessionID]domain.GenerationStatus
	factors   map[string]domain.FactorScore
	patterns  map[string]domain.PatternMatch
	scenarios map[string]domain.MonteCarloScenario
	personas  map[string]domain.ConsumerPersona
	rich      map[string]domain.SegmentRichContent

	clearCalls        int
	clearResultsCalls int
	startCalls        int

	// failUpdateStage makes UpdateStatus fail while the run is still
	// processing in the given stage.
	failUpdateStage string
	// failFactorSegment makes UpsertFactorScores fail for that segment.
	failFactorSegment domain.Segment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		status:    map[common.SessionID]domain.GenerationStatus{},
		factors:   map[string]domain.FactorScore{},
		patterns:  map[string]domain.PatternMatch{},
		scenarios: map[string]domain.MonteCarloScenario{},
		personas:  map[string]domain.ConsumerPersona{},
		rich:      map[string]domain.SegmentRichContent{},
	}
}

func (f *fakeRepo) TryStartGeneration(_ context.Context, sessionID common.SessionID, topic string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if st, ok := f.status[sessionID]; ok && st.Status == domain.StateProcessing {
		return false, nil
	}
	started := now
	f.status[sessionID] = domain.GenerationStatus{
		SessionID:     sessionID,
		Topic:         topic,
		Status:        domain.StateProcessing,
		TotalSegments: domain.SegmentCount,
		StartedAt:     &started,
		UpdatedAt:     now,
	}
	return true, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, status *domain.GenerationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateStage != "" && status.Status == domain.StateProcessing && status.CurrentStage == f.failUpdateStage {
		return errors.New(errors.ErrCodeDatabaseError, "injected update failure")
	}
	st, ok := f.status[status.SessionID]
	if !ok {
		return errors.Newf(errors.ErrCodeGenerationNotFound, "no generation run for session %s", status.SessionID)
	}
	st.Status = status.Status
	st.CurrentStage = status.CurrentStage
	st.ProgressPercentage = status.ProgressPercentage
	st.CompletedSegments = status.CompletedSegments
	st.CompletedAt = status.CompletedAt
	st.UpdatedAt = status.UpdatedAt
	st.ErrorMessage = status.ErrorMessage
	f.status[status.SessionID] = st
	return nil
}

func (f *fakeRepo) GetGenerationStatus(_ context.Context, sessionID common.SessionID) (*domain.GenerationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[sessionID]
	if !ok {
		return nil, nil
	}
	out := st
	return &out, nil
}

func (f *fakeRepo) ResultsExist(_ context.Context, sessionID common.SessionID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[sessionID]
	return ok && st.Status == domain.StateCompleted, nil
}

func (f *fakeRepo) ResetStaleProcessing(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, st := range f.status {
		if st.Status == domain.StateProcessing && st.UpdatedAt.Before(olderThan) {
			st.Status = domain.StateFailed
			st.ErrorMessage = "generation timed out"
			f.status[id] = st
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) UpsertFactorScores(_ context.Context, scores []domain.FactorScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range scores {
		if f.failFactorSegment != "" && s.Segment == f.failFactorSegment {
			return errors.New(errors.ErrCodeDatabaseError, "injected factor upsert failure")
		}
		f.factors[string(s.SessionID)+"|"+s.FactorID] = s
	}
	return nil
}

func (f *fakeRepo) UpsertPatternMatches(_ context.Context, matches []domain.PatternMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range matches {
		f.patterns[string(m.SessionID)+"|"+string(m.Segment)+"|"+m.PatternID] = m
	}
	return nil
}

func (f *fakeRepo) UpsertScenarios(_ context.Context, scenarios []domain.MonteCarloScenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range scenarios {
		f.scenarios[string(s.SessionID)+"|"+s.ScenarioID] = s
	}
	return nil
}

func (f *fakeRepo) UpsertPersonas(_ context.Context, personas []domain.ConsumerPersona) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range personas {
		f.personas[string(p.SessionID)+"|"+p.PersonaName] = p
	}
	return nil
}

func (f *fakeRepo) UpsertRichContent(_ context.Context, rows []domain.SegmentRichContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rich[string(r.SessionID)+"|"+string(r.Segment)+"|"+r.ContentType] = r
	}
	return nil
}

func (f *fakeRepo) GetFactors(_ context.Context, sessionID common.SessionID, segment domain.Segment) ([]domain.FactorScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FactorScore
	for _, s := range f.factors {
		if s.SessionID == sessionID && s.Segment == segment {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FactorID < out[j].FactorID })
	return out, nil
}

func (f *fakeRepo) GetPatternMatches(_ context.Context, sessionID common.SessionID, segment domain.Segment) ([]domain.PatternMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PatternMatch
	for _, m := range f.patterns {
		if m.SessionID == sessionID && m.Segment == segment {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternID < out[j].PatternID })
	return out, nil
}

func (f *fakeRepo) GetScenarios(_ context.Context, sessionID common.SessionID, segment domain.Segment) ([]domain.MonteCarloScenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MonteCarloScenario
	for _, s := range f.scenarios {
		if s.SessionID == sessionID && s.Segment == segment {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out, nil
}

func (f *fakeRepo) GetPersonas(_ context.Context, sessionID common.SessionID) ([]domain.ConsumerPersona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ConsumerPersona
	for _, p := range f.personas {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonaName < out[j].PersonaName })
	return out, nil
}

func (f *fakeRepo) GetRichContent(_ context.Context, sessionID common.SessionID, segment domain.Segment, contentType string) ([]domain.SegmentRichContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SegmentRichContent
	for _, r := range f.rich {
		if r.SessionID == sessionID && r.Segment == segment && (contentType == "" || r.ContentType == contentType) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentType < out[j].ContentType })
	return out, nil
}

func (f *fakeRepo) ClearResults(_ context.Context, sessionID common.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearResultsCalls++
	f.deleteResults(sessionID)
	return nil
}

func (f *fakeRepo) ClearAll(_ context.Context, sessionID common.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.deleteResults(sessionID)
	delete(f.status, sessionID)
	return nil
}

func (f *fakeRepo) deleteResults(sessionID common.SessionID) {
	prefix := string(sessionID) + "|"
	for k := range f.factors {
		if strings.HasPrefix(k, prefix) {
			delete(f.factors, k)
		}
	}
	for k := range f.patterns {
		if strings.HasPrefix(k, prefix) {
			delete(f.patterns, k)
		}
	}
	for k := range f.scenarios {
		if strings.HasPrefix(k, prefix) {
			delete(f.scenarios, k)
		}
	}
	for k := range f.personas {
		if strings.HasPrefix(k, prefix) {
			delete(f.personas, k)
		}
	}
	for k := range f.rich {
		if strings.HasPrefix(k, prefix) {
			delete(f.rich, k)
		}
	}
}

type fakeSource struct {
	bySegment    map[domain.Segment][]content.Snippet
	errBySegment map[domain.Segment]error
	err          error
}

func (s *fakeSource) FetchSegmentContent(_ context.Context, _ common.SessionID, _ string, segment domain.Segment) ([]content.Snippet, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := s.errBySegment[segment]; err != nil {
		return nil, err
	}
	return s.bySegment[segment], nil
}

type fakePublisher struct {
	payloads []kafka.GenerationCompletedPayload
}

func (p *fakePublisher) PublishGenerationCompleted(_ context.Context, payload kafka.GenerationCompletedPayload) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type fakeArchiver struct {
	sessions map[common.SessionID][]domain.SegmentBundle
}

func (a *fakeArchiver) ArchiveSession(_ context.Context, sessionID common.SessionID, _ string, bundles []domain.SegmentBundle) error {
	if a.sessions == nil {
		a.sessions = map[common.SessionID][]domain.SegmentBundle{}
	}
	a.sessions[sessionID] = bundles
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	bundles     map[string]*domain.SegmentBundle
	invalidated int
}

func (c *fakeCache) key(sessionID common.SessionID, segment domain.Segment) string {
	return string(sessionID) + "|" + string(segment)
}

func (c *fakeCache) Get(_ context.Context, sessionID common.SessionID, segment domain.Segment) (*domain.SegmentBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bundles[c.key(sessionID, segment)]
	return b, ok
}

func (c *fakeCache) Set(_ context.Context, bundle *domain.SegmentBundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundles == nil {
		c.bundles = map[string]*domain.SegmentBundle{}
	}
	c.bundles[c.key(bundle.SessionID, bundle.Segment)] = bundle
	return nil
}

func (c *fakeCache) InvalidateSession(_ context.Context, sessionID common.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	for k := range c.bundles {
		if strings.HasPrefix(k, string(sessionID)+"|") {
			delete(c.bundles, k)
		}
	}
	return nil
}

// testContent backs the consumer factors so both the affinity pattern
// (high sentiment and engagement, low switching friction) and the
// efficient-funnel pattern (cheap acquisition, fast adoption) trigger.
func testContent() map[domain.Segment][]content.Snippet {
	return map[domain.Segment][]content.Snippet{
		domain.SegmentConsumer: {
			{
				DocID: "doc-1", Title: "Community survey", Text: "Buyers love the product.",
				Metrics: map[string]float64{
					"sentiment_score":  0.9,
					"engagement_depth": 0.9,
					"lock_in_strength": 0.1,
					"migration_cost":   0.1,
					"trial_conversion": 0.9,
					"activation_speed": 0.9,
					"cac_score":        0.1,
					"organic_share":    0.9,
				},
			},
		},
		domain.SegmentMarket: {
			{
				DocID: "doc-2", Title: "Analyst report", Text: "Growing market.",
				Metrics: map[string]float64{
					"tam_score": 0.8,
					"sam_ratio": 0.7,
				},
			},
		},
	}
}

func newTestOrchestrator(t *testing.T, repo *fakeRepo) (*Orchestrator, *fakePublisher, *fakeArchiver, *fakeCache) {
	t.Helper()
	publisher := &fakePublisher{}
	archiver := &fakeArchiver{}
	cache := &fakeCache{}
	orch, err := NewOrchestrator(OrchestratorDeps{
		Repo:      repo,
		Source:    &fakeSource{bySegment: testContent()},
		Cache:     cache,
		Archiver:  archiver,
		Publisher: publisher,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)
	return orch, publisher, archiver, cache
}

func TestGenerateFullRun(t *testing.T) {
	repo := newFakeRepo()
	orch, publisher, archiver, cache := newTestOrchestrator(t, repo)

	require.NoError(t, orch.Generate(context.Background(), "s1", "cold brew makers", false))

	st, err := repo.GetGenerationStatus(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.Equal(t, StageFinalize, st.CurrentStage)
	assert.Equal(t, 100.0, st.ProgressPercentage)
	assert.Equal(t, domain.SegmentCount, st.CompletedSegments)
	assert.NotNil(t, st.CompletedAt)

	// Every factor is persisted exactly once across the five segments.
	assert.Len(t, repo.factors, factors.FactorCount)

	// The consumer content triggers the affinity pattern, and every
	// persisted match has its simulated scenario.
	_, ok := repo.patterns["s1|consumer|CON-01"]
	assert.True(t, ok, "affinity pattern should match")
	// The efficient-funnel pattern carries an adverse effect-size hint;
	// its scenario must still simulate cleanly.
	_, ok = repo.patterns["s1|consumer|CON-03"]
	assert.True(t, ok, "efficient funnel pattern should match")
	assert.NotEmpty(t, repo.scenarios)
	assert.Len(t, repo.scenarios, len(repo.patterns))
	for _, sc := range repo.scenarios {
		assert.Equal(t, "scn-"+sc.PatternID, sc.ScenarioID)
		assert.Empty(t, sc.ErrorMessage, "scenario %s should simulate", sc.ScenarioID)
		assert.Positive(t, sc.Iterations)
	}

	// Personas only for the consumer segment, shares summing to one.
	require.NotEmpty(t, repo.personas)
	var shareSum float64
	for _, p := range repo.personas {
		assert.EqualValues(t, "s1", p.SessionID)
		shareSum += p.MarketShare
	}
	assert.InDelta(t, 1.0, shareSum, 1e-6)

	// Each segment carries its action-layer content.
	for _, seg := range domain.AllSegments() {
		_, ok := repo.rich["s1|"+string(seg)+"|action_layers"]
		assert.True(t, ok, "missing action layers for %s", seg)
	}

	require.Len(t, publisher.payloads, 1)
	payload := publisher.payloads[0]
	assert.Equal(t, string(domain.StateCompleted), payload.Status)
	assert.Equal(t, domain.SegmentCount, payload.CompletedSegments)
	assert.Empty(t, payload.FailedSegments)

	assert.Len(t, archiver.sessions["s1"], domain.SegmentCount)
	assert.Equal(t, 1, cache.invalidated)
}

func TestGenerateCollapsesConcurrentRun(t *testing.T) {
	repo := newFakeRepo()
	started := time.Now()
	repo.status["s1"] = domain.GenerationStatus{
		SessionID: "s1", Status: domain.StateProcessing, StartedAt: &started,
	}
	orch, publisher, _, _ := newTestOrchestrator(t, repo)

	err := orch.Generate(context.Background(), "s1", "topic", false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationInProgress))
	assert.Empty(t, publisher.payloads)
}

func TestGenerateSkipsCompletedWithoutForce(t *testing.T) {
	repo := newFakeRepo()
	repo.status["s1"] = domain.GenerationStatus{SessionID: "s1", Status: domain.StateCompleted}
	orch, _, _, _ := newTestOrchestrator(t, repo)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", false))
	assert.Equal(t, 0, repo.startCalls)
	assert.Equal(t, domain.StateCompleted, repo.status["s1"].Status)
}

func TestGenerateForceReruns(t *testing.T) {
	repo := newFakeRepo()
	repo.status["s1"] = domain.GenerationStatus{SessionID: "s1", Status: domain.StateCompleted}
	repo.factors["s1|STALE"] = domain.FactorScore{SessionID: "s1", FactorID: "STALE"}
	orch, _, _, _ := newTestOrchestrator(t, repo)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", true))
	assert.Equal(t, 1, repo.clearResultsCalls)
	assert.Equal(t, 0, repo.clearCalls, "force must not drop the claimed status row")
	_, stale := repo.factors["s1|STALE"]
	assert.False(t, stale, "stale rows should be cleared before the rerun")
	st, ok := repo.status["s1"]
	require.True(t, ok, "status row survives the result wipe")
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.Len(t, repo.factors, factors.FactorCount)
}

func TestSegmentFailureDoesNotAbortRun(t *testing.T) {
	repo := newFakeRepo()
	repo.failFactorSegment = domain.SegmentProduct
	orch, publisher, _, _ := newTestOrchestrator(t, repo)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", false))

	st := repo.status["s1"]
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.Equal(t, domain.SegmentCount-1, st.CompletedSegments)
	assert.Equal(t, 100.0, st.ProgressPercentage)

	marker, ok := repo.rich["s1|product|"+domain.ContentTypeError]
	require.True(t, ok, "failed segment should carry an error marker")
	assert.NotEmpty(t, marker.ContentData["error"])

	// Later segments still ran.
	_, ok = repo.rich["s1|brand|action_layers"]
	assert.True(t, ok)

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, []string{"product"}, publisher.payloads[0].FailedSegments)
}

func TestRunLevelFailureFlipsStatusToFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.failUpdateStage = StageFactorScoring
	orch, _, _, _ := newTestOrchestrator(t, repo)

	err := orch.Generate(context.Background(), "s1", "topic", false)
	require.Error(t, err)

	st := repo.status["s1"]
	assert.Equal(t, domain.StateFailed, st.Status)
	assert.NotEmpty(t, st.ErrorMessage)
	assert.NotNil(t, st.CompletedAt)
}

func TestGenerateIsDeterministicAcrossReruns(t *testing.T) {
	repo := newFakeRepo()
	orch, _, _, _ := newTestOrchestrator(t, repo)

	require.NoError(t, orch.Generate(context.Background(), "s7", "topic", false))
	first := make(map[string]domain.MonteCarloScenario, len(repo.scenarios))
	for k, v := range repo.scenarios {
		first[k] = v
	}

	require.NoError(t, orch.Generate(context.Background(), "s7", "topic", true))
	require.Equal(t, len(first), len(repo.scenarios))
	for k, sc := range repo.scenarios {
		assert.Equal(t, first[k].KPIResults, sc.KPIResults, "scenario %s should reproduce", k)
		assert.Equal(t, first[k].ProbabilitySuccess, sc.ProbabilitySuccess)
	}
}

func TestGenerateSingleSegmentFetchFailureIsContained(t *testing.T) {
	repo := newFakeRepo()
	publisher := &fakePublisher{}
	orch, err := NewOrchestrator(OrchestratorDeps{
		Repo: repo,
		Source: &fakeSource{
			bySegment:    testContent(),
			errBySegment: map[domain.Segment]error{domain.SegmentConsumer: assert.AnError},
		},
		Publisher: publisher,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", false))

	// The run still completes; only the failed segment is down.
	st := repo.status["s1"]
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.Equal(t, domain.SegmentCount-1, st.CompletedSegments)

	// The failed segment carries an error marker instead of data.
	marker, ok := repo.rich["s1|consumer|"+domain.ContentTypeError]
	require.True(t, ok, "fetch failure must leave an error marker")
	assert.NotEmpty(t, marker.ContentData["error"])
	assert.Equal(t, string(errors.ErrCodeContentSourceUnavailable), marker.ContentData["code"])
	_, ok = repo.rich["s1|consumer|action_layers"]
	assert.False(t, ok, "failed segment must not carry regular content")

	// The sibling segments are fully populated.
	for _, seg := range domain.AllSegments() {
		if seg == domain.SegmentConsumer {
			continue
		}
		_, ok := repo.rich["s1|"+string(seg)+"|action_layers"]
		assert.True(t, ok, "missing action layers for %s", seg)
	}
	for _, f := range repo.factors {
		assert.NotEqual(t, domain.SegmentConsumer, f.Segment)
	}

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, []string{"consumer"}, publisher.payloads[0].FailedSegments)
}

func TestGenerateEmptyContentFloorsConfidence(t *testing.T) {
	repo := newFakeRepo()
	publisher := &fakePublisher{}
	orch, err := NewOrchestrator(OrchestratorDeps{
		Repo:      repo,
		Source:    &fakeSource{},
		Publisher: publisher,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", false))
	assert.Equal(t, domain.StateCompleted, repo.status["s1"].Status)

	// An empty (but successful) fetch is not a failure: neutral factors
	// at floored confidence, a full result set, no error markers.
	assert.Len(t, repo.factors, factors.FactorCount)
	for _, f := range repo.factors {
		assert.InDelta(t, 0.2, f.Confidence, 1e-9)
	}
	require.Len(t, publisher.payloads, 1)
	assert.Empty(t, publisher.payloads[0].FailedSegments)
}

func TestSimulationFailureRecordsScenarioAndContinues(t *testing.T) {
	affinity := patterns.All(patterns.Condition{FactorID: "F11", Comparator: patterns.CmpGT, Threshold: 0.60})
	library, err := patterns.NewLibraryWithPatterns([]patterns.Pattern{
		{
			ID: "TST-01", Name: "healthy", Type: patterns.TypeOpportunity, Segment: domain.SegmentConsumer,
			Predicate:  affinity,
			Simulation: patterns.SimulationParams{PatternMultiplier: 1.1, IndustryFactor: 1.0, TimeDecayFactor: 0.95},
		},
		{
			ID: "TST-02", Name: "miscalibrated", Type: patterns.TypeRisk, Segment: domain.SegmentConsumer,
			Predicate: affinity,
			// Zero multiplier fails simulation validation.
			Simulation: patterns.SimulationParams{},
		},
	})
	require.NoError(t, err)

	repo := newFakeRepo()
	publisher := &fakePublisher{}
	orch, err := NewOrchestrator(OrchestratorDeps{
		Repo:      repo,
		Source:    &fakeSource{bySegment: testContent()},
		Library:   library,
		Publisher: publisher,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, orch.Generate(context.Background(), "s1", "topic", false))

	// A bad simulation is fatal to its own scenario only: the segment
	// and the run still complete.
	st := repo.status["s1"]
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.Equal(t, domain.SegmentCount, st.CompletedSegments)
	require.Len(t, publisher.payloads, 1)
	assert.Empty(t, publisher.payloads[0].FailedSegments)

	failed, ok := repo.scenarios["s1|scn-TST-02"]
	require.True(t, ok, "failed simulation still persists its scenario row")
	assert.Contains(t, failed.ErrorMessage, "pattern multiplier")
	assert.Zero(t, failed.Iterations)
	assert.Zero(t, failed.ProbabilitySuccess)

	healthy, ok := repo.scenarios["s1|scn-TST-01"]
	require.True(t, ok, "sibling pattern still simulates")
	assert.Empty(t, healthy.ErrorMessage)
	assert.Positive(t, healthy.Iterations)
}

// Every shipped pattern must survive its own simulation, the adverse
// effect-size hints included.
func TestBuiltinPatternsProduceValidSimulationParams(t *testing.T) {
	library := patterns.NewLibrary()
	sim := montecarlo.NewSimulator(logging.NewNopLogger(), 50)
	for _, segment := range domain.AllSegments() {
		for _, p := range library.PatternsForSegment(segment) {
			m := patterns.Match{Pattern: p, MatchScore: 0.7, Confidence: 0.5}
			out, err := sim.RunPatternSimulation(simulationParams(&m, "s1"))
			require.NoError(t, err, "pattern %s", p.ID)
			assert.Positive(t, out.Iterations)
		}
	}
}

func TestBuildFactorInputs(t *testing.T) {
	inputs := buildFactorInputs(map[domain.Segment][]content.Snippet{
		domain.SegmentMarket: {
			{Metrics: map[string]float64{"tam_score": 0.6}},
			{Metrics: map[string]float64{"tam_score": 1.0, "sam_ratio": 0.5}},
		},
	})

	require.Len(t, inputs, 1)
	in := inputs[0]
	assert.Equal(t, "F1", in.FactorID)
	assert.InDelta(t, 0.8, in.Fields["tam_score"], 1e-9)
	assert.InDelta(t, 0.5, in.Fields["sam_ratio"], 1e-9)
	// Two supporting snippets out of the three needed for full trust.
	assert.InDelta(t, 2.0/3.0, in.Confidence, 1e-9)
}
