package results

import (
	"context"
	"time"

	"github.com/stratlens/stratlens/pkg/types/common"
)

// Repository is the persistence contract for the six pipeline entity kinds.
// All writes are idempotent upserts keyed by each entity's natural unique
// key; re-running generation supersedes prior values instead of duplicating
// rows.  Uniqueness is additionally enforced by unique indexes at the
// storage layer.
type Repository interface {
	// TryStartGeneration atomically transitions the session's status from
	// {absent, completed, failed} to processing in a single conditional
	// write.  It returns false, with no error, when another run already
	// holds the processing state.  This is the at-most-one-run guard; it
	// must never be implemented as a read-then-write.
	TryStartGeneration(ctx context.Context, sessionID common.SessionID, topic string, now time.Time) (bool, error)

	// UpdateStatus overwrites the mutable progress fields of the session's
	// status row.
	UpdateStatus(ctx context.Context, status *GenerationStatus) error

	// GetGenerationStatus returns the status row, or nil when the session
	// has never generated.
	GetGenerationStatus(ctx context.Context, sessionID common.SessionID) (*GenerationStatus, error)

	// ResultsExist reports whether the full pipeline completed for the
	// session.  It reflects GenerationStatus.Status == completed, not the
	// presence of individual rows, so callers deciding "read cache vs.
	// regenerate" never trust a half-written result set.
	ResultsExist(ctx context.Context, sessionID common.SessionID) (bool, error)

	// ResetStaleProcessing force-fails runs stuck in processing whose
	// updated_at is older than the cutoff, and returns how many were
	// reset.  Required so a crashed run cannot deadlock its session
	// forever.
	ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error)

	UpsertFactorScores(ctx context.Context, scores []FactorScore) error
	UpsertPatternMatches(ctx context.Context, matches []PatternMatch) error
	UpsertScenarios(ctx context.Context, scenarios []MonteCarloScenario) error
	UpsertPersonas(ctx context.Context, personas []ConsumerPersona) error
	UpsertRichContent(ctx context.Context, content []SegmentRichContent) error

	GetFactors(ctx context.Context, sessionID common.SessionID, segment Segment) ([]FactorScore, error)
	GetPatternMatches(ctx context.Context, sessionID common.SessionID, segment Segment) ([]PatternMatch, error)
	GetScenarios(ctx context.Context, sessionID common.SessionID, segment Segment) ([]MonteCarloScenario, error)
	GetPersonas(ctx context.Context, sessionID common.SessionID) ([]ConsumerPersona, error)

	// GetRichContent returns the segment's rich content rows; contentType
	// narrows to a single tag when non-empty.
	GetRichContent(ctx context.Context, sessionID common.SessionID, segment Segment, contentType string) ([]SegmentRichContent, error)

	// ClearResults deletes the five result entity kinds for a session
	// but keeps the generation status row.  Used by forced regeneration,
	// which has already claimed the status row for the new run.
	ClearResults(ctx context.Context, sessionID common.SessionID) error

	// ClearAll deletes all six entity kinds for a session, the status
	// row included.  Used by the external clear operation and tests.
	ClearAll(ctx context.Context, sessionID common.SessionID) error
}
