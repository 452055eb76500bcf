package results

import (
	"context"

	domain "github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// BundleCache caches completed segment bundles on the read path.
type BundleCache interface {
	Get(ctx context.Context, sessionID common.SessionID, segment domain.Segment) (*domain.SegmentBundle, bool)
	Set(ctx context.Context, bundle *domain.SegmentBundle) error
	InvalidateSession(ctx context.Context, sessionID common.SessionID) error
}

// Reader serves persisted results without recomputation.  Completeness
// is always judged from the status row, never from the presence of
// individual rows, so a half-written result set is never served as
// complete.
type Reader struct {
	repo   domain.Repository
	cache  BundleCache
	logger logging.Logger
}

// NewReader builds a read service.  The cache is optional.
func NewReader(repo domain.Repository, cache BundleCache, log logging.Logger) (*Reader, error) {
	if repo == nil {
		return nil, errors.NewValidation("reader: repository must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Reader{repo: repo, cache: cache, logger: log.Named("results_reader")}, nil
}

// Status returns the session's generation status.  A session that never
// generated is ErrCodeGenerationNotFound.
func (r *Reader) Status(ctx context.Context, sessionID common.SessionID) (*domain.GenerationStatus, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("status: session id must not be empty")
	}
	status, err := r.repo.GetGenerationStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, errors.Newf(errors.ErrCodeGenerationNotFound,
			"no generation run for session %s", sessionID)
	}
	return status, nil
}

// ResultsExist reports whether the full pipeline completed.
func (r *Reader) ResultsExist(ctx context.Context, sessionID common.SessionID) (bool, error) {
	return r.repo.ResultsExist(ctx, sessionID)
}

// SegmentBundle returns one segment's persisted results.  A run still
// in flight is ErrCodeGenerationInProgress, a failed run is
// ErrCodeGenerationFailed, and an unknown session is
// ErrCodeGenerationNotFound.
func (r *Reader) SegmentBundle(ctx context.Context, sessionID common.SessionID, segment domain.Segment) (*domain.SegmentBundle, error) {
	if !segment.Valid() {
		return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown segment %q", segment)
	}
	status, err := r.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch status.Status {
	case domain.StateCompleted:
	case domain.StateFailed:
		return nil, errors.Newf(errors.ErrCodeGenerationFailed,
			"generation failed for session %s: %s", sessionID, status.ErrorMessage)
	default:
		return nil, errors.Newf(errors.ErrCodeGenerationInProgress,
			"generation still in progress for session %s", sessionID)
	}

	if r.cache != nil {
		if bundle, ok := r.cache.Get(ctx, sessionID, segment); ok {
			return bundle, nil
		}
	}

	bundle, err := r.assembleBundle(ctx, sessionID, status.Topic, segment)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, bundle); err != nil {
			r.logger.Warn("bundle cache set failed",
				logging.String("session_id", string(sessionID)),
				logging.String("segment", string(segment)),
				logging.Err(err),
			)
		}
	}
	return bundle, nil
}

// SessionBundles returns all five segment bundles of a completed
// session, in canonical segment order.
func (r *Reader) SessionBundles(ctx context.Context, sessionID common.SessionID) ([]domain.SegmentBundle, error) {
	bundles := make([]domain.SegmentBundle, 0, domain.SegmentCount)
	for _, segment := range domain.AllSegments() {
		bundle, err := r.SegmentBundle(ctx, sessionID, segment)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, *bundle)
	}
	return bundles, nil
}

// Clear deletes all persisted results for a session.  A run in flight
// cannot be cleared.
func (r *Reader) Clear(ctx context.Context, sessionID common.SessionID) error {
	if sessionID == "" {
		return errors.NewValidation("clear: session id must not be empty")
	}
	status, err := r.repo.GetGenerationStatus(ctx, sessionID)
	if err != nil {
		return err
	}
	if status != nil && status.Status == domain.StateProcessing {
		return errors.Newf(errors.ErrCodeGenerationInProgress,
			"cannot clear session %s while generation is in progress", sessionID)
	}
	if err := r.repo.ClearAll(ctx, sessionID); err != nil {
		return err
	}
	if r.cache != nil {
		if err := r.cache.InvalidateSession(ctx, sessionID); err != nil {
			r.logger.Warn("cache invalidation failed",
				logging.String("session_id", string(sessionID)), logging.Err(err))
		}
	}
	return nil
}

func (r *Reader) assembleBundle(ctx context.Context, sessionID common.SessionID, topic string, segment domain.Segment) (*domain.SegmentBundle, error) {
	bundle := &domain.SegmentBundle{SessionID: sessionID, Topic: topic, Segment: segment}

	var err error
	if bundle.Factors, err = r.repo.GetFactors(ctx, sessionID, segment); err != nil {
		return nil, err
	}
	if bundle.Patterns, err = r.repo.GetPatternMatches(ctx, sessionID, segment); err != nil {
		return nil, err
	}
	if bundle.Scenarios, err = r.repo.GetScenarios(ctx, sessionID, segment); err != nil {
		return nil, err
	}
	if segment == domain.SegmentConsumer {
		if bundle.Personas, err = r.repo.GetPersonas(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if bundle.RichContent, err = r.repo.GetRichContent(ctx, sessionID, segment, ""); err != nil {
		return nil, err
	}
	return bundle, nil
}
