// Package results defines the entities, value types, and persistence
// contract of the results generation pipeline: factor scores, pattern
// matches, Monte Carlo scenarios, consumer personas, segment rich content,
// and the per-session generation status.
package results

import (
	"github.com/stratlens/stratlens/pkg/errors"
)

// Segment is one of the five business analysis lenses.
type Segment string

const (
	SegmentMarket     Segment = "market"
	SegmentConsumer   Segment = "consumer"
	SegmentProduct    Segment = "product"
	SegmentBrand      Segment = "brand"
	SegmentExperience Segment = "experience"
)

// AllSegments returns the canonical generation order.  The orchestrator
// processes segments in exactly this order so persisted progress stays
// monotonic and debuggable.
func AllSegments() []Segment {
	return []Segment{
		SegmentMarket,
		SegmentConsumer,
		SegmentProduct,
		SegmentBrand,
		SegmentExperience,
	}
}

// SegmentCount is the fixed number of segments per session.
const SegmentCount = 5

// ParseSegment validates a raw string against the segment enum.
func ParseSegment(raw string) (Segment, error) {
	s := Segment(raw)
	switch s {
	case SegmentMarket, SegmentConsumer, SegmentProduct, SegmentBrand, SegmentExperience:
		return s, nil
	}
	return "", errors.Newf(errors.ErrCodeBadRequest, "unknown segment %q", raw)
}

// Valid reports whether s is a known segment.
func (s Segment) Valid() bool {
	_, err := ParseSegment(string(s))
	return err == nil
}

func (s Segment) String() string { return string(s) }
