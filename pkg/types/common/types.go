// Package common defines cross-layer value types shared by domain entities,
// DTOs, and event payloads.
package common

import (
	"time"

	"github.com/google/uuid"
)

// ID is a string alias for UUID v4.
type ID string

// SessionID identifies one analysis session.  All pipeline entities are
// scoped by it.
type SessionID string

// Metadata is an open-ended key-value bag.
type Metadata map[string]interface{}

// NewID generates a new random ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// GenerateID generates a new ID with an optional prefix, e.g.
// GenerateID("scn") -> "scn-6f1c...".
func GenerateID(prefix string) string {
	id := uuid.New().String()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Timestamp is a time.Time alias kept for symmetry with event payloads.
type Timestamp time.Time

// NewTimestamp returns the current UTC time as a Timestamp.
func NewTimestamp() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time converts the Timestamp back to time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Pagination defines parameters for paginated list requests.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}
