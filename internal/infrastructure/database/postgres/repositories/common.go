// Package repositories implements the persistence contracts of the
// domain layer over PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/stratlens/stratlens/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// marshalJSONB serializes v for a jsonb column.  nil maps and slices
// become the SQL NULL so the column stays queryable with IS NULL.
func marshalJSONB(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal jsonb value")
	}
	return b, nil
}

// unmarshalJSONB decodes a jsonb column into out, tolerating NULL.
func unmarshalJSONB(raw []byte, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal jsonb value")
	}
	return nil
}
