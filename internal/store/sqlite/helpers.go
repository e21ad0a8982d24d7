package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/store"
)

func nullableStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func asString(v any, field string) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	default:
		return "", &store.ValidationError{Field: field, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
}

func asNullableString(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &store.ValidationError{Reason: fmt.Sprintf("expected string or null, got %T", v)}
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func asStringSlice(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, &store.ValidationError{Field: "tags", Reason: "every tag must be a string"}
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, &store.ValidationError{Field: "tags", Reason: fmt.Sprintf("expected []string, got %T", v)}
	}
}

func asFloat(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case int:
		return float64(f), nil
	default:
		return 0, &store.ValidationError{Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}

// execerFor returns the transaction's execer if ctx carries one, else the
// top-level *sql.DB, so read paths work identically inside and outside a
// RunInTransaction callback (read-your-writes, spec §4.1 Transaction doc).
func (d *DB) execerFor(ctx context.Context) execer {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return d.db
}

func (d *DB) inTx(ctx context.Context) bool {
	_, ok := txFromContext(ctx)
	return ok
}

func (d *DB) txFromCtx(ctx context.Context) execer {
	tx, _ := txFromContext(ctx)
	return tx
}

// withWriteLock serializes the process-local writer path. Only DB methods
// take this lock; the commit scheduler's touched-repos set is guarded by
// its own mutex.
func (d *DB) withWriteLock(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

var _ = sql.ErrNoRows
