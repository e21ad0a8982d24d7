package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/idgen"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

const linkColumns = `id, source_id, target_id, link_type, description, source, created_at`

func scanLink(row interface{ Scan(dest ...any) error }) (*types.Link, error) {
	var l types.Link
	var description sql.NullString
	if err := row.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.LinkType, &description, &l.Source, &l.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if description.Valid {
		l.Description = &description.String
	}
	return &l, nil
}

// InsertLink enforces UNIQUE(source_id, target_id, link_type) (I2) and the
// self-link restriction (only conflicts_with may self-link); callers that
// import a link from a peer's frontmatter must have already computed a
// deterministic id via idgen.DeterministicLinkID so independent imports of
// the "same" edge converge (spec §4.4).
func (d *DB) InsertLink(ctx context.Context, l *types.Link) (*types.Link, error) {
	if err := validateLink(l); err != nil {
		return nil, err
	}
	out := *l
	if out.ID == "" {
		out.ID = idgen.NewLinkID()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	run := func(ex execer) error {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO links (id, source_id, target_id, link_type, description, source, created_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(source_id, target_id, link_type) DO NOTHING`,
			out.ID, out.SourceID, out.TargetID, out.LinkType, nullableStr(out.Description), out.Source, out.CreatedAt)
		return err
	}
	if d.inTx(ctx) {
		if err := run(d.txFromCtx(ctx)); err != nil {
			return nil, err
		}
	} else if err := d.withWriteLock(func() error { return run(d.db) }); err != nil {
		return nil, err
	}

	// Re-read by the natural key so a racing duplicate insert (DO NOTHING)
	// returns the surviving row's id rather than the caller's discarded one.
	return d.getLinkByNaturalKey(ctx, out.SourceID, out.TargetID, out.LinkType)
}

func (d *DB) getLinkByNaturalKey(ctx context.Context, sourceID, targetID string, linkType types.LinkType) (*types.Link, error) {
	row := d.execerFor(ctx).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links
		WHERE source_id = ? AND target_id = ? AND link_type = ?`, sourceID, targetID, linkType)
	return scanLink(row)
}

func validateLink(l *types.Link) error {
	if !idgen.IsUUID(l.SourceID) {
		return &store.ValidationError{Field: "source_id", Reason: "must be a UUID"}
	}
	if !idgen.IsUUID(l.TargetID) {
		return &store.ValidationError{Field: "target_id", Reason: "must be a UUID"}
	}
	if !l.LinkType.IsValid() {
		return &store.ValidationError{Field: "link_type", Reason: "unknown link type"}
	}
	if l.SourceID == l.TargetID && l.LinkType != types.LinkConflictsWith {
		return &store.ValidationError{Field: "target_id", Reason: "self-links are only allowed for conflicts_with"}
	}
	return nil
}

func (d *DB) GetLink(ctx context.Context, id string) (*types.Link, error) {
	row := d.execerFor(ctx).QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	return scanLink(row)
}

func (d *DB) DeleteLink(ctx context.Context, id string) error {
	run := func(ex execer) error {
		res, err := ex.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	}
	if d.inTx(ctx) {
		return run(d.txFromCtx(ctx))
	}
	return d.withWriteLock(func() error { return run(d.db) })
}

func (d *DB) LinksFrom(ctx context.Context, sourceID string) ([]*types.Link, error) {
	return d.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE source_id = ?`, sourceID)
}

func (d *DB) LinksTo(ctx context.Context, targetID string) ([]*types.Link, error) {
	return d.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE target_id = ?`, targetID)
}

func (d *DB) AllLinks(ctx context.Context) ([]*types.Link, error) {
	return d.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY id`)
}

func (d *DB) queryLinks(ctx context.Context, query string, args ...any) ([]*types.Link, error) {
	rows, err := d.execerFor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
