package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/idgen"
	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

const entryColumns = "id, type, title, content, tags, declaration, deprecation_reason, " +
	"flag_reason, scope, project, parent_page_id, source, created_at, status, " +
	"inaccuracy, version, synced_version, synced_at, access_count, " +
	"last_accessed_at, updated_at, content_updated_at"

func scanEntry(row interface{ Scan(dest ...any) error }) (*types.Entry, error) {
	var e types.Entry
	var tagsJSON string
	var declaration, deprecationReason, flagReason, project, parentPageID sql.NullString
	var syncedVersion sql.NullInt64
	var syncedAt, lastAccessedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.Type, &e.Title, &e.Content, &tagsJSON, &declaration, &deprecationReason,
		&flagReason, &e.Scope, &project, &parentPageID, &e.Source, &e.CreatedAt, &e.Status,
		&e.Inaccuracy, &e.Version, &syncedVersion, &syncedAt, &e.AccessCount,
		&lastAccessedAt, &e.UpdatedAt, &e.ContentUpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", e.ID, err)
	}
	if declaration.Valid {
		e.Declaration = &declaration.String
	}
	if deprecationReason.Valid {
		e.DeprecationReason = &deprecationReason.String
	}
	if flagReason.Valid {
		e.FlagReason = &flagReason.String
	}
	if project.Valid {
		e.Project = &project.String
	}
	if parentPageID.Valid {
		e.ParentPageID = &parentPageID.String
	}
	if syncedVersion.Valid {
		v := int(syncedVersion.Int64)
		e.SyncedVersion = &v
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		e.SyncedAt = &t
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		e.LastAccessedAt = &t
	}
	return &e, nil
}

func (d *DB) Insert(ctx context.Context, p store.InsertParams) (*types.Entry, error) {
	if err := validateInsert(p); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := &types.Entry{
		ID:           idgen.NewEntryID(),
		Type:         p.Type,
		Title:        p.Title,
		Content:      p.Content,
		Tags:         normalizeTags(p.Tags),
		Declaration:  p.Declaration,
		Scope:        p.Scope,
		Project:      p.Project,
		ParentPageID: p.ParentPageID,
		Source:       p.Source,
		CreatedAt:    now,
		Status:       types.StatusActive,
		Inaccuracy:   0,
		Version:      1,
		UpdatedAt:    now,
		ContentUpdatedAt: now,
	}
	var err error
	if d.inTx(ctx) {
		err = d.insertEntry(ctx, d.txFromCtx(ctx), e)
	} else {
		err = d.withWriteLock(func() error { return d.insertEntry(ctx, d.db, e) })
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (d *DB) insertEntry(ctx context.Context, ex execer, e *types.Entry) error {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO entries (id, type, title, content, tags, declaration, scope, project,
			parent_page_id, source, created_at, status, inaccuracy, version, updated_at,
			content_updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Type, e.Title, e.Content, string(tagsJSON), nullableStr(e.Declaration), e.Scope,
		nullableStr(e.Project), nullableStr(e.ParentPageID), e.Source, e.CreatedAt, e.Status,
		e.Inaccuracy, e.Version, e.UpdatedAt, e.ContentUpdatedAt,
	)
	return err
}

func (d *DB) Get(ctx context.Context, id string) (*types.Entry, error) {
	row := d.execerFor(ctx).QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	return scanEntry(row)
}

// Resolve implements short-ID prefix lookup (spec §4.1): prefixes shorter
// than 4 hex characters are rejected, 0 matches is NotFound, exactly 1 is
// Resolved, and 2+ is Ambiguous.
func (d *DB) Resolve(ctx context.Context, prefix string) (*store.ResolveResult, error) {
	if len(prefix) < 4 {
		return nil, &store.ValidationError{Field: "id", Reason: "prefix must be at least 4 hex characters"}
	}
	rows, err := d.execerFor(ctx).QueryContext(ctx, `SELECT id FROM entries WHERE id LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
		e, err := d.Get(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		return &store.ResolveResult{Entry: e, Matches: 1}, nil
	default:
		return nil, &store.AmbiguousError{Prefix: prefix, Matches: len(ids)}
	}
}

// Update applies only the supplied fields; it increments Version when any
// content-relevant field (spec's ContentRelevantFields) actually changes
// value, and always refreshes UpdatedAt.
func (d *DB) Update(ctx context.Context, id string, fields map[string]any) (*types.Entry, error) {
	var result *types.Entry
	run := func(ex execer) error {
		e, err := scanEntry(ex.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
		if err != nil {
			return err
		}
		changed, err := applyFieldUpdates(e, fields)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		e.UpdatedAt = now
		if changed {
			e.Version++
			e.ContentUpdatedAt = now
		}
		if err := d.persistEntry(ctx, ex, e); err != nil {
			return err
		}
		result = e
		return nil
	}
	if d.inTx(ctx) {
		if err := run(d.txFromCtx(ctx)); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := d.withWriteLock(func() error { return run(d.db) }); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) persistEntry(ctx context.Context, ex execer, e *types.Entry) error {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		UPDATE entries SET type=?, title=?, content=?, tags=?, declaration=?, deprecation_reason=?,
			flag_reason=?, scope=?, project=?, parent_page_id=?, status=?, inaccuracy=?,
			version=?, synced_version=?, synced_at=?, access_count=?, last_accessed_at=?,
			updated_at=?, content_updated_at=?
		WHERE id=?`,
		e.Type, e.Title, e.Content, string(tagsJSON), nullableStr(e.Declaration),
		nullableStr(e.DeprecationReason), nullableStr(e.FlagReason), e.Scope,
		nullableStr(e.Project), nullableStr(e.ParentPageID), e.Status, e.Inaccuracy,
		e.Version, nullableInt(e.SyncedVersion), nullableTime(e.SyncedAt), e.AccessCount,
		nullableTime(e.LastAccessedAt), e.UpdatedAt, e.ContentUpdatedAt, e.ID,
	)
	return err
}

// applyFieldUpdates mutates e in place from fields and reports whether any
// content-relevant field actually changed value.
func applyFieldUpdates(e *types.Entry, fields map[string]any) (bool, error) {
	changed := false
	mark := func(key string, did bool) {
		if did && types.ContentRelevantFields[key] {
			changed = true
		}
	}

	if v, ok := fields["title"]; ok {
		s, err := asString(v, "title")
		if err != nil {
			return false, err
		}
		if s == "" {
			return false, &store.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		mark("title", s != e.Title)
		e.Title = s
	}
	if v, ok := fields["content"]; ok {
		s, err := asString(v, "content")
		if err != nil {
			return false, err
		}
		mark("content", s != e.Content)
		e.Content = s
	}
	if v, ok := fields["tags"]; ok {
		tags, err := asStringSlice(v)
		if err != nil {
			return false, err
		}
		tags = normalizeTags(tags)
		mark("tags", !stringSlicesEqual(tags, e.Tags))
		e.Tags = tags
	}
	if v, ok := fields["type"]; ok {
		t := types.EntryType(fmt.Sprint(v))
		if !t.IsValid() {
			return false, &store.ValidationError{Field: "type", Reason: "unknown entry type"}
		}
		mark("type", t != e.Type)
		e.Type = t
	}
	if v, ok := fields["scope"]; ok {
		s := types.Scope(fmt.Sprint(v))
		if !s.IsValid() {
			return false, &store.ValidationError{Field: "scope", Reason: "unknown scope"}
		}
		mark("scope", s != e.Scope)
		e.Scope = s
	}
	if v, ok := fields["project"]; ok {
		p, err := asNullableString(v)
		if err != nil {
			return false, err
		}
		mark("project", !strPtrEqual(p, e.Project))
		e.Project = p
	}
	if v, ok := fields["declaration"]; ok {
		p, err := asNullableString(v)
		if err != nil {
			return false, err
		}
		mark("declaration", !strPtrEqual(p, e.Declaration))
		e.Declaration = p
	}
	if v, ok := fields["parent_page_id"]; ok {
		p, err := asNullableString(v)
		if err != nil {
			return false, err
		}
		mark("parent_page_id", !strPtrEqual(p, e.ParentPageID))
		e.ParentPageID = p
	}
	if v, ok := fields["status"]; ok {
		s := types.Status(fmt.Sprint(v))
		if !s.IsValid() {
			return false, &store.ValidationError{Field: "status", Reason: "unknown status"}
		}
		mark("status", s != e.Status)
		e.Status = s
	}
	if v, ok := fields["deprecation_reason"]; ok {
		p, err := asNullableString(v)
		if err != nil {
			return false, err
		}
		mark("deprecation_reason", !strPtrEqual(p, e.DeprecationReason))
		e.DeprecationReason = p
	}
	if v, ok := fields["flag_reason"]; ok {
		p, err := asNullableString(v)
		if err != nil {
			return false, err
		}
		mark("flag_reason", !strPtrEqual(p, e.FlagReason))
		e.FlagReason = p
	}
	if v, ok := fields["inaccuracy"]; ok {
		f, err := asFloat(v)
		if err != nil {
			return false, err
		}
		clamped := clampInaccuracy(f)
		mark("inaccuracy", clamped != e.Inaccuracy)
		e.Inaccuracy = clamped
	}
	return changed, nil
}

func clampInaccuracy(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > types.Cap {
		return types.Cap
	}
	return v
}

func (d *DB) RecordAccess(ctx context.Context, id string, boost int) error {
	if boost <= 0 {
		boost = 1
	}
	now := time.Now().UTC()
	run := func(ex execer) error {
		res, err := ex.ExecContext(ctx, `
			UPDATE entries SET access_count = access_count + ?, last_accessed_at = ?
			WHERE id = ?`, boost, now, id)
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

func (d *DB) Deprecate(ctx context.Context, id string, reason string) (*types.Entry, error) {
	fields := map[string]any{
		"status":             string(types.StatusDeprecated),
		"deprecation_reason": reason,
	}
	return d.Update(ctx, id, fields)
}

func (d *DB) ResetInaccuracy(ctx context.Context, id string) (*types.Entry, error) {
	var result *types.Entry
	run := func(ex execer) error {
		e, err := scanEntry(ex.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
		if err != nil {
			return err
		}
		changed := e.Inaccuracy != 0 || e.FlagReason != nil
		e.Inaccuracy = 0
		e.FlagReason = nil
		now := time.Now().UTC()
		e.UpdatedAt = now
		if changed {
			e.Version++
			e.ContentUpdatedAt = now
		}
		if err := d.persistEntry(ctx, ex, e); err != nil {
			return err
		}
		result = e
		return nil
	}
	if d.inTx(ctx) {
		if err := run(d.txFromCtx(ctx)); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := d.withWriteLock(func() error { return run(d.db) }); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) SetInaccuracy(ctx context.Context, id string, v float64) (*types.Entry, error) {
	return d.Update(ctx, id, map[string]any{"inaccuracy": v})
}

func (d *DB) Delete(ctx context.Context, id string) error {
	run := func(ex execer) error {
		res, err := ex.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
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

// ImportEntry upserts e by its own id, writing version and timestamps as
// given. When the row already exists, every field is overwritten except
// created_at, access_count and last_accessed_at, which keep their stored
// values. Used by the sync engine when materializing an
// entry read from a peer's frontmatter (remote_wins) or creating a
// conflict copy; ordinary callers go through Insert/Update instead.
func (d *DB) ImportEntry(ctx context.Context, e *types.Entry) error {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	run := func(ex execer) error {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO entries (id, type, title, content, tags, declaration, deprecation_reason,
				flag_reason, scope, project, parent_page_id, source, created_at, status,
				inaccuracy, version, synced_version, synced_at, access_count,
				last_accessed_at, updated_at, content_updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				type=excluded.type, title=excluded.title, content=excluded.content,
				tags=excluded.tags, declaration=excluded.declaration,
				deprecation_reason=excluded.deprecation_reason, flag_reason=excluded.flag_reason,
				scope=excluded.scope, project=excluded.project, parent_page_id=excluded.parent_page_id,
				source=excluded.source, status=excluded.status, inaccuracy=excluded.inaccuracy,
				version=excluded.version, synced_version=excluded.synced_version,
				synced_at=excluded.synced_at, updated_at=excluded.updated_at,
				content_updated_at=excluded.content_updated_at`,
			e.ID, e.Type, e.Title, e.Content, string(tagsJSON), nullableStr(e.Declaration),
			nullableStr(e.DeprecationReason), nullableStr(e.FlagReason), e.Scope,
			nullableStr(e.Project), nullableStr(e.ParentPageID), e.Source, e.CreatedAt, e.Status,
			e.Inaccuracy, e.Version, nullableInt(e.SyncedVersion), nullableTime(e.SyncedAt),
			e.AccessCount, nullableTime(e.LastAccessedAt), e.UpdatedAt, e.ContentUpdatedAt,
		)
		return err
	}
	if d.inTx(ctx) {
		return run(d.txFromCtx(ctx))
	}
	return d.withWriteLock(func() error { return run(d.db) })
}

// MarkSynced sets synced_version (and synced_at to now) for id, without
// touching any other field or bumping version (spec §4.7: reconciliation
// bookkeeping, not a content change).
func (d *DB) MarkSynced(ctx context.Context, id string, version int) error {
	now := time.Now().UTC()
	run := func(ex execer) error {
		res, err := ex.ExecContext(ctx, `
			UPDATE entries SET synced_version = ?, synced_at = ? WHERE id = ?`, version, now, id)
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

func (d *DB) AllActiveEntries(ctx context.Context) ([]*types.Entry, error) {
	rows, err := d.execerFor(ctx).QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if e.IsConflictCopy() {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func validateInsert(p store.InsertParams) error {
	if p.Title == "" {
		return &store.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !p.Type.IsValid() {
		return &store.ValidationError{Field: "type", Reason: "unknown entry type"}
	}
	if !p.Scope.IsValid() {
		return &store.ValidationError{Field: "scope", Reason: "unknown scope"}
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
