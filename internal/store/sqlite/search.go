package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/cristinecula/knowledge-mcp/internal/store"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// prefixedEntryColumns renders entryColumns with an explicit table alias,
// so SELECTs that join entries against entries_fts don't get an ambiguous
// column error.
func prefixedEntryColumns(alias string) string {
	cols := strings.Split(entryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// Search implements the Store-level substrate of spec §4.1/§4.3: it applies
// every non-ranking filter (type, tags, project, scope hierarchy, status,
// above_threshold), and either sorts by the requested SortMode (query
// empty) or ranks by the SQLite FTS5 bm25 lexical score (query present).
// Fusing that lexical order with an optional semantic pass via Reciprocal
// Rank Fusion is the Searcher's job (internal/search), which calls this
// method to get the lexical-ordered candidate pool.
func (d *DB) Search(ctx context.Context, f store.SearchFilter) ([]*types.Entry, error) {
	where, args, err := buildFilterClause(f)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	cols := prefixedEntryColumns("e")
	var query string
	if strings.TrimSpace(f.Query) != "" {
		ftsQuery := toFTSQuery(f.Query)
		query = fmt.Sprintf(`
			SELECT %s
			FROM entries e
			JOIN entries_fts fts ON fts.rowid = e.rowid
			WHERE entries_fts MATCH ? AND %s
			ORDER BY bm25(entries_fts)
			LIMIT ? OFFSET ?`, cols, where)
		args = append([]any{ftsQuery}, args...)
	} else {
		orderBy := "e.last_accessed_at DESC"
		if f.Sort == store.SortCreated {
			orderBy = "e.created_at DESC"
		}
		query = fmt.Sprintf(`
			SELECT %s
			FROM entries e
			WHERE %s
			ORDER BY %s
			LIMIT ? OFFSET ?`, cols, where, orderBy)
	}
	args = append(args, limit, offset)

	rows, err := d.execerFor(ctx).QueryContext(ctx, query, args...)
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
		out = append(out, e)
	}
	return out, rows.Err()
}

// buildFilterClause renders the shared WHERE clause (minus the FTS MATCH
// term) for a SearchFilter: scope hierarchy expansion, conjunctive tags,
// status default (active ∪ above-threshold) unless overridden.
func buildFilterClause(f store.SearchFilter) (string, []any, error) {
	var clauses []string
	var args []any

	if f.Type != nil {
		if !f.Type.IsValid() {
			return "", nil, &store.ValidationError{Field: "type", Reason: "unknown entry type"}
		}
		clauses = append(clauses, "e.type = ?")
		args = append(args, string(*f.Type))
	}

	if f.Project != nil {
		clauses = append(clauses, "e.project = ?")
		args = append(args, *f.Project)
	}

	if f.Scope != nil {
		if !f.Scope.IsValid() {
			return "", nil, &store.ValidationError{Field: "scope", Reason: "unknown scope"}
		}
		scopes := scopeHierarchy(*f.Scope)
		placeholders := make([]string, len(scopes))
		for i, s := range scopes {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, fmt.Sprintf("e.scope IN (%s)", strings.Join(placeholders, ",")))
	}

	for _, tag := range f.Tags {
		// Conjunctive: every requested tag must be present in the JSON tags
		// array. The tags column is a compact JSON array (no whitespace)
		// produced by encoding/json, so a simple substring test over the
		// quoted value is exact and avoids a json_each join per tag.
		clauses = append(clauses, "e.tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}

	switch {
	case f.Status != nil && *f.Status == store.AllStatuses:
		// no status filter at all
	case f.Status != nil:
		clauses = append(clauses, "e.status = ?")
		args = append(args, string(*f.Status))
	default:
		clauses = append(clauses, "(e.status = ? OR e.inaccuracy >= ?)")
		args = append(args, string(types.StatusActive), types.Threshold)
	}

	if f.AboveThreshold {
		clauses = append(clauses, "e.inaccuracy >= ?")
		args = append(args, types.Threshold)
	}

	if len(clauses) == 0 {
		return "1=1", args, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

// scopeHierarchy implements spec §4.3: querying repo returns
// {repo,project,company}; project returns {project,company}; company
// returns {company}.
func scopeHierarchy(s types.Scope) []types.Scope {
	switch s {
	case types.ScopeRepo:
		return []types.Scope{types.ScopeRepo, types.ScopeProject, types.ScopeCompany}
	case types.ScopeProject:
		return []types.Scope{types.ScopeProject, types.ScopeCompany}
	default:
		return []types.Scope{types.ScopeCompany}
	}
}

// toFTSQuery turns a free-text query into an FTS5 MATCH expression with
// prefix terms and OR semantics (spec §4.3: "prefix terms and OR
// semantics").
func toFTSQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`%s*`, f))
	}
	if len(terms) == 0 {
		return `""`
	}
	return strings.Join(terms, " OR ")
}
