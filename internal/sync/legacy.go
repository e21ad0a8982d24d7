package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cristinecula/knowledge-mcp/internal/serialize"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// legacyEntry is the shape of an older entries/<type>/<uuid>.json file,
// from before schema v2 moved entries to Markdown+frontmatter (spec §6
// "Legacy").
type legacyEntry struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Tags              []string `json:"tags"`
	Project           *string  `json:"project"`
	Scope             string   `json:"scope"`
	Source            string   `json:"source"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
	Version           int      `json:"version"`
	Declaration       *string  `json:"declaration"`
	ParentPageID      *string  `json:"parent_page_id"`
	DeprecationReason *string  `json:"deprecation_reason"`
	FlagReason        *string  `json:"flag_reason"`
	Inaccuracy        float64  `json:"inaccuracy"`
}

// legacyLink is the shape of a loose links/<uuid>.json file, folded into its
// source entry's frontmatter links array by the migration.
type legacyLink struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	LinkType    string  `json:"link_type"`
	Description *string `json:"description"`
}

// migrateLegacyLayout converts a repo still carrying
// entries/<type>/<uuid>.json and links/<uuid>.json files into the current
// Markdown+frontmatter layout (spec §6): each legacy entry JSON becomes a
// Markdown file at its deterministic path, loose link files are folded into
// their source entry's frontmatter links array, and the originals are
// deleted. It is a no-op (and cheap: one ReadDir per entry type) on a repo
// with no legacy entries directory contents.
func migrateLegacyLayout(repoPath string) error {
	entriesDir := filepath.Join(repoPath, "entries")
	linksDir := filepath.Join(repoPath, "links")

	legacyEntries, legacyPaths, err := readLegacyEntries(entriesDir)
	if err != nil {
		return err
	}
	if len(legacyEntries) == 0 {
		return nil
	}

	linksByEntry, linkPaths, err := readLegacyLinks(linksDir)
	if err != nil {
		return err
	}

	for id, le := range legacyEntries {
		e, err := legacyToEntry(le)
		if err != nil {
			return fmt.Errorf("sync: migrating legacy entry %s: %w", id, err)
		}
		refs := make([]serialize.LinkRef, 0, len(linksByEntry[id]))
		for _, ll := range linksByEntry[id] {
			ref := serialize.LinkRef{Target: ll.TargetID, Type: ll.LinkType}
			if ll.Description != nil {
				ref.Description = *ll.Description
			}
			refs = append(refs, ref)
		}

		data, err := serialize.Serialize(e, linkRefsToLinks(e.ID, refs))
		if err != nil {
			return fmt.Errorf("sync: serializing migrated entry %s: %w", id, err)
		}
		dest := filepath.Join(repoPath, serialize.Filename(e))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("sync: creating %s: %w", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("sync: writing %s: %w", dest, err)
		}
	}

	for _, p := range legacyPaths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("sync: removing legacy entry file %s: %w", p, err)
		}
	}
	for _, p := range linkPaths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("sync: removing legacy link file %s: %w", p, err)
		}
	}
	return nil
}

func readLegacyEntries(entriesDir string) (map[string]*legacyEntry, []string, error) {
	out := make(map[string]*legacyEntry)
	var paths []string
	for _, t := range types.AllEntryTypes {
		typeDir := filepath.Join(entriesDir, string(t))
		files, err := os.ReadDir(typeDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("sync: reading %s: %w", typeDir, err)
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(typeDir, f.Name())
			data, err := os.ReadFile(path) // #nosec G304 -- path built from a fixed, validated routing-table repo root
			if err != nil {
				return nil, nil, fmt.Errorf("sync: reading %s: %w", path, err)
			}
			var le legacyEntry
			if err := json.Unmarshal(data, &le); err != nil {
				return nil, nil, fmt.Errorf("sync: parsing legacy entry %s: %w", path, err)
			}
			out[le.ID] = &le
			paths = append(paths, path)
		}
	}
	return out, paths, nil
}

func readLegacyLinks(linksDir string) (map[string][]*legacyLink, []string, error) {
	out := make(map[string][]*legacyLink)
	files, err := os.ReadDir(linksDir)
	if os.IsNotExist(err) {
		return out, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sync: reading %s: %w", linksDir, err)
	}
	var paths []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		path := filepath.Join(linksDir, f.Name())
		data, err := os.ReadFile(path) // #nosec G304 -- path built from a fixed, validated routing-table repo root
		if err != nil {
			return nil, nil, fmt.Errorf("sync: reading %s: %w", path, err)
		}
		var ll legacyLink
		if err := json.Unmarshal(data, &ll); err != nil {
			return nil, nil, fmt.Errorf("sync: parsing legacy link %s: %w", path, err)
		}
		out[ll.SourceID] = append(out[ll.SourceID], &ll)
		paths = append(paths, path)
	}
	return out, paths, nil
}

func legacyToEntry(le *legacyEntry) (*types.Entry, error) {
	entryType := types.EntryType(le.Type)
	if !entryType.IsValid() {
		return nil, fmt.Errorf("unknown entry type %q", le.Type)
	}
	scope := types.Scope(le.Scope)
	if !scope.IsValid() {
		return nil, fmt.Errorf("unknown scope %q", le.Scope)
	}
	status := types.Status(le.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", le.Status)
	}
	if strings.TrimSpace(le.Title) == "" {
		return nil, fmt.Errorf("empty title")
	}
	createdAt, err := time.Parse(time.RFC3339, le.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	version := le.Version
	if version < 1 {
		version = 1
	}
	return &types.Entry{
		ID:                le.ID,
		Type:              entryType,
		Title:             le.Title,
		Content:           le.Content,
		Tags:              le.Tags,
		Declaration:       le.Declaration,
		DeprecationReason: le.DeprecationReason,
		FlagReason:        le.FlagReason,
		Scope:             scope,
		Project:           le.Project,
		ParentPageID:      le.ParentPageID,
		Source:            le.Source,
		CreatedAt:         createdAt,
		Status:            status,
		Inaccuracy:        le.Inaccuracy,
		Version:           version,
	}, nil
}

// linkRefsToLinks adapts serialize.LinkRef values (frontmatter shape) into
// the minimal *types.Link set serialize.Serialize needs to re-render the
// same links array it was just given; only the fields Serialize reads
// (TargetID, LinkType, Description, IsLocalOnly's inputs) are populated.
func linkRefsToLinks(sourceID string, refs []serialize.LinkRef) []*types.Link {
	out := make([]*types.Link, 0, len(refs))
	for _, r := range refs {
		l := &types.Link{
			SourceID: sourceID,
			TargetID: r.Target,
			LinkType: types.LinkType(r.Type),
		}
		if r.Description != "" {
			desc := r.Description
			l.Description = &desc
		}
		out = append(out, l)
	}
	return out
}
