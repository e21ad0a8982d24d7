// Package serialize implements the bidirectional mapping between an Entry
// (plus its outgoing links) and its on-disk Markdown+YAML representation
// (spec §4.4): deterministic filenames, a strict frontmatter parser, and
// redirect markers for renamed entries.
//
// Grounded on untoldecay-BeadsLog's cmd/bd/markdown.go (line-oriented
// Markdown parsing with a small hand-rolled state machine) for the
// "strict, reject anything unexpected" parsing posture, generalized from
// ad-hoc H2/H3 sections to a YAML frontmatter block parsed with
// gopkg.in/yaml.v3, which the teacher already depends on for its own
// structured-config loading.
package serialize

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cristinecula/knowledge-mcp/internal/idgen"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

const frontmatterDelim = "---"

// LinkRef is an outgoing link as declared in an entry's frontmatter.
type LinkRef struct {
	Target      string `yaml:"target"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

// frontmatter is the YAML shape written between the two "---" delimiters.
// Field order here is the field order written to disk.
type frontmatter struct {
	ID                string    `yaml:"id"`
	Type              string    `yaml:"type"`
	Title             string    `yaml:"title"`
	Tags              []string  `yaml:"tags,omitempty"`
	Project           *string   `yaml:"project,omitempty"`
	Scope             string    `yaml:"scope"`
	Source            string    `yaml:"source"`
	Status            string    `yaml:"status"`
	CreatedAt         string    `yaml:"created_at"`
	Version           int       `yaml:"version"`
	Declaration       *string   `yaml:"declaration,omitempty"`
	ParentPageID      *string   `yaml:"parent_page_id,omitempty"`
	DeprecationReason *string   `yaml:"deprecation_reason,omitempty"`
	FlagReason        *string   `yaml:"flag_reason,omitempty"`
	Inaccuracy        *float64  `yaml:"inaccuracy,omitempty"`
	Links             []LinkRef `yaml:"links,omitempty"`
}

// Filename returns the deterministic on-disk path for e, relative to a
// repo's entries/ directory's parent (spec I5 / §4.4):
// entries/{type}/{slug(title)}_{id8(id)}.md.
func Filename(e *types.Entry) string {
	return fmt.Sprintf("entries/%s/%s_%s.md", e.Type, idgen.Slug(e.Title), idgen.ID8(e.ID))
}

// Serialize renders e and its mirrorable outgoing links (links whose
// IsLocalOnly() is false) to the Markdown+frontmatter byte form written to
// disk. Conflict-copy entries must never reach this function; callers
// check Entry.IsConflictCopy() first (spec I6).
func Serialize(e *types.Entry, outgoing []*types.Link) ([]byte, error) {
	if e.IsConflictCopy() {
		return nil, fmt.Errorf("serialize: refusing to mirror conflict-copy entry %s", e.ID)
	}

	fm := frontmatter{
		ID:        e.ID,
		Type:      string(e.Type),
		Title:     e.Title,
		Tags:      e.Tags,
		Project:   e.Project,
		Scope:     string(e.Scope),
		Source:    e.Source,
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.UTC().Format(timeLayout),
		Version:   e.Version,

		Declaration:       e.Declaration,
		ParentPageID:      e.ParentPageID,
		DeprecationReason: e.DeprecationReason,
		FlagReason:        e.FlagReason,
	}

	if e.Inaccuracy != 0 {
		rounded := roundTo3(e.Inaccuracy)
		fm.Inaccuracy = &rounded
	}

	links := make([]LinkRef, 0, len(outgoing))
	for _, l := range outgoing {
		if l.IsLocalOnly() {
			continue
		}
		ref := LinkRef{Target: l.TargetID, Type: string(l.LinkType)}
		if l.Description != nil {
			ref.Description = *l.Description
		}
		links = append(links, ref)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Target != links[j].Target {
			return links[i].Target < links[j].Target
		}
		return links[i].Type < links[j].Type
	})
	if len(links) > 0 {
		fm.Links = links
	}

	yamlBytes, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("serialize: marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim)
	buf.WriteByte('\n')
	buf.Write(yamlBytes)
	buf.WriteString(frontmatterDelim)
	buf.WriteByte('\n')
	buf.WriteString(e.Content)
	return buf.Bytes(), nil
}

// RedirectMarker renders the redirect-file body (spec §4.4/§6, exact
// wording): a file with no frontmatter left behind at a renamed entry's
// old path so git sees a modify rather than a delete (I5).
func RedirectMarker(newFilename string) []byte {
	return []byte(fmt.Sprintf("Moved to: %s\n", newFilename))
}

// ParseRedirect recognizes a redirect marker and returns its target
// filename. Readers MUST call this before Parse and skip the file if ok.
func ParseRedirect(data []byte) (target string, ok bool) {
	s := string(data)
	if strings.HasPrefix(s, frontmatterDelim) {
		return "", false
	}
	trimmed := strings.TrimRight(s, "\n")
	const prefix = "Moved to: "
	if !strings.HasPrefix(trimmed, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
}

// Parsed is one on-disk entry plus the outgoing links its frontmatter
// declared, before those links are resolved to deterministic IDs.
type Parsed struct {
	Entry *types.Entry
	Links []LinkRef
}

// Parse strictly decodes a Markdown+frontmatter file. Unknown enum values,
// malformed UUIDs, and structurally invalid frontmatter are rejected
// rather than defaulted, per spec §4.4 ("the parser rejects anything that
// would break I1-I5").
func Parse(data []byte) (*Parsed, error) {
	s := string(data)
	if !strings.HasPrefix(s, frontmatterDelim) {
		return nil, fmt.Errorf("parse: missing frontmatter delimiter")
	}
	rest := s[len(frontmatterDelim):]
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n"+frontmatterDelim)
	if idx < 0 {
		return nil, fmt.Errorf("parse: unterminated frontmatter block")
	}
	yamlBlock := rest[:idx]
	body := rest[idx+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, fmt.Errorf("parse: invalid yaml frontmatter: %w", err)
	}

	if !idgen.IsUUID(fm.ID) {
		return nil, fmt.Errorf("parse: id %q is not a uuid", fm.ID)
	}
	entryType := types.EntryType(fm.Type)
	if !entryType.IsValid() {
		return nil, fmt.Errorf("parse: unknown entry type %q", fm.Type)
	}
	scope := types.Scope(fm.Scope)
	if !scope.IsValid() {
		return nil, fmt.Errorf("parse: unknown scope %q", fm.Scope)
	}
	status := types.Status(fm.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("parse: unknown status %q", fm.Status)
	}
	if strings.TrimSpace(fm.Title) == "" {
		return nil, fmt.Errorf("parse: empty title")
	}
	createdAt, err := parseTime(fm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse: created_at: %w", err)
	}
	if fm.Version < 1 {
		return nil, fmt.Errorf("parse: version must be >= 1, got %d", fm.Version)
	}

	for _, l := range fm.Links {
		if !idgen.IsUUID(l.Target) {
			return nil, fmt.Errorf("parse: link target %q is not a uuid", l.Target)
		}
		if !types.LinkType(l.Type).IsValid() {
			return nil, fmt.Errorf("parse: unknown link type %q", l.Type)
		}
	}

	e := &types.Entry{
		ID:                fm.ID,
		Type:              entryType,
		Title:             fm.Title,
		Content:           strings.TrimRight(body, "\n"),
		Tags:              fm.Tags,
		Declaration:       fm.Declaration,
		DeprecationReason: fm.DeprecationReason,
		FlagReason:        fm.FlagReason,
		Scope:             scope,
		Project:           fm.Project,
		ParentPageID:      fm.ParentPageID,
		Source:            fm.Source,
		CreatedAt:         createdAt,
		Status:            status,
		Version:           fm.Version,
	}
	if fm.Inaccuracy != nil {
		e.Inaccuracy = *fm.Inaccuracy
	}

	return &Parsed{Entry: e, Links: fm.Links}, nil
}

// ResolveLinkID computes the deterministic link id a peer importing ref
// from sourceID's frontmatter must use, so two peers creating the "same"
// edge converge on one row (spec §4.4, I2).
func ResolveLinkID(sourceID string, ref LinkRef) string {
	return idgen.DeterministicLinkID(sourceID, ref.Target, ref.Type)
}

const timeLayout = time.RFC3339

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func roundTo3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
