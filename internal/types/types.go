// Package types defines the shared data model for knowledge entries and
// links: the typed graph that the store, propagator, searcher, serializer,
// mirror, and sync engine all operate on.
package types

import "time"

// EntryType is the kind of knowledge a caller is recording.
type EntryType string

const (
	TypeConvention EntryType = "convention"
	TypeDecision   EntryType = "decision"
	TypePattern    EntryType = "pattern"
	TypePitfall    EntryType = "pitfall"
	TypeFact       EntryType = "fact"
	TypeDebugNote  EntryType = "debug_note"
	TypeProcess    EntryType = "process"
	TypeWiki       EntryType = "wiki"
)

// AllEntryTypes lists every valid EntryType, in the canonical directory order
// used for entries/<type>/ on disk.
var AllEntryTypes = []EntryType{
	TypeConvention, TypeDecision, TypePattern, TypePitfall,
	TypeFact, TypeDebugNote, TypeProcess, TypeWiki,
}

// IsValid reports whether t is one of the closed set of entry types.
func (t EntryType) IsValid() bool {
	for _, v := range AllEntryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Scope is the placement tier of an entry in the company/project/repo
// hierarchy.
type Scope string

const (
	ScopeCompany Scope = "company"
	ScopeProject Scope = "project"
	ScopeRepo    Scope = "repo"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeCompany, ScopeProject, ScopeRepo:
		return true
	}
	return false
}

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDeprecated:
		return true
	}
	return false
}

// LinkType is the kind of directed relationship a Link encodes.
type LinkType string

const (
	LinkRelated      LinkType = "related"
	LinkDerived      LinkType = "derived"
	LinkDepends      LinkType = "depends"
	LinkContradicts  LinkType = "contradicts"
	LinkSupersedes   LinkType = "supersedes"
	LinkElaborates   LinkType = "elaborates"
	LinkConflictsWith LinkType = "conflicts_with"
)

// AllLinkTypes lists every valid LinkType.
var AllLinkTypes = []LinkType{
	LinkRelated, LinkDerived, LinkDepends, LinkContradicts,
	LinkSupersedes, LinkElaborates, LinkConflictsWith,
}

func (t LinkType) IsValid() bool {
	for _, v := range AllLinkTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Propagation tuning constants (spec §4.2).
const (
	// Cap is the maximum value inaccuracy may saturate to.
	Cap = 2.0
	// Threshold is the inaccuracy value at or above which an entry is
	// considered to need revalidation.
	Threshold = 1.0
	// Floor is the minimum bump magnitude worth propagating further;
	// branches whose bump falls below this are not explored.
	Floor = 0.001
	// HopDecay is the per-hop multiplicative decay applied during BFS
	// propagation.
	HopDecay = 0.5
)

// LinkWeights gives the propagation weight used for each link type when
// computing the bump applied to a neighbor during inaccuracy propagation.
var LinkWeights = map[LinkType]float64{
	LinkDerived:       1.0,
	LinkContradicts:   0.7,
	LinkDepends:       0.6,
	LinkElaborates:    0.4,
	LinkSupersedes:    0.3,
	LinkRelated:       0.1,
	LinkConflictsWith: 0,
}

// ConflictCopyTitlePrefix marks an entry as a local-only sync conflict copy
// (spec I6); such entries must never be mirrored to disk.
const ConflictCopyTitlePrefix = "[Sync Conflict] "

// ConflictCopySource is the Entry.Source value used for conflict copies and
// their conflicts_with link.
const ConflictCopySource = "sync:conflict"

// Entry is the atomic unit of knowledge stored by the system.
type Entry struct {
	ID    string
	Type  EntryType
	Title string
	// Content is the markdown body; may be empty for wiki stubs.
	Content string
	Tags    []string

	// Declaration is the wiki intent prompt; nullable.
	Declaration *string
	// DeprecationReason is set when Status == StatusDeprecated.
	DeprecationReason *string
	// FlagReason explains why inaccuracy was bumped above Threshold, e.g.
	// "superseded by <title>".
	FlagReason *string

	Scope        Scope
	Project      *string
	ParentPageID *string

	Source    string
	CreatedAt time.Time

	Status     Status
	Inaccuracy float64
	Version    int

	SyncedVersion *int
	SyncedAt      *time.Time

	AccessCount    int
	LastAccessedAt *time.Time
	UpdatedAt      time.Time
	// ContentUpdatedAt is bumped only when a content-relevant field changes
	// (title, content, tags, type, scope, project, declaration,
	// parent_page_id, status, deprecation_reason, flag_reason,
	// inaccuracy) -- never by record_access.
	ContentUpdatedAt time.Time
}

// IsConflictCopy reports whether e is a local-only conflict copy created by
// the sync engine's conflict resolution (spec I6).
func (e *Entry) IsConflictCopy() bool {
	return e.Source == ConflictCopySource && len(e.Title) >= len(ConflictCopyTitlePrefix) &&
		e.Title[:len(ConflictCopyTitlePrefix)] == ConflictCopyTitlePrefix
}

// Link is a directed, typed edge between two entries.
type Link struct {
	ID          string
	SourceID    string
	TargetID    string
	LinkType    LinkType
	Description *string
	Source      string
	CreatedAt   time.Time
}

// IsLocalOnly reports whether links of this type/source are never mirrored
// as edges in frontmatter (spec §4.1: conflicts_with and sync-originated
// links are local-only).
func (l *Link) IsLocalOnly() bool {
	return l.LinkType == LinkConflictsWith || l.Source == ConflictCopySource
}

// ContentRelevantFields enumerates the Entry fields that Store.Update
// accepts; every one of them is content-relevant (bumps Version on change).
var ContentRelevantFields = map[string]bool{
	"title":              true,
	"content":            true,
	"tags":               true,
	"type":               true,
	"scope":              true,
	"project":            true,
	"declaration":        true,
	"parent_page_id":     true,
	"status":             true,
	"deprecation_reason": true,
	"flag_reason":        true,
	"inaccuracy":         true,
}
