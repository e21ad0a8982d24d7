// Package idgen centralizes identifier generation and normalization: entry
// UUIDs, the deterministic link id used to converge independently created
// edges across peers, the id8 filename disambiguator, and title slugs.
//
// Grounded on untoldecay-BeadsLog's internal/storage/sqlite/hash_ids.go
// (hash-based id derivation) and internal/storage/sqlite/ids.go (id
// formatting helpers), generalized from hash-based issue IDs to uuid-based
// entry/link IDs per the spec's data model.
package idgen

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LinkNamespace is the UUID namespace used to derive deterministic link IDs,
// so that two peers creating the "same" edge independently converge on the
// same Link.ID (spec §3, §4.4).
var LinkNamespace = uuid.MustParse("5a1e3b7c-2f0d-4b7e-9f7a-7c2e8c9d3a11")

// NewEntryID returns a fresh random (v4) entry identifier.
func NewEntryID() string {
	return uuid.New().String()
}

// DeterministicLinkID computes uuidv5(LinkNamespace, sourceID ∥ targetID ∥
// linkType), the canonical id callers MUST use when importing links from a
// peer's frontmatter so two peers creating the same edge agree on one row.
func DeterministicLinkID(sourceID, targetID string, linkType string) string {
	name := sourceID + "\x00" + targetID + "\x00" + linkType
	return uuid.NewSHA1(LinkNamespace, []byte(name)).String()
}

// NewLinkID returns a fresh random (v4) link identifier, for links that
// originate locally rather than being imported from a peer.
func NewLinkID() string {
	return uuid.New().String()
}

// ID8 returns the first 8 hex characters of id, used as the filename
// disambiguator in entries/{type}/{slug}_{id8}.md.
func ID8(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) < 8 {
		return compact
	}
	return compact[:8]
}

// IsUUID reports whether s parses as a UUID (any version), the strict
// validity check the serializer and sync importer apply to every id field.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

const maxSlugLen = 80

var slugTransform = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Slug produces the deterministic, lowercase, hyphen-joined, non-ASCII
// stripped form of title used in entry filenames, capped at 80 characters
// and guaranteed non-empty ("entry" is substituted for a title that slugs
// to nothing, e.g. one made entirely of emoji or punctuation).
func Slug(title string) string {
	folded, _, err := transform.String(slugTransform, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// Non-ASCII letters/punctuation that survived NFD+Mn-strip
			// (e.g. CJK) are dropped; they contribute nothing to an
			// ASCII-only slug.
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "entry"
	}
	return slug
}
