package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cristinecula/knowledge-mcp/internal/serialize"
	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// scanned is one on-disk entry plus the repo-relative path it was read
// from, needed later to detect stale files during push.
type scanned struct {
	parsed *serialize.Parsed
	path   string
}

// scanRepo reads every entries/*/*.md file under repoPath, skips redirect
// markers, parses strictly, and deduplicates by id keeping the higher
// version (spec §4.7 pull step 3).
func scanRepo(repoPath string) (map[string]*scanned, error) {
	entriesDir := filepath.Join(repoPath, "entries")
	if _, err := os.Stat(entriesDir); os.IsNotExist(err) {
		return map[string]*scanned{}, nil
	}

	out := make(map[string]*scanned)
	for _, t := range types.AllEntryTypes {
		typeDir := filepath.Join(entriesDir, string(t))
		files, err := os.ReadDir(typeDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sync: reading %s: %w", typeDir, err)
		}

		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".md" {
				continue
			}
			path := filepath.Join(typeDir, f.Name())
			data, err := os.ReadFile(path) // #nosec G304 -- path built from a fixed, validated routing-table repo root
			if err != nil {
				return nil, fmt.Errorf("sync: reading %s: %w", path, err)
			}
			if _, ok := serialize.ParseRedirect(data); ok {
				continue
			}
			parsed, err := serialize.Parse(data)
			if err != nil {
				// Per spec §9, malformed repo-originated input is rejected
				// rather than crashing the whole pull; skip this file.
				continue
			}

			relPath, err := filepath.Rel(repoPath, path)
			if err != nil {
				relPath = path
			}
			existing, dup := out[parsed.Entry.ID]
			if !dup || parsed.Entry.Version > existing.parsed.Entry.Version {
				out[parsed.Entry.ID] = &scanned{parsed: parsed, path: relPath}
			}
		}
	}
	return out, nil
}
