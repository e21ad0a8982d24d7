// Package routing resolves which git-backed repo an entry's (scope,
// project) places it in (spec §6): an operator-facing JSON routing table,
// walked in order, first match wins.
//
// Grounded on untoldecay-BeadsLog's internal/config (viper-backed
// operator config) for the "operator-facing config with validated
// defaults" texture, generalized here to the spec's specific JSON routing
// shape rather than viper's YAML key/value store, since routing is a list
// of ordered rules rather than flat settings.
package routing

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Rule is one routing-table entry (spec §6).
type Rule struct {
	Name    string  `json:"name" toml:"name"`
	Path    string  `json:"path" toml:"path"`
	Remote  string  `json:"remote,omitempty" toml:"remote,omitempty"`
	Scope   *string `json:"scope,omitempty" toml:"scope,omitempty"`
	Project *string `json:"project,omitempty" toml:"project,omitempty"`
}

// Table is the operator-facing routing configuration.
type Table struct {
	Repos []Rule `json:"repos" toml:"repos"`
}

// Load reads and validates a routing table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path, not user input
	if err != nil {
		return nil, fmt.Errorf("routing: reading %s: %w", path, err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("routing: parsing %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the table is well-formed and has a usable catch-all: at
// most one entry with neither scope nor project filter, and if present, it
// must be last (spec §6: "An entry with neither filter is the catch-all
// and should be last").
func (t *Table) Validate() error {
	if len(t.Repos) == 0 {
		return fmt.Errorf("routing: table has no repos")
	}
	for i, r := range t.Repos {
		if r.Name == "" {
			return fmt.Errorf("routing: repos[%d] missing name", i)
		}
		if r.Path == "" {
			return fmt.Errorf("routing: repos[%d] %q missing path", i, r.Name)
		}
		isCatchAll := r.Scope == nil && r.Project == nil
		if isCatchAll && i != len(t.Repos)-1 {
			return fmt.Errorf("routing: catch-all repo %q must be the last entry", r.Name)
		}
	}
	return nil
}

// Resolve walks Repos in order and returns the first entry whose Scope and
// Project filters both match (a nil filter matches anything), per spec §6's
// resolution rule. Returns ErrNoMatch if nothing matches (only possible
// when the table has no unfiltered catch-all and scope/project fall
// outside every filter).
func (t *Table) Resolve(scope types.Scope, project *string) (*Rule, error) {
	for i := range t.Repos {
		r := &t.Repos[i]
		if r.Scope != nil && *r.Scope != string(scope) {
			continue
		}
		if r.Project != nil {
			if project == nil || *r.Project != *project {
				continue
			}
		}
		return r, nil
	}
	return nil, ErrNoMatch
}

// ErrNoMatch is returned by Resolve when no rule, including no catch-all,
// matches the given placement.
var ErrNoMatch = fmt.Errorf("routing: no repo matches this scope/project and no catch-all is configured")
