// Package sync implements the sync engine (spec §4.7): pull (fetch, merge,
// import), push (export, commit, push), version-based conflict detection,
// and conflict-copy creation, coordinated by the cross-process lock.
package sync

import (
	"math"
	"strings"

	"github.com/cristinecula/knowledge-mcp/internal/types"
)

// Action is the outcome of the per-entry conflict detector (spec §4.7).
type Action string

const (
	ActionNoChange    Action = "no_change"
	ActionRemoteWins  Action = "remote_wins"
	ActionLocalWins   Action = "local_wins"
	ActionConflict    Action = "conflict"
)

// contentEqualEpsilon is the tolerance for comparing Inaccuracy, to account
// for the 3-decimal rounding applied on serialization (spec §4.7).
const contentEqualEpsilon = 1e-3

// Detect classifies the action to take for a local/remote pair of the same
// entry, per the Lc/Rc truth table in spec §4.7.
func Detect(local, remote *types.Entry) Action {
	sv := 0
	if local.SyncedVersion != nil {
		sv = *local.SyncedVersion
	}
	lc := local.Version > sv
	rc := remote.Version > sv

	equal := ContentEqual(local, remote)

	switch {
	case !lc && !rc:
		return ActionNoChange
	case !lc && rc:
		if equal {
			return ActionNoChange
		}
		return ActionRemoteWins
	case lc && !rc:
		if equal {
			return ActionNoChange
		}
		return ActionLocalWins
	default: // lc && rc
		if equal {
			return ActionNoChange
		}
		return ActionConflict
	}
}

// ContentEqual compares the shared fields of two entries (spec §4.7:
// "Content equality compares the shared fields only"). Numeric fields
// compare with tolerance; content trailing whitespace is ignored.
func ContentEqual(a, b *types.Entry) bool {
	if a.Title != b.Title {
		return false
	}
	if strings.TrimRight(a.Content, " \t\n\r") != strings.TrimRight(b.Content, " \t\n\r") {
		return false
	}
	if !stringSlicesEqual(sortedCopy(a.Tags), sortedCopy(b.Tags)) {
		return false
	}
	if a.Type != b.Type || a.Scope != b.Scope || a.Status != b.Status {
		return false
	}
	if !strPtrEqual(a.Project, b.Project) {
		return false
	}
	if !strPtrEqual(a.Declaration, b.Declaration) {
		return false
	}
	if !strPtrEqual(a.ParentPageID, b.ParentPageID) {
		return false
	}
	if !strPtrEqual(a.DeprecationReason, b.DeprecationReason) {
		return false
	}
	if !strPtrEqual(a.FlagReason, b.FlagReason) {
		return false
	}
	if math.Abs(a.Inaccuracy-b.Inaccuracy) >= contentEqualEpsilon {
		return false
	}
	return true
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
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
