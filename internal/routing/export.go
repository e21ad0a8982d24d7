package routing

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// ExportTOML writes an operator-readable snapshot of the routing table.
// The table's authoritative on-disk shape stays JSON (spec §6); this is a
// secondary, human-friendlier rendering for `kbd routing show --format
// toml` and for audit logs, the same role the teacher's formula.go convert
// command gives BurntSushi/toml when turning a .formula.json file into
// .formula.toml for human review.
func (t *Table) ExportTOML(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(t); err != nil {
		return fmt.Errorf("routing: encoding table as toml: %w", err)
	}
	return nil
}
