package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cristinecula/knowledge-mcp/internal/commitsched"
	"github.com/tidwall/gjson"
)

// schemaVersion is the on-disk repo layout version this build writes and
// expects (spec §6: "<repo>/meta.json {schema_version: 2}").
const schemaVersion = 2

// ensureMeta reads repoPath/meta.json if present and checks its
// schema_version, or creates it at the current version if absent, in which
// case it schedules a commit so the new file doesn't sit untracked forever.
// schema_version is read with gjson rather than a strict struct decode:
// meta.json is forward-extensible (future keys a newer peer wrote must not
// make an older peer choke on this one field), so only the single key this
// build cares about is plucked out.
func ensureMeta(repoPath string, sched *commitsched.Scheduler) error {
	path := filepath.Join(repoPath, "meta.json")
	data, err := os.ReadFile(path) // #nosec G304 -- path built from a fixed, validated routing-table repo root
	if os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(fmt.Sprintf(`{"schema_version":%d}`+"\n", schemaVersion)), 0o644); err != nil {
			return err
		}
		sched.ScheduleCommit(repoPath, "add meta.json")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync: reading %s: %w", path, err)
	}

	v := gjson.GetBytes(data, "schema_version")
	if !v.Exists() {
		return fmt.Errorf("sync: %s missing schema_version", path)
	}
	if v.Int() > schemaVersion {
		return fmt.Errorf("sync: %s is schema_version %d, newer than this build supports (%d)", path, v.Int(), schemaVersion)
	}
	return nil
}
