package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// cursor is the per-agent persisted read position into the fallback log,
// matching the §6 cursor file format: {"position": N} where N is the next
// line to read.
type cursor struct {
	Position int64 `json:"position"`
}

func cursorPath(sharedDir, agentID string) string {
	return filepath.Join(sharedDir, fmt.Sprintf(".cursor-%s.json", agentID))
}

func loadCursor(sharedDir, agentID string) (int64, error) {
	path := cursorPath(sharedDir, agentID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		// A corrupt cursor file is treated as "start from zero" rather
		// than a fatal error; the agent may reprocess messages, which
		// at-least-once delivery already permits.
		return 0, nil
	}
	return c.Position, nil
}

// saveCursor persists position atomically via write-tmp-then-rename so a
// crash mid-write never leaves a torn cursor file.
func saveCursor(sharedDir, agentID string, position int64) error {
	path := cursorPath(sharedDir, agentID)
	data, err := json.Marshal(cursor{Position: position})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
