package transport

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/logger"
)

// messageLogName is the single canonical ordered log of all messages in a
// deployment, per §4.1's fallback path.
const messageLogName = "messages.log"

// artifactSubdirs are created under SharedDir at startup, per §6.
var artifactSubdirs = []string{"specifications", "builds", "reports"}

// FileLogTransport is the durable fallback path: a single append-only file
// is the canonical ordered log, and each agent tracks its own read cursor
// into it. Grounded on original_source/agents/core/agent_runtime.py's
// _read_file_queue / _write_file_queue.
type FileLogTransport struct {
	sharedDir string
	logPath   string
	log       *logger.Logger

	mu      sync.Mutex
	cursors map[string]int64
}

// NewFileLogTransport creates the fallback transport rooted at sharedDir,
// ensuring the log file and artifact subdirectories exist.
func NewFileLogTransport(sharedDir string, log *logger.Logger) (*FileLogTransport, error) {
	if err := os.MkdirAll(sharedDir, 0o755); err != nil {
		return nil, err
	}
	for _, sub := range artifactSubdirs {
		if err := os.MkdirAll(filepath.Join(sharedDir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	logPath := filepath.Join(sharedDir, messageLogName)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	return &FileLogTransport{
		sharedDir: sharedDir,
		logPath:   logPath,
		log:       log,
		cursors:   make(map[string]int64),
	}, nil
}

// Send appends one JSON-encoded message per line. Writes are a single
// os.File.Write call under O_APPEND, which on POSIX is atomic for
// line-sized payloads, so concurrent appenders never interleave partial
// lines (§5).
func (t *FileLogTransport) Send(ctx context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(t.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Receive advances agentID's cursor through the log, returning the first
// undelivered message addressed to it (directly or via broadcast). It
// polls until timeout elapses, returning (nil, nil) if nothing arrives.
func (t *FileLogTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		msg, err := t.scanOnce(agentID)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (t *FileLogTransport) scanOnce(agentID string) (*Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, err := t.cursorFor(agentID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(t.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var idx int64
	var found *Message
	for scanner.Scan() {
		idx++
		if idx <= pos {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, perr := Unmarshal([]byte(line))
		if perr != nil {
			t.log.Warn("skipping malformed fallback log line", zap.Int64("line", idx), zap.Error(perr))
			continue
		}
		if msg.RecipientID == agentID || msg.RecipientID == Broadcast {
			found = msg
			pos = idx
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if found == nil {
		// No match anywhere in the remainder of the log: advance past
		// everything scanned so the next receive starts fresh, mirroring
		// the Python reference's end-of-scan behavior.
		pos = idx
	}

	t.cursors[agentID] = pos
	if err := saveCursor(t.sharedDir, agentID, pos); err != nil {
		return nil, err
	}
	return found, nil
}

func (t *FileLogTransport) cursorFor(agentID string) (int64, error) {
	if pos, ok := t.cursors[agentID]; ok {
		return pos, nil
	}
	pos, err := loadCursor(t.sharedDir, agentID)
	if err != nil {
		return 0, err
	}
	t.cursors[agentID] = pos
	return pos, nil
}

// Close is a no-op: the file log holds no long-lived handle between calls.
func (t *FileLogTransport) Close() error {
	return nil
}
