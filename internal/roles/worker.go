// Package roles implements the three canonical pipeline workers
// (architect, builder, validator) as thin Runtime.Agent implementations.
// Per the Non-goals in §1, a worker never generates real content: it
// writes a deterministic, opaque artifact under SharedDir and reports
// completion, exercising the full pipeline without content generation.
package roles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/appctx"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/transport"
)

// completionGrace bounds how long a worker finishes writing an artifact
// and reporting completion after the runtime starts shutting down.
const completionGrace = 30 * time.Second

// Kind identifies which of the three canonical roles a Worker plays.
type Kind string

const (
	KindArchitect Kind = "ARCHITECT"
	KindBuilder   Kind = "BUILDER"
	KindValidator Kind = "VALIDATOR"
)

// artifactSubdir returns the SharedDir subdirectory this Kind's output
// belongs under (§6 "artifact subdirectories").
func (k Kind) artifactSubdir() string {
	switch k {
	case KindArchitect:
		return "specifications"
	case KindBuilder:
		return "builds"
	case KindValidator:
		return "reports"
	default:
		return "."
	}
}

// informType is the INFORM payload.type a Worker emits on completion
// (§4.4 "Pipeline advancement").
func (k Kind) informType() string {
	switch k {
	case KindArchitect:
		return "specification_ready"
	case KindBuilder:
		return "build_complete"
	case KindValidator:
		return "validation_complete"
	default:
		return ""
	}
}

// Worker is a minimal agent: on "execute_task" it writes one opaque
// artifact and reports completion to the Orchestrator. Real deployments
// would replace the artifact body with actual work product; the Non-goal
// on content generation keeps that out of scope here.
type Worker struct {
	kind      Kind
	agentID   string
	sharedDir string
	tr        transport.Transport
	log       *logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWorker constructs a Worker. Callers must register HandleRequest as
// the REQUEST handler on the Runtime driving this Worker.
func NewWorker(kind Kind, agentID, sharedDir string, tr transport.Transport, log *logger.Logger) *Worker {
	return &Worker{
		kind:      kind,
		agentID:   agentID,
		sharedDir: sharedDir,
		tr:        tr,
		log:       log.WithFields(zap.String("role", string(kind))),
		stopCh:    make(chan struct{}),
	}
}

// Initialize announces this worker to the Orchestrator so it becomes
// eligible for assignment (§4.4 "Agent registration").
func (w *Worker) Initialize(ctx context.Context) error {
	msg := transport.New(w.agentID, "orchestrator", transport.IntentInform, "", map[string]any{
		"type":         "agent_online",
		"role":         string(w.kind),
		"capabilities": []string{string(w.kind)},
	})
	return w.tr.Send(ctx, msg)
}

// Cleanup announces this worker as offline on shutdown and releases any
// in-flight HandleRequest calls from their completion grace period.
func (w *Worker) Cleanup(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	msg := transport.New(w.agentID, "orchestrator", transport.IntentInform, "", map[string]any{
		"type": "agent_offline",
	})
	return w.tr.Send(ctx, msg)
}

// OnIdle sends a heartbeat so the Orchestrator doesn't mark this worker
// OFFLINE during a quiet period (§4.4 "Agent registration").
func (w *Worker) OnIdle(ctx context.Context) error {
	msg := transport.New(w.agentID, "orchestrator", transport.IntentReportStatus, "", map[string]any{
		"status": "idle",
	})
	return w.tr.Send(ctx, msg)
}

// HandleRequest is the REQUEST intent handler: on "execute_task" it
// writes an artifact and reports completion; any other payload type is
// ignored.
func (w *Worker) HandleRequest(ctx context.Context, msg *transport.Message) error {
	if msg.PayloadType() != "execute_task" {
		return nil
	}

	// Finish writing the artifact and reporting completion even if the
	// inbound request's context is cancelled mid-flight; only a runtime
	// Stop (closing stopCh) or the grace period cuts this short.
	workCtx, cancel := appctx.Detached(ctx, w.stopCh, completionGrace)
	defer cancel()

	artifactURI, err := w.writeArtifact(msg.TaskID)
	if err != nil {
		return fmt.Errorf("write artifact for %s: %w", msg.TaskID, err)
	}

	inform := transport.New(w.agentID, "orchestrator", transport.IntentInform, msg.TaskID, map[string]any{
		"type":         w.kind.informType(),
		"artifact_uri": artifactURI,
		"passed":       true, // VALIDATOR only; ignored by other pipeline stages
		"report_uri":   artifactURI,
	})
	return w.tr.Send(workCtx, inform)
}

// writeArtifact deposits a deterministic, opaque artifact under
// SharedDir/<subdir>/<task_id>.txt and returns its uri (§3 "Artifact
// references").
func (w *Worker) writeArtifact(taskID string) (string, error) {
	dir := filepath.Join(w.sharedDir, w.kind.artifactSubdir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, taskID+".txt")
	body := fmt.Sprintf("role=%s task_id=%s produced_at=%s\n", w.kind, taskID, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
