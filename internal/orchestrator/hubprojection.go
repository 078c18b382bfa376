package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/bridge"
	"github.com/coordcore/core/internal/task"
)

// SetHubProjection turns on best-effort projection of Registry tasks into
// the Coordination Hub reference service, for external observers that only
// speak the Hub's HTTP API (§4.5: the Orchestrator MAY project tasks into
// the Hub). Projection never blocks or fails the pipeline: every error is
// logged and swallowed.
func (o *Orchestrator) SetHubProjection(b *bridge.Bridge) {
	o.hub = b
}

// projectCreate mirrors a freshly created task into the Hub and remembers
// the Hub's own id for it via the shared context store, keyed off the
// Registry's task id.
func (o *Orchestrator) projectCreate(ctx context.Context, t *task.Task) {
	if o.hub == nil {
		return
	}
	// The Hub rejects an empty description, so one is always supplied.
	hubID, err := o.hub.CreateHubTask(ctx, string(t.Type)+" "+t.TaskID, "Task Registry task "+t.TaskID, "", priorityLabel(t.Priority), string(t.Type))
	if err != nil {
		o.log.Warn("hub projection: create failed", zap.String("task_id", t.TaskID), zap.Error(err))
		return
	}
	o.ctx.Set(t.TaskID, "hub_task_id", hubID)
}

// projectStatus pushes a status transition for a previously projected task.
func (o *Orchestrator) projectStatus(ctx context.Context, taskID, status string) {
	id := o.hubTaskID(taskID)
	if id == "" {
		return
	}
	if err := o.hub.UpdateHubTask(ctx, id, status, nil); err != nil {
		o.log.Warn("hub projection: update failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

// projectComplete marks a previously projected task complete. Callers must
// invoke this before clearing the shared context entry for taskID.
func (o *Orchestrator) projectComplete(ctx context.Context, taskID, result string) {
	id := o.hubTaskID(taskID)
	if id == "" {
		return
	}
	if err := o.hub.CompleteHubTask(ctx, id, result); err != nil {
		o.log.Warn("hub projection: complete failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

func (o *Orchestrator) hubTaskID(taskID string) string {
	if o.hub == nil {
		return ""
	}
	v, ok := o.ctx.Get(taskID, "hub_task_id")
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

func priorityLabel(p task.Priority) string {
	switch p {
	case task.PriorityCritical:
		return "critical"
	case task.PriorityHigh:
		return "high"
	case task.PriorityLow:
		return "low"
	default:
		return "medium"
	}
}
