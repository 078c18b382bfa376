// Package orchestrator implements the Orchestrator (§4.4): submission
// routing, pipeline advancement, agent registration, and priority-then-FIFO
// dispatch once capacity appears.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/agent/registry"
	"github.com/coordcore/core/internal/bridge"
	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/orchestrator/queue"
	"github.com/coordcore/core/internal/orchestrator/sharedcontext"
	"github.com/coordcore/core/internal/task"
	"github.com/coordcore/core/internal/transport"
)

// canonicalRole maps a task Type to the agent role that performs it.
func canonicalRole(t task.Type) string {
	switch t {
	case task.TypeSpecification:
		return "ARCHITECT"
	case task.TypeBuild:
		return "BUILDER"
	case task.TypeValidate:
		return "VALIDATOR"
	default:
		return ""
	}
}

// Orchestrator is "coordcore"'s own agent identity on the Transport: it
// receives REQUEST/INFORM messages addressed to it, same as any other
// participant (§9 Design Note: explicit routing, no dynamic dispatch).
const SelfID = "orchestrator"

// Orchestrator wires the Task Registry, Agent Registry, and PENDING queue
// together and drives them from inbound Transport messages.
type Orchestrator struct {
	tasks   *task.Registry
	agents  *registry.Registry
	queues  map[string]*queue.TaskQueue // one PENDING queue per role
	ctx     *sharedcontext.Store
	tr      transport.Transport
	log     *logger.Logger
	maxSize int
	hub     *bridge.Bridge // nil unless SetHubProjection was called
}

// New creates an Orchestrator. maxQueueSize <= 0 means each role's queue is
// unbounded.
func New(tasks *task.Registry, agents *registry.Registry, tr transport.Transport, log *logger.Logger, maxQueueSize int) *Orchestrator {
	return &Orchestrator{
		tasks:   tasks,
		agents:  agents,
		queues:  make(map[string]*queue.TaskQueue),
		ctx:     sharedcontext.New(),
		tr:      tr,
		log:     log,
		maxSize: maxQueueSize,
	}
}

func (o *Orchestrator) queueFor(role string) *queue.TaskQueue {
	q, ok := o.queues[role]
	if !ok {
		q = queue.NewTaskQueue(o.maxSize)
		o.queues[role] = q
	}
	return q
}

// HandleMessage dispatches a single inbound message by Intent and payload
// type; it is the Orchestrator's sole entry point from the Transport.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.Intent {
	case transport.IntentRequest:
		return o.handleRequest(ctx, msg)
	case transport.IntentInform:
		return nil, o.handleInform(ctx, msg)
	case transport.IntentReportStatus:
		return nil, o.handleReportStatus(ctx, msg)
	default:
		o.log.Warn("orchestrator ignoring unrecognized intent", zap.String("intent", string(msg.Intent)))
		return nil, nil
	}
}

func (o *Orchestrator) handleRequest(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.PayloadType() {
	case "submit_task":
		return o.submitTask(ctx, msg)
	case "ping":
		return transport.New(SelfID, msg.SenderID, transport.IntentInform, "ping", map[string]any{"type": "pong"}), nil
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unrecognized request payload type %q", msg.PayloadType()))
	}
}

// submitTask implements §4.4 "Submission routing".
func (o *Orchestrator) submitTask(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	typ := task.Type(stringField(msg.Payload, "task_type", string(task.TypeSpecification)))
	priority := task.ParsePriority(stringField(msg.Payload, "priority", "medium"))
	dependencies := stringSliceField(msg.Payload, "dependencies")

	t, err := o.tasks.Create(ctx, typ, msg.Payload, "", dependencies, priority)
	if err != nil {
		return nil, err
	}
	o.projectCreate(ctx, t)

	if err := o.dispatch(ctx, t); err != nil {
		return nil, err
	}

	return transport.New(SelfID, msg.SenderID, transport.IntentInform, t.TaskID, map[string]any{
		"type":    "task_submitted",
		"task_id": t.TaskID,
	}), nil
}

// dispatch assigns t to an AVAILABLE agent of the canonical role for its
// type if one exists; otherwise it queues t for later dispatch (§4.4
// "Priority and back-pressure").
func (o *Orchestrator) dispatch(ctx context.Context, t *task.Task) error {
	role := canonicalRole(t.Type)
	agent := o.agents.SelectForRole(role)
	if agent == nil {
		return o.queueFor(role).Enqueue(t)
	}
	return o.assignAndNotify(ctx, t, agent.AgentID)
}

func (o *Orchestrator) assignAndNotify(ctx context.Context, t *task.Task, agentID string) error {
	assigned, err := o.tasks.Assign(ctx, t.TaskID, agentID)
	if err != nil {
		return err
	}
	o.agents.SetStatus(agentID, registry.StatusBusy)
	o.projectStatus(ctx, assigned.TaskID, "assigned")
	req := transport.New(SelfID, agentID, transport.IntentRequest, assigned.TaskID, map[string]any{
		"type":         "execute_task",
		"task_type":    string(assigned.Type),
		"task_id":      assigned.TaskID,
		"payload":      assigned.Payload,
		"dependencies": assigned.Dependencies,
		"artifacts":    assigned.Artifacts,
	})
	if err := o.tr.Send(ctx, req); err != nil {
		return err
	}
	// The worker begins executing as soon as it receives execute_task;
	// there is no separate "started" signal in this protocol, so the
	// Registry transitions straight to EXECUTING here (required before
	// Complete will accept the eventual INFORM).
	_, err = o.tasks.MarkExecuting(ctx, assigned.TaskID)
	return err
}

// DispatchReady scans each role's PENDING queue and assigns work to any
// AVAILABLE agents, in priority-then-FIFO order. Call this whenever agent
// availability may have changed (registration, heartbeat, task completion).
func (o *Orchestrator) DispatchReady(ctx context.Context) {
	for role, q := range o.queues {
		for q.Len() > 0 {
			agent := o.agents.SelectForRole(role)
			if agent == nil {
				break
			}
			qt := q.Dequeue()
			if qt == nil {
				break
			}
			if err := o.assignAndNotify(ctx, qt.Task, agent.AgentID); err != nil {
				o.log.Error("failed to dispatch queued task",
					zap.String("task_id", qt.TaskID), zap.Error(err))
			}
		}
	}
}

// handleInform implements §4.4 "Pipeline advancement" and "Agent
// registration".
func (o *Orchestrator) handleInform(ctx context.Context, msg *transport.Message) error {
	switch msg.PayloadType() {
	case "agent_online":
		role := stringField(msg.Payload, "role", "")
		caps := stringSliceField(msg.Payload, "capabilities")
		o.agents.Register(msg.SenderID, role, caps)
		o.DispatchReady(ctx)
		return nil
	case "agent_offline":
		o.agents.SetStatus(msg.SenderID, registry.StatusOffline)
		return nil
	case "specification_ready":
		return o.advance(ctx, msg, task.TypeBuild, "specification")
	case "build_complete":
		return o.advance(ctx, msg, task.TypeValidate, "build")
	case "validation_complete":
		return o.recordValidation(ctx, msg)
	default:
		o.log.Warn("orchestrator ignoring unrecognized INFORM type", zap.String("payload_type", msg.PayloadType()))
		return nil
	}
}

// advance completes the upstream task, creates the next-stage task with a
// parent_task reference and an artifact pointing at the upstream output,
// and routes it.
func (o *Orchestrator) advance(ctx context.Context, msg *transport.Message, next task.Type, artifactLabel string) error {
	if _, err := o.tasks.Complete(ctx, msg.TaskID, nil); err != nil {
		return err
	}
	o.projectComplete(ctx, msg.TaskID, artifactLabel+" stage complete")
	o.freeAssignee(msg.SenderID)

	artifactURI := stringField(msg.Payload, "artifact_uri", "")
	nt, err := o.tasks.Create(ctx, next, map[string]any{
		"upstream_task_id": msg.TaskID,
	}, msg.TaskID, nil, task.PriorityMedium)
	if err != nil {
		return err
	}
	if artifactURI != "" {
		nt.Artifacts = append(nt.Artifacts, task.Artifact{Label: artifactLabel, URI: artifactURI})
	}
	o.ctx.Set(nt.TaskID, "upstream_task_id", msg.TaskID)
	o.projectCreate(ctx, nt)

	return o.dispatch(ctx, nt)
}

// recordValidation completes the VALIDATE task; there is no further task
// to create (§4.4).
func (o *Orchestrator) recordValidation(ctx context.Context, msg *transport.Message) error {
	passed, _ := msg.Payload["passed"].(bool)
	detail := "validation failed"
	if passed {
		detail = "validation passed"
	}
	if _, err := o.tasks.Complete(ctx, msg.TaskID, []task.Artifact{{Label: "validation_report", URI: stringField(msg.Payload, "report_uri", "")}}); err != nil {
		return err
	}
	o.projectComplete(ctx, msg.TaskID, detail)
	o.freeAssignee(msg.SenderID)
	o.ctx.Set(msg.TaskID, "validation_detail", detail)
	o.ctx.Clear(msg.TaskID)
	return nil
}

func (o *Orchestrator) freeAssignee(agentID string) {
	o.agents.SetStatus(agentID, registry.StatusAvailable)
}

// handleReportStatus updates an agent's liveness on any status report it
// emits, independent of task completion (heartbeats per §4.4).
func (o *Orchestrator) handleReportStatus(ctx context.Context, msg *transport.Message) error {
	o.agents.Heartbeat(msg.SenderID)
	return nil
}

// SweepOfflineAgents marks agents unseen within window as OFFLINE and
// returns their ids. Intended to be called periodically by the hosting
// process (§4.4 "Agent registration").
func (o *Orchestrator) SweepOfflineAgents(window time.Duration) []string {
	offline := o.agents.MarkOfflineIfStale(window)
	for _, id := range offline {
		o.log.Info("agent marked offline", zap.String("agent_id", id))
	}
	return offline
}

// SweepStuckTasks logs any ASSIGNED/EXECUTING task that has not progressed
// within threshold (§4.3 "Stuck-task detection", S5).
func (o *Orchestrator) SweepStuckTasks(ctx context.Context, threshold time.Duration) {
	if _, err := o.tasks.LogStuckTasks(ctx, threshold); err != nil {
		o.log.Error("stuck task scan failed", zap.Error(err))
	}
}

func stringField(payload map[string]any, key, def string) string {
	if payload == nil {
		return def
	}
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return def
}

// stringSliceField reads a string-list payload field. A message that has
// never been through JSON carries it as []string (constructed in-process);
// one that has round-tripped through encoding/json - every real Transport,
// per message.go's Marshal/Unmarshal - carries it as []interface{}, since
// json.Unmarshal into map[string]any always decodes a JSON array that way.
// Non-string elements are skipped rather than failing the whole field.
func stringSliceField(payload map[string]any, key string) []string {
	if payload == nil {
		return nil
	}
	switch v := payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
