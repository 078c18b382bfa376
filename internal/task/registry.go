package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/common/stringutil"
	"github.com/coordcore/core/internal/task/store"
)

// maxHistoryDetailLen bounds a failure/cancellation reason before it is
// persisted to history: agents may forward an arbitrary upstream error
// string, and history entries are meant to stay human-scannable.
const maxHistoryDetailLen = 500

// Registry is the authoritative store for tasks (§4.3). All state changes
// pass through it so invariants can be enforced centrally; it is the
// single serialization point for task state (§5) via mu.
type Registry struct {
	store store.Store
	log   *logger.Logger

	mu sync.Mutex
}

// NewRegistry wraps a Store with the state machine and invariant checks.
func NewRegistry(s store.Store, log *logger.Logger) *Registry {
	return &Registry{store: s, log: log}
}

// Create records a new task in PENDING. task_id is human-meaningful: a
// type prefix plus a unique suffix, per §3.
func (r *Registry) Create(ctx context.Context, typ Type, payload map[string]any, parentTask string, dependencies []string, priority Priority) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAcyclic(ctx, parentTask, dependencies); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		TaskID:       fmt.Sprintf("%s-%d-%s", typePrefix(typ), now.Unix(), uuid.NewString()[:8]),
		Type:         typ,
		State:        StatePending,
		ParentTask:   parentTask,
		Dependencies: append([]string(nil), dependencies...),
		Priority:     priority,
		Payload:      payload,
		CreatedAt:    now,
		Artifacts:    []Artifact{},
	}
	t.appendHistory(StatePending, "created")

	if err := r.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func typePrefix(t Type) string {
	switch t {
	case TypeSpecification:
		return "spec"
	case TypeBuild:
		return "build"
	case TypeValidate:
		return "validate"
	default:
		return "task"
	}
}

// checkAcyclic rejects a dependency set that would make the new task
// (transitively, via parentTask chains already in the store) depend on
// itself. Since Create always mints a fresh id, the only way to violate
// this is a caller passing a dependency that is itself an ancestor via
// parentTask — which cannot happen before the task exists — so this is a
// defensive check against a dependency list containing a cycle among
// *existing* tasks that would be unsatisfiable.
func (r *Registry) checkAcyclic(ctx context.Context, parentTask string, dependencies []string) error {
	for _, dep := range dependencies {
		seen := map[string]bool{}
		cur := dep
		for cur != "" {
			if seen[cur] {
				return errors.BadRequest(fmt.Sprintf("dependency %s forms a cycle", dep))
			}
			seen[cur] = true
			t, err := r.store.Get(ctx, cur)
			if err != nil {
				return err
			}
			if t == nil {
				break
			}
			cur = t.ParentTask
		}
	}
	return nil
}

// Assign transitions PENDING -> ASSIGNED. Rejected if any dependency is
// not COMPLETED (§4.3 "Dependency handling").
func (r *Registry) Assign(ctx context.Context, taskID, agentID string) (*Task, error) {
	return r.transition(ctx, taskID, func(t *Task) error {
		if t.State != StatePending {
			return errors.InvalidTransition(taskID, string(t.State), string(StateAssigned))
		}
		ready, err := r.dependenciesSatisfied(ctx, t)
		if err != nil {
			return err
		}
		if !ready {
			return errors.InvalidTransition(taskID, string(t.State), string(StateAssigned))
		}
		t.Assignee = agentID
		t.State = StateAssigned
		t.appendHistory(StateAssigned, fmt.Sprintf("assigned to %s", agentID))
		return nil
	})
}

// MarkExecuting transitions ASSIGNED -> EXECUTING.
func (r *Registry) MarkExecuting(ctx context.Context, taskID string) (*Task, error) {
	return r.transition(ctx, taskID, func(t *Task) error {
		if t.State != StateAssigned {
			return errors.InvalidTransition(taskID, string(t.State), string(StateExecuting))
		}
		t.State = StateExecuting
		t.appendHistory(StateExecuting, "execution started")
		return nil
	})
}

// Complete transitions EXECUTING -> COMPLETED, recording artifacts.
func (r *Registry) Complete(ctx context.Context, taskID string, artifacts []Artifact) (*Task, error) {
	return r.transition(ctx, taskID, func(t *Task) error {
		if t.State != StateExecuting {
			return errors.InvalidTransition(taskID, string(t.State), string(StateCompleted))
		}
		t.Artifacts = append(t.Artifacts, artifacts...)
		t.State = StateCompleted
		t.appendHistory(StateCompleted, "completed")
		return nil
	})
}

// Fail transitions any non-terminal state to FAILED.
func (r *Registry) Fail(ctx context.Context, taskID, reason string) (*Task, error) {
	return r.transition(ctx, taskID, func(t *Task) error {
		if t.State.IsTerminal() {
			return errors.InvalidTransition(taskID, string(t.State), string(StateFailed))
		}
		t.State = StateFailed
		t.appendHistory(StateFailed, stringutil.TruncateStringWithEllipsis(reason, maxHistoryDetailLen))
		return nil
	})
}

// Cancel transitions a non-terminal task to CANCELLED.
func (r *Registry) Cancel(ctx context.Context, taskID, reason string) (*Task, error) {
	return r.transition(ctx, taskID, func(t *Task) error {
		if t.State.IsTerminal() {
			return errors.InvalidTransition(taskID, string(t.State), string(StateCancelled))
		}
		t.State = StateCancelled
		t.appendHistory(StateCancelled, stringutil.TruncateStringWithEllipsis(reason, maxHistoryDetailLen))
		return nil
	})
}

// transition loads, mutates under the Registry's single lock, and saves —
// the linearization point described in §5: concurrent attempts are
// serialized and the losing attempt sees a deterministic rejection.
func (r *Registry) transition(ctx context.Context, taskID string, mutate func(*Task) error) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NotFound("task", taskID)
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// dependenciesSatisfied reports whether every dependency is COMPLETED.
func (r *Registry) dependenciesSatisfied(ctx context.Context, t *Task) (bool, error) {
	for _, dep := range t.Dependencies {
		d, err := r.store.Get(ctx, dep)
		if err != nil {
			return false, err
		}
		if d == nil || d.State != StateCompleted {
			return false, nil
		}
	}
	return true, nil
}

// Get returns a task by id.
func (r *Registry) Get(ctx context.Context, taskID string) (*Task, error) {
	return r.store.Get(ctx, taskID)
}

// List returns tasks matching filter.
func (r *Registry) List(ctx context.Context, filter Filter) ([]*Task, error) {
	return r.store.List(ctx, filter)
}

// TasksReady returns PENDING tasks whose dependencies are all COMPLETED,
// for the Orchestrator to dispatch (§4.3 "Dependency handling").
func (r *Registry) TasksReady(ctx context.Context) ([]*Task, error) {
	pending, err := r.store.List(ctx, Filter{State: StatePending})
	if err != nil {
		return nil, err
	}
	ready := make([]*Task, 0, len(pending))
	for _, t := range pending {
		ok, err := r.dependenciesSatisfied(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

// StuckTasks returns ASSIGNED/EXECUTING tasks whose LastUpdateAt precedes
// now by more than threshold (§4.3 "Stuck-task detection").
func (r *Registry) StuckTasks(ctx context.Context, threshold time.Duration) ([]*Task, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-threshold)
	stuck := make([]*Task, 0)
	for _, t := range all {
		if (t.State == StateAssigned || t.State == StateExecuting) && t.LastUpdateAt.Before(cutoff) {
			stuck = append(stuck, t)
		}
	}
	return stuck, nil
}

// LogStuckTasks scans for stuck tasks and emits a warning per task found,
// matching the Orchestrator's periodic scan behavior (§4.3, S5).
func (r *Registry) LogStuckTasks(ctx context.Context, threshold time.Duration) ([]*Task, error) {
	stuck, err := r.StuckTasks(ctx, threshold)
	if err != nil {
		return nil, err
	}
	for _, t := range stuck {
		r.log.Warn("stuck task detected",
			zap.String("task_id", t.TaskID),
			zap.String("state", string(t.State)),
			zap.Time("last_update_at", t.LastUpdateAt))
	}
	return stuck, nil
}

// Close releases the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
