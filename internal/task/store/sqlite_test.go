package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coordcore/core/internal/task"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	now := time.Now().UTC()
	tsk := &task.Task{
		TaskID:       "build-1",
		Type:         task.TypeBuild,
		State:        task.StatePending,
		Dependencies: []string{"spec-1"},
		Priority:     task.PriorityHigh,
		Payload:      map[string]any{"foo": "bar"},
		Artifacts:    []task.Artifact{},
		History:      []task.HistoryEntry{{Timestamp: now, State: task.StatePending, Detail: "created"}},
		CreatedAt:    now,
		LastUpdateAt: now,
	}
	if err := s.Save(ctx, tsk); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "build-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected to find build-1")
	}
	if got.Priority != task.PriorityHigh || len(got.Dependencies) != 1 || got.Dependencies[0] != "spec-1" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if len(got.History) != 1 || got.History[0].Detail != "created" {
		t.Fatalf("expected history to round trip, got %+v", got.History)
	}
}

func TestSQLiteStoreGetMissingReturnsNilNoError(t *testing.T) {
	s := newTestSQLiteStore(t)
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing task, got %+v", got)
	}
}

func TestSQLiteStoreSaveUpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	now := time.Now().UTC()

	tsk := &task.Task{TaskID: "build-1", State: task.StatePending, CreatedAt: now, LastUpdateAt: now,
		Artifacts: []task.Artifact{}, History: []task.HistoryEntry{}}
	if err := s.Save(ctx, tsk); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tsk.State = task.StateCompleted
	tsk.LastUpdateAt = now.Add(time.Second)
	if err := s.Save(ctx, tsk); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected the upsert to leave exactly one row, got %d", len(all))
	}
	if all[0].State != task.StateCompleted {
		t.Fatalf("expected the row to reflect the updated state, got %s", all[0].State)
	}
}

func TestSQLiteStoreListFiltersByType(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	now := time.Now().UTC()

	mk := func(id string, typ task.Type) *task.Task {
		return &task.Task{TaskID: id, Type: typ, State: task.StatePending, CreatedAt: now, LastUpdateAt: now,
			Artifacts: []task.Artifact{}, History: []task.HistoryEntry{}}
	}
	if err := s.Save(ctx, mk("spec-1", task.TypeSpecification)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, mk("build-1", task.TypeBuild)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	builds, err := s.List(ctx, task.Filter{Type: task.TypeBuild})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(builds) != 1 || builds[0].TaskID != "build-1" {
		t.Fatalf("expected only build-1, got %v", builds)
	}
}
