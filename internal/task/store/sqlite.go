package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coordcore/core/internal/common/sqlite"
	"github.com/coordcore/core/internal/task"
)

// SQLiteStore is the durable Task Registry backend: restart recovers every
// non-terminal task and its history (§4.3 "Durability"). Grounded on the
// teacher's internal/task/repository/sqlite package (sqlx + Rebind +
// in-code CREATE TABLE IF NOT EXISTS schema management, no external
// migration tool).
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open connects to (and creates, if absent) the sqlite file at path and
// ensures the tasks table exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite task store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS tasks (
	task_id         TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	state           TEXT NOT NULL,
	assignee        TEXT NOT NULL DEFAULT '',
	parent_task     TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL DEFAULT 1,
	dependencies    TEXT NOT NULL DEFAULT '[]',
	payload         TEXT NOT NULL DEFAULT '{}',
	artifacts       TEXT NOT NULL DEFAULT '[]',
	history         TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL,
	last_update_at  TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`); err != nil {
		return fmt.Errorf("create state index: %w", err)
	}
	// Databases created by an earlier schema may lack assignee;
	// EnsureColumn adds it and is a no-op once it's present.
	if err := sqlite.EnsureColumn(s.db.DB, "tasks", "assignee", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("ensure assignee column: %w", err)
	}
	return nil
}

type taskRow struct {
	TaskID       string `db:"task_id"`
	Type         string `db:"type"`
	State        string `db:"state"`
	Assignee     string `db:"assignee"`
	ParentTask   string `db:"parent_task"`
	Priority     int    `db:"priority"`
	Dependencies string `db:"dependencies"`
	Payload      string `db:"payload"`
	Artifacts    string `db:"artifacts"`
	History      string `db:"history"`
	CreatedAt    string `db:"created_at"`
	LastUpdateAt string `db:"last_update_at"`
}

func toRow(t *task.Task) (*taskRow, error) {
	deps, err := json.Marshal(t.Dependencies)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return nil, err
	}
	return &taskRow{
		TaskID:       t.TaskID,
		Type:         string(t.Type),
		State:        string(t.State),
		Assignee:     t.Assignee,
		ParentTask:   t.ParentTask,
		Priority:     int(t.Priority),
		Dependencies: string(deps),
		Payload:      string(payload),
		Artifacts:    string(artifacts),
		History:      string(history),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339Nano),
		LastUpdateAt: t.LastUpdateAt.Format(time.RFC3339Nano),
	}, nil
}

func (r *taskRow) toTask() (*task.Task, error) {
	t := &task.Task{
		TaskID:     r.TaskID,
		Type:       task.Type(r.Type),
		State:      task.State(r.State),
		Assignee:   r.Assignee,
		ParentTask: r.ParentTask,
		Priority:   task.Priority(r.Priority),
	}
	if err := json.Unmarshal([]byte(r.Dependencies), &t.Dependencies); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Payload), &t.Payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Artifacts), &t.Artifacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.History), &t.History); err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	lastUpdateAt, err := time.Parse(time.RFC3339Nano, r.LastUpdateAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt
	t.LastUpdateAt = lastUpdateAt
	return t, nil
}

func (s *SQLiteStore) Save(ctx context.Context, t *task.Task) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	query := s.db.Rebind(`
INSERT INTO tasks (task_id, type, state, assignee, parent_task, priority, dependencies, payload, artifacts, history, created_at, last_update_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
	type = excluded.type,
	state = excluded.state,
	assignee = excluded.assignee,
	parent_task = excluded.parent_task,
	priority = excluded.priority,
	dependencies = excluded.dependencies,
	payload = excluded.payload,
	artifacts = excluded.artifacts,
	history = excluded.history,
	created_at = excluded.created_at,
	last_update_at = excluded.last_update_at
`)
	_, err = s.db.ExecContext(ctx, query,
		row.TaskID, row.Type, row.State, row.Assignee, row.ParentTask, row.Priority,
		row.Dependencies, row.Payload, row.Artifacts, row.History, row.CreatedAt, row.LastUpdateAt)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*task.Task, error) {
	var row taskRow
	query := s.db.Rebind(`SELECT * FROM tasks WHERE task_id = ?`)
	err := s.db.GetContext(ctx, &row, query, taskID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toTask()
}

func (s *SQLiteStore) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]*task.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks`); err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.toTask()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
