// Package coordination implements the reference Coordination Hub service
// (§4.5), ported from
// original_source/mcp-servers/http-apis/coordination_hub_api.py. Its task
// records are distinct from, but analogous to, the Task Registry's
// internal tasks (§4.4); the Orchestrator may project Registry tasks here
// for external observers.
package coordination

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/services/store"
)

// Note is an appended progress/status note.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// HubTask is one Coordination Hub task record.
type HubTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assigned_to"`
	Priority    string     `json:"priority"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       []Note     `json:"notes"`
}

// Service is the Coordination Hub's HTTP handler set.
type Service struct {
	store *store.JSONStore[HubTask]
	log   *logger.Logger
}

// New opens (or creates) the task store backed by a JSON file under root,
// e.g. <root>/tasks.json.
func New(root string, log *logger.Logger) (*Service, error) {
	s, err := store.New[HubTask](root+"/tasks.json", "tasks")
	if err != nil {
		return nil, err
	}
	return &Service{store: s, log: log.WithFields(zap.String("component", "coordination-hub"))}, nil
}

// RegisterRoutes mounts the Coordination Hub endpoints on router.
func (s *Service) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", s.health)
	router.POST("/create_task", s.createTask)
	router.GET("/tasks", s.listTasks)
	router.PUT("/tasks/:id", s.updateTask)
	router.POST("/complete_task", s.completeTask)
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "coordination-hub"})
}

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	AssignedTo  string `json:"assigned_to"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
}

func (s *Service) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	if req.Type == "" {
		req.Type = "coordination"
	}

	var created HubTask
	if err := s.store.Mutate(func(existing []HubTask) ([]HubTask, bool) {
		now := time.Now().UTC()
		id := "task-" + strconv.Itoa(len(existing)+1) + "-" + strconv.FormatInt(now.Unix(), 10)
		created = HubTask{
			ID:          id,
			Title:       req.Title,
			Description: req.Description,
			AssignedTo:  req.AssignedTo,
			Priority:    req.Priority,
			Type:        req.Type,
			Status:      "pending",
			Progress:    0,
			CreatedAt:   now,
			UpdatedAt:   now,
			Notes:       []Note{},
		}
		return append(existing, created), true
	}); err != nil {
		s.log.Error("failed to persist hub task", zap.Error(err))
		appErr := errors.InternalError("failed to create task", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": created.ID,
		"status":  "success",
		"message": "Task created successfully",
	})
}

func (s *Service) listTasks(c *gin.Context) {
	status := c.Query("status")
	assignedTo := c.Query("assigned_to")
	limit := queryInt(c, "limit", 50)

	var filtered []HubTask
	for _, t := range s.store.Load() {
		if status != "" && t.Status != status {
			continue
		}
		if assignedTo != "" && t.AssignedTo != assignedTo {
			continue
		}
		filtered = append(filtered, t)
		if len(filtered) >= limit {
			break
		}
	}
	if filtered == nil {
		filtered = []HubTask{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": filtered,
		"total": len(filtered),
	})
}

type updateTaskRequest struct {
	Status string         `json:"status" binding:"required"`
	Data   map[string]any `json:"data"`
}

func (s *Service) updateTask(c *gin.Context) {
	taskID := c.Param("id")
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	found := false
	if err := s.store.Mutate(func(existing []HubTask) ([]HubTask, bool) {
		for i := range existing {
			if existing[i].ID != taskID {
				continue
			}
			found = true
			existing[i].Status = req.Status
			if note, ok := req.Data["notes"].(string); ok {
				existing[i].Notes = append(existing[i].Notes, Note{Timestamp: time.Now().UTC(), Note: note})
			}
			if progress, ok := req.Data["progress"].(float64); ok {
				existing[i].Progress = int(progress)
			}
			existing[i].UpdatedAt = time.Now().UTC()
			break
		}
		return existing, found
	}); err != nil {
		appErr := errors.InternalError("failed to update task", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if !found {
		appErr := errors.NotFound("task", taskID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Task updated"})
}

type completeTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Result string `json:"result"`
}

func (s *Service) completeTask(c *gin.Context) {
	var req completeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	found := false
	if err := s.store.Mutate(func(existing []HubTask) ([]HubTask, bool) {
		now := time.Now().UTC()
		for i := range existing {
			if existing[i].ID != req.TaskID {
				continue
			}
			found = true
			existing[i].Status = "completed"
			existing[i].Progress = 100
			existing[i].Result = req.Result
			existing[i].CompletedAt = &now
			existing[i].UpdatedAt = now
			break
		}
		return existing, found
	}); err != nil {
		appErr := errors.InternalError("failed to complete task", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if !found {
		appErr := errors.NotFound("task", req.TaskID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Task completed"})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
