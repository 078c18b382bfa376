package coordination

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordcore/core/internal/common/logger"
)

func newTestService(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := New(t.TempDir(), logger.Default())
	require.NoError(t, err)
	router := gin.New()
	svc.RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createTask(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/create_task", map[string]any{
		"title":       "review spec",
		"description": "check the draft spec for gaps",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.TaskID)
	return out.TaskID
}

func TestCreateTaskDefaults(t *testing.T) {
	router := newTestService(t)
	taskID := createTask(t, router)

	rec := doJSON(t, router, http.MethodGet, "/tasks", nil)
	var listed struct {
		Tasks []HubTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, taskID, listed.Tasks[0].ID)
	assert.Equal(t, "medium", listed.Tasks[0].Priority)
	assert.Equal(t, "coordination", listed.Tasks[0].Type)
	assert.Equal(t, "pending", listed.Tasks[0].Status)
}

func TestUpdateTaskAppendsNoteAndProgress(t *testing.T) {
	router := newTestService(t)
	taskID := createTask(t, router)

	rec := doJSON(t, router, http.MethodPut, "/tasks/"+taskID, map[string]any{
		"status": "in_progress",
		"data": map[string]any{
			"notes":    "started the review",
			"progress": 40,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/tasks", nil)
	var listed struct {
		Tasks []HubTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, "in_progress", listed.Tasks[0].Status)
	assert.Equal(t, 40, listed.Tasks[0].Progress)
	require.Len(t, listed.Tasks[0].Notes, 1)
	assert.Equal(t, "started the review", listed.Tasks[0].Notes[0].Note)
}

func TestUpdateTaskNotFound(t *testing.T) {
	router := newTestService(t)
	rec := doJSON(t, router, http.MethodPut, "/tasks/does-not-exist", map[string]any{"status": "in_progress"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteTask(t *testing.T) {
	router := newTestService(t)
	taskID := createTask(t, router)

	rec := doJSON(t, router, http.MethodPost, "/complete_task", map[string]any{
		"task_id": taskID,
		"result":  "approved",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/tasks?status=completed", nil)
	var listed struct {
		Tasks []HubTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, 100, listed.Tasks[0].Progress)
	assert.Equal(t, "approved", listed.Tasks[0].Result)
	assert.NotNil(t, listed.Tasks[0].CompletedAt)
}

func TestCompleteTaskNotFound(t *testing.T) {
	router := newTestService(t)
	rec := doJSON(t, router, http.MethodPost, "/complete_task", map[string]any{"task_id": "nope", "result": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
