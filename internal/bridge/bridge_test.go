package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/logger"
)

func newTestBridge(t *testing.T, knowledge, vector, coord *httptest.Server) *Bridge {
	t.Helper()
	cfg := config.BridgeConfig{TimeoutSeconds: 2, MaxRetries: 1}
	if knowledge != nil {
		cfg.KnowledgeURL = knowledge.URL
	}
	if vector != nil {
		cfg.VectorURL = vector.URL
	}
	if coord != nil {
		cfg.CoordinationURL = coord.URL
	}
	return New(cfg, logger.Default())
}

func TestStoreKnowledgeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store_knowledge", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "status": "success"})
	}))
	defer srv.Close()

	b := newTestBridge(t, srv, nil, nil)
	id, err := b.StoreKnowledge(context.Background(), "some content", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestCallRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	}))
	defer srv.Close()

	b := newTestBridge(t, srv, nil, nil)
	id, err := b.StoreKnowledge(context.Background(), "content", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 2, attempts, "expected one retry after the first 503")
}

func TestCallDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := newTestBridge(t, srv, nil, nil)
	_, err := b.StoreKnowledge(context.Background(), "content", nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "4xx responses must not be retried")
}

func TestSearchDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": 1, "title": "doc", "score": 0.8}},
		})
	}))
	defer srv.Close()

	b := newTestBridge(t, nil, srv, nil)
	results, err := b.Search(context.Background(), "doc", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].Title)
}

func TestCreateAndCompleteHubTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/create_task":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "task-1"})
		case "/complete_task":
			json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := newTestBridge(t, nil, nil, srv)
	id, err := b.CreateHubTask(context.Background(), "title", "desc", "", "medium", "coordination")
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	err = b.CompleteHubTask(context.Background(), id, "done")
	require.NoError(t, err)
}
