package knowledge

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

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := New(t.TempDir(), logger.Default())
	require.NoError(t, err)
	router := gin.New()
	svc.RegisterRoutes(router)
	return svc, router
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

func TestHealth(t *testing.T) {
	_, router := newTestService(t)
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreAndSearchKnowledge(t *testing.T) {
	_, router := newTestService(t)

	rec := doJSON(t, router, http.MethodPost, "/store_knowledge", map[string]any{
		"content": "retry with exponential backoff on 5xx",
		"title":   "Bridge retry policy",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var stored struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, 1, stored.ID)

	rec = doJSON(t, router, http.MethodPost, "/search_knowledge", map[string]any{
		"query": "backoff",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var searched struct {
		Results []Item `json:"results"`
		Total   int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	require.Len(t, searched.Results, 1)
	assert.Equal(t, "Bridge retry policy", searched.Results[0].Title)
	assert.Equal(t, "reference", searched.Results[0].Category, "category defaults to reference")
}

func TestSearchKnowledgeNoMatch(t *testing.T) {
	_, router := newTestService(t)
	doJSON(t, router, http.MethodPost, "/store_knowledge", map[string]any{"content": "unrelated entry"})

	rec := doJSON(t, router, http.MethodPost, "/search_knowledge", map[string]any{"query": "nonexistent"})
	var searched struct {
		Results []Item `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	assert.Empty(t, searched.Results)
}

func TestListKnowledgeMostRecentFirst(t *testing.T) {
	_, router := newTestService(t)
	doJSON(t, router, http.MethodPost, "/store_knowledge", map[string]any{"content": "first"})
	doJSON(t, router, http.MethodPost, "/store_knowledge", map[string]any{"content": "second"})

	rec := doJSON(t, router, http.MethodGet, "/list_knowledge?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items []Item `json:"items"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 2)
	assert.Equal(t, "second", listed.Items[0].Content)
	assert.Equal(t, "first", listed.Items[1].Content)
}

func TestStoreKnowledgeRequiresContent(t *testing.T) {
	_, router := newTestService(t)
	rec := doJSON(t, router, http.MethodPost, "/store_knowledge", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
