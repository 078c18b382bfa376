package vector

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

func TestStoreDocumentAndSearchScoring(t *testing.T) {
	router := newTestService(t)

	doJSON(t, router, http.MethodPost, "/store_document", map[string]any{
		"title":   "backoff",
		"content": "exponential backoff retries transient failures",
	})
	doJSON(t, router, http.MethodPost, "/store_document", map[string]any{
		"title":   "unrelated",
		"content": "backoff appears only here",
	})

	rec := doJSON(t, router, http.MethodPost, "/search", map[string]any{"query": "backoff"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Results []Document `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 2)
	// title+content hit (1.3) outranks content-only hit (0.5).
	assert.Equal(t, "backoff", out.Results[0].Title)
	assert.InDelta(t, 1.3, out.Results[0].Score, 0.0001)
	assert.InDelta(t, 0.5, out.Results[1].Score, 0.0001)
}

func TestSearchFiltersOnMetadataMismatch(t *testing.T) {
	router := newTestService(t)

	doJSON(t, router, http.MethodPost, "/store_document", map[string]any{
		"content":  "retry policy notes",
		"metadata": map[string]any{"kind": "policy"},
	})
	doJSON(t, router, http.MethodPost, "/store_document", map[string]any{
		"content":  "retry policy notes",
		"metadata": map[string]any{"kind": "draft"},
	})

	rec := doJSON(t, router, http.MethodPost, "/search", map[string]any{
		"query":   "retry",
		"filters": map[string]any{"kind": "policy"},
	})
	var out struct {
		Results []Document `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "policy", out.Results[0].Metadata["kind"])
}

func TestListDocumentsRespectsLimit(t *testing.T) {
	router := newTestService(t)
	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/store_document", map[string]any{"content": "doc"})
	}

	rec := doJSON(t, router, http.MethodGet, "/list_documents?limit=2", nil)
	var out struct {
		Documents []Document `json:"documents"`
		Total     int        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Documents, 2)
	assert.Equal(t, 3, out.Total)
}
