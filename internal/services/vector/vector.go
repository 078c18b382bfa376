// Package vector implements the reference Vector/Document Search service
// (§4.5), ported from
// original_source/mcp-servers/http-apis/vector_search_api.py. The
// reference matcher is substring with a 0.8 title-hit plus 0.5
// content-hit score, sorted descending; implementations MAY replace it
// with embedding similarity without changing the wire contract.
package vector

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/services/store"
)

// Document is one stored document.
type Document struct {
	ID        int            `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	Score     float64        `json:"score,omitempty"`
}

// Service is the Vector/Document Search HTTP handler set.
type Service struct {
	store *store.JSONStore[Document]
	log   *logger.Logger
}

// New opens (or creates) the document store backed by a JSON file under
// root, e.g. <root>/documents.json.
func New(root string, log *logger.Logger) (*Service, error) {
	s, err := store.New[Document](root+"/documents.json", "documents")
	if err != nil {
		return nil, err
	}
	return &Service{store: s, log: log.WithFields(zap.String("component", "vector-service"))}, nil
}

// RegisterRoutes mounts the Vector/Document Search endpoints on router.
func (s *Service) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", s.health)
	router.POST("/store_document", s.storeDocument)
	router.POST("/search", s.search)
	router.GET("/list_documents", s.listDocuments)
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "vector-search"})
}

type storeDocumentRequest struct {
	Content  string         `json:"content" binding:"required"`
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Service) storeDocument(c *gin.Context) {
	var req storeDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	var stored Document
	if err := s.store.Mutate(func(existing []Document) ([]Document, bool) {
		id := len(existing) + 1
		title := req.Title
		if title == "" {
			title = "Document " + strconv.Itoa(id)
		}
		metadata := req.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		stored = Document{
			ID:        id,
			Title:     title,
			Content:   req.Content,
			Metadata:  metadata,
			CreatedAt: time.Now().UTC(),
		}
		return append(existing, stored), true
	}); err != nil {
		s.log.Error("failed to persist document", zap.Error(err))
		appErr := errors.InternalError("failed to store document", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      stored.ID,
		"status":  "success",
		"message": "Document stored successfully",
	})
}

type searchRequest struct {
	Query   string         `json:"query" binding:"required"`
	Limit   int            `json:"limit"`
	Filters map[string]any `json:"filters"`
}

func (s *Service) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	queryLower := strings.ToLower(req.Query)
	var results []Document
	for _, doc := range s.store.Load() {
		if matchesFilters(doc, req.Filters) {
			continue // filtered out below; see matchesFilters doc
		}
		content := strings.ToLower(doc.Content)
		title := strings.ToLower(doc.Title)
		if !strings.Contains(content, queryLower) && !strings.Contains(title, queryLower) {
			continue
		}
		score := 0.0
		if strings.Contains(title, queryLower) {
			score += 0.8
		}
		if strings.Contains(content, queryLower) {
			score += 0.5
		}
		doc.Score = score
		results = append(results, doc)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if req.Limit < len(results) {
		results = results[:req.Limit]
	}
	if results == nil {
		results = []Document{}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
		"query":   req.Query,
	})
}

// matchesFilters reports whether doc should be SKIPPED: any filter key
// present in doc.Metadata whose value disagrees excludes the document,
// mirroring the original's skip-on-mismatch semantics exactly.
func matchesFilters(doc Document, filters map[string]any) bool {
	for key, value := range filters {
		if mv, ok := doc.Metadata[key]; ok && mv != value {
			return true
		}
	}
	return false
}

func (s *Service) listDocuments(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	all := s.store.Load()
	docs := all
	if limit < len(docs) {
		docs = docs[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(all),
	})
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
