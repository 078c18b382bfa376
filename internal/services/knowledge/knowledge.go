// Package knowledge implements the reference Knowledge Store service
// (§4.5), ported from original_source/mcp-servers/http-apis/knowledge_base_api.py.
package knowledge

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/services/store"
)

// Item is one stored knowledge entry.
type Item struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is the Knowledge Store's HTTP handler set.
type Service struct {
	store *store.JSONStore[Item]
	log   *logger.Logger
}

// New opens (or creates) the knowledge store backed by a JSON file under
// root, e.g. <root>/knowledge.json.
func New(root string, log *logger.Logger) (*Service, error) {
	s, err := store.New[Item](root+"/knowledge.json", "items")
	if err != nil {
		return nil, err
	}
	return &Service{store: s, log: log.WithFields(zap.String("component", "knowledge-service"))}, nil
}

// RegisterRoutes mounts the Knowledge Store's endpoints on router.
func (s *Service) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", s.health)
	router.POST("/store_knowledge", s.storeKnowledge)
	router.POST("/search_knowledge", s.searchKnowledge)
	router.GET("/list_knowledge", s.listKnowledge)
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "knowledge-base"})
}

type storeKnowledgeRequest struct {
	Content  string   `json:"content" binding:"required"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	Category string   `json:"category"`
}

func (s *Service) storeKnowledge(c *gin.Context) {
	var req storeKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.Category == "" {
		req.Category = "reference"
	}

	var stored Item
	if mutErr := s.store.Mutate(func(existing []Item) ([]Item, bool) {
		id := len(existing) + 1
		title := req.Title
		if title == "" {
			title = "Knowledge Item " + strconv.Itoa(id)
		}
		stored = Item{
			ID:        id,
			Title:     title,
			Content:   req.Content,
			Tags:      req.Tags,
			Category:  req.Category,
			CreatedAt: time.Now().UTC(),
		}
		return append(existing, stored), true
	}); mutErr != nil {
		s.log.Error("failed to persist knowledge item", zap.Error(mutErr))
		appErr := errors.InternalError("failed to store knowledge", mutErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      stored.ID,
		"status":  "success",
		"message": "Knowledge stored successfully",
	})
}

type searchKnowledgeRequest struct {
	Query    string `json:"query" binding:"required"`
	Limit    int    `json:"limit"`
	Category string `json:"category"`
}

func (s *Service) searchKnowledge(c *gin.Context) {
	var req searchKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	queryLower := strings.ToLower(req.Query)
	var results []Item
	for _, item := range s.store.Load() {
		if req.Category != "" && item.Category != req.Category {
			continue
		}
		content := strings.ToLower(item.Content)
		title := strings.ToLower(item.Title)
		tags := strings.ToLower(strings.Join(item.Tags, " "))
		if strings.Contains(content, queryLower) || strings.Contains(title, queryLower) || strings.Contains(tags, queryLower) {
			results = append(results, item)
			if len(results) >= req.Limit {
				break
			}
		}
	}
	if results == nil {
		results = []Item{}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
		"query":   req.Query,
	})
}

func (s *Service) listKnowledge(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	items := s.store.Load()
	// Most recent first (§4.5 "GET /list_knowledge ... most recent first").
	reversed := make([]Item, len(items))
	for i, item := range items {
		reversed[len(items)-1-i] = item
	}
	if limit < len(reversed) {
		reversed = reversed[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"items": reversed,
		"total": len(items),
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
