// Package bridge implements the Service Bridge (§4.5): a uniform,
// failure-aware HTTP client for the three reference services, with
// per-call timeouts and bounded exponential-backoff retries on transient
// errors.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
)

// Bridge is the typed client over the Knowledge Store, Vector/Document
// Search, and Coordination Hub reference services.
type Bridge struct {
	httpClient *http.Client
	knowledge  string
	vector     string
	coord      string
	maxRetries int
	log        *logger.Logger
}

// New constructs a Bridge from BridgeConfig. The HTTP client is long-lived
// and reused across calls, per §4.5 "maintains long-lived HTTP
// connections".
func New(cfg config.BridgeConfig, log *logger.Logger) *Bridge {
	return &Bridge{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		knowledge:  cfg.KnowledgeURL,
		vector:     cfg.VectorURL,
		coord:      cfg.CoordinationURL,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
}

// KnowledgeItem mirrors the Knowledge Store's wire representation.
type KnowledgeItem struct {
	ID       int            `json:"id"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Tags     []string       `json:"tags"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StoreKnowledge appends a new knowledge item and returns its id.
func (b *Bridge) StoreKnowledge(ctx context.Context, content string, metadata map[string]any) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	body := map[string]any{"content": content}
	for k, v := range metadata {
		body[k] = v
	}
	if err := b.call(ctx, "knowledge-store", b.knowledge+"/store_knowledge", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// SearchKnowledge returns up to limit matching knowledge items.
func (b *Bridge) SearchKnowledge(ctx context.Context, query string, limit int, filters map[string]any) ([]KnowledgeItem, error) {
	var out struct {
		Results []KnowledgeItem `json:"results"`
	}
	body := map[string]any{"query": query, "limit": limit}
	for k, v := range filters {
		body[k] = v
	}
	if err := b.call(ctx, "knowledge-store", b.knowledge+"/search_knowledge", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListKnowledge returns all items, most recent first.
func (b *Bridge) ListKnowledge(ctx context.Context, limit int) ([]KnowledgeItem, error) {
	var out struct {
		Items []KnowledgeItem `json:"items"`
	}
	url := fmt.Sprintf("%s/list_knowledge?limit=%d", b.knowledge, limit)
	if err := b.get(ctx, "knowledge-store", url, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// VectorDocument mirrors the Vector/Document Search's wire representation.
type VectorDocument struct {
	ID       int            `json:"id"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score,omitempty"`
}

// StoreDocument appends a new document and returns its id.
func (b *Bridge) StoreDocument(ctx context.Context, content, title string, metadata map[string]any) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	body := map[string]any{"content": content, "title": title, "metadata": metadata}
	if err := b.call(ctx, "vector-search", b.vector+"/store_document", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Search returns up to limit documents, scored and sorted descending.
func (b *Bridge) Search(ctx context.Context, query string, limit int, filters map[string]any) ([]VectorDocument, error) {
	var out struct {
		Results []VectorDocument `json:"results"`
	}
	body := map[string]any{"query": query, "limit": limit, "filters": filters}
	if err := b.call(ctx, "vector-search", b.vector+"/search", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// HubTask mirrors the Coordination Hub's wire representation.
type HubTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
}

// CreateHubTask creates a Coordination Hub task record and returns its id.
func (b *Bridge) CreateHubTask(ctx context.Context, title, description, assignedTo, priority, taskType string) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	body := map[string]any{
		"title":       title,
		"description": description,
		"assigned_to": assignedTo,
		"priority":    priority,
		"type":        taskType,
	}
	if err := b.call(ctx, "coordination-hub", b.coord+"/create_task", body, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// ListHubTasks returns Coordination Hub tasks matching the given filters.
func (b *Bridge) ListHubTasks(ctx context.Context, status, assignedTo string, limit int) ([]HubTask, error) {
	var out struct {
		Tasks []HubTask `json:"tasks"`
	}
	url := fmt.Sprintf("%s/tasks?status=%s&assigned_to=%s&limit=%d", b.coord, status, assignedTo, limit)
	if err := b.get(ctx, "coordination-hub", url, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// UpdateHubTask updates a Coordination Hub task's status and optional data.
func (b *Bridge) UpdateHubTask(ctx context.Context, taskID, status string, data map[string]any) error {
	var out struct {
		Status string `json:"status"`
	}
	return b.put(ctx, "coordination-hub", fmt.Sprintf("%s/tasks/%s", b.coord, taskID), map[string]any{
		"status": status,
		"data":   data,
	}, &out)
}

// CompleteHubTask marks a Coordination Hub task as terminally successful.
func (b *Bridge) CompleteHubTask(ctx context.Context, taskID, result string) error {
	var out struct {
		Status string `json:"status"`
	}
	return b.call(ctx, "coordination-hub", b.coord+"/complete_task", map[string]any{
		"task_id": taskID,
		"result":  result,
	}, &out)
}

// call issues a retried POST and decodes the JSON response into out.
func (b *Bridge) call(ctx context.Context, service, url string, body any, out any) error {
	return b.do(ctx, service, http.MethodPost, url, body, out)
}

// get issues a retried GET and decodes the JSON response into out.
func (b *Bridge) get(ctx context.Context, service, url string, out any) error {
	return b.do(ctx, service, http.MethodGet, url, nil, out)
}

// put issues a retried PUT and decodes the JSON response into out.
func (b *Bridge) put(ctx context.Context, service, url string, body any, out any) error {
	return b.do(ctx, service, http.MethodPut, url, body, out)
}

// do performs one HTTP round trip with bounded exponential-backoff
// retries on transient failures (network errors and 5xx), per §4.5.
func (b *Bridge) do(ctx context.Context, service, method, url string, body any, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		status, err := b.roundTrip(ctx, method, url, body, out)
		if err != nil {
			if status >= 400 && status < 500 {
				return struct{}{}, backoff.Permanent(errors.ServiceCallFailure(service, err))
			}
			return struct{}{}, errors.ServiceCallFailure(service, err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(b.maxRetries+1)),
	)
	return err
}

// roundTrip executes a single attempt. It returns the HTTP status code
// (when a response was received) alongside any error so callers can
// classify 4xx as non-retryable.
func (b *Bridge) roundTrip(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(data))
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
