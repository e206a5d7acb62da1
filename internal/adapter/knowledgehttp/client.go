// Package knowledgehttp implements the knowledge port against the
// retrieval store's HTTP search API.
package knowledgehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/clearfield/triage/internal/port/knowledge"
)

// Client implements knowledge.Store over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a retrieval store client. timeout bounds every search.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns ranked documents from the given partition.
func (c *Client) Search(ctx context.Context, partition, query string, limit int) ([]knowledge.Document, error) {
	q := url.Values{}
	q.Set("partition", partition)
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("knowledge store error %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Documents []knowledge.Document `json:"documents"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal documents: %w", err)
	}
	return result.Documents, nil
}
