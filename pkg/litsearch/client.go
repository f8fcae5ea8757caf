// Package litsearch is a thin client for the literature search API the
// pipeline ingests evidence from. The service indexes publications by gene
// annotation and supports filtering by publication date.
package litsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/guardian-genomics/guardian-cli/internal/resilience"
)

const (
	defaultBaseURL  = "https://api.litsearch.io/v1"
	defaultPageSize = 50
)

// Client queries the literature search API.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the request body for POST /articles/search.
type SearchRequest struct {
	Gene     string     `json:"gene"`
	Since    *time.Time `json:"since,omitempty"`
	PageSize int        `json:"page_size,omitempty"`
}

// SearchResponse is the response from POST /articles/search. Results are
// ordered by publication date ascending.
type SearchResponse struct {
	Results []Article `json:"results"`
	Total   int       `json:"total"`
}

// Article is a single publication returned by the API.
type Article struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract"`
	GeneSymbols []string  `json:"gene_symbols"`
	PublishedAt time.Time `json:"published_at"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithPageSize overrides the default result page size.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		c.pageSize = n
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *http.Client
}

// NewClient creates a literature search API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.PageSize == 0 {
		req.PageSize = c.pageSize
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "litsearch: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/articles/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "litsearch: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "litsearch: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "litsearch: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("litsearch: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "litsearch: unmarshal response")
	}

	return &result, nil
}
