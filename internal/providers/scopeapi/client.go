// Package scopeapi talks to the document service that owns uploads,
// processing status and passage retrieval.
package scopeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// Client implements ports.Retriever and ports.DocumentStatusSource.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var (
	_ ports.Retriever            = (*Client)(nil)
	_ ports.DocumentStatusSource = (*Client)(nil)
)

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("SCOPEVOICE_API_URL is not configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid document service URL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Retrieve posts a retrieval request and returns passages best first.
func (c *Client) Retrieve(ctx context.Context, req ports.RetrievalRequest) (ports.RetrievalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ports.RetrievalResponse{}, fmt.Errorf("scopeapi: marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/retrieve", bytes.NewReader(body))
	if err != nil {
		return ports.RetrievalResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out ports.RetrievalResponse
	if err := c.do(httpReq, &out); err != nil {
		return ports.RetrievalResponse{}, err
	}
	return out, nil
}

type documentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DocumentStatus looks up one document's processing status.
func (c *Client) DocumentStatus(ctx context.Context, documentID string) (domain.DocumentStatus, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return "", err
	}

	var out documentResponse
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	return domain.DocumentStatus(strings.ToLower(strings.TrimSpace(out.Status))), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("scopeapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scopeapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("scopeapi: %s: %w", req.URL.Path, domain.ErrDocumentNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scopeapi: %s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scopeapi: decode response: %w", err)
	}
	return nil
}
