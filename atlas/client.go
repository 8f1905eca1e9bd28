// Package atlas is a client for the slice of the Atlas Admin API v2
// the daemon drives: cluster sizing and AWS private-endpoint CRUD.
package atlas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/icholy/digest"
)

// acceptVersion pins the Atlas Admin API resource version.
const acceptVersion = "application/vnd.atlas.2024-08-05+json"

// requestTimeout caps a single API call. Convergence waits are handled
// by polling, never by a long-lived request.
const requestTimeout = 30 * time.Second

// Client talks to the Atlas Admin API for one project, authenticating
// with an API key pair via HTTP digest.
type Client struct {
	baseURL    *url.URL
	project    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Tests use this to skip
// digest auth against httptest servers.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client rooted at baseURL for the given project.
// publicKey/privateKey are the Atlas programmatic API key pair.
func NewClient(baseURL, projectID, publicKey, privateKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse atlas base URL: %w", err)
	}
	if projectID == "" {
		return nil, fmt.Errorf("atlas project id is required")
	}

	c := &Client{
		baseURL: u,
		project: projectID,
		httpClient: &http.Client{
			Transport: &digest.Transport{
				Username: publicKey,
				Password: privateKey,
			},
			Timeout: requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// groupPath joins path elements under this project's API prefix.
func (c *Client) groupPath(elem ...string) string {
	parts := append([]string{"api", "atlas", "v2", "groups", c.project}, elem...)
	return c.baseURL.JoinPath(parts...).String()
}

// do performs one API call. body and out may be nil. Non-2xx responses
// become *APIError, carrying the Atlas error detail when present.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptVersion)
	if body != nil {
		req.Header.Set("Content-Type", acceptVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, req.URL.Path, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, req.URL.Path, err)
		}
	}
	return nil
}
