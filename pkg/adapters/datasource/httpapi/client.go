// Package httpapi reads chart records from JSON HTTP APIs.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ekaya-inc/ekaya-charts/pkg/retry"
)

const (
	// DefaultTimeout bounds a single request when the caller sets no deadline.
	DefaultTimeout = 30 * time.Second

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 32 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable implements retry.RetryableError: 5xx and 429 are transient.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client performs JSON GET requests with retries on transient failures.
type Client struct {
	httpClient *http.Client
	retryCfg   *retry.Config
}

// NewClient creates a Client. A nil httpClient gets a default with DefaultTimeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{httpClient: httpClient, retryCfg: retry.HTTPConfig()}
}

// BuildURL joins endpoint onto baseURL. Query parameters from both, plus
// extra, are merged.
func BuildURL(baseURL, endpoint string, extra url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base URL: must be an absolute http(s) URL")
	}

	endpointPath, endpointQuery, _ := strings.Cut(strings.TrimSpace(endpoint), "?")
	if endpointPath != "" && endpointPath != "/" {
		u.Path = path.Join("/", u.Path, endpointPath)
	}

	q := u.Query()
	if endpointQuery != "" {
		parsed, err := url.ParseQuery(endpointQuery)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint query: %w", err)
		}
		for k, vs := range parsed {
			q[k] = vs
		}
	}
	for k, vs := range extra {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetJSON fetches target and decodes the JSON body into a generic value.
func (c *Client) GetJSON(ctx context.Context, target string, headers map[string]string) (any, error) {
	body, err := retry.DoIfRetryable(ctx, c.retryCfg, func() ([]byte, error) {
		return c.get(ctx, target, headers)
	})
	if err != nil {
		return nil, err
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return v, nil
}

// Status performs a single GET and returns the status code without reading the body.
func (c *Client) Status(ctx context.Context, target string, headers map[string]string) (int, error) {
	resp, err := c.do(ctx, target, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	resp, err := c.do(ctx, target, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseBytes)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
