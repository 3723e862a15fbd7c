// Package jira is a minimal Jira Cloud REST client.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/pilot/internal/models"
)

// pageSize is the Jira Cloud cap on search results per request.
const pageSize = 100

// defaultRetryAfter is used when a 429 response has no usable Retry-After header.
const defaultRetryAfter = 2 * time.Second

// StatusError is a non-2xx response from Jira.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira: %d %s %s", e.StatusCode, http.StatusText(e.StatusCode), strings.TrimSpace(e.Body))
}

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a single Jira site with basic auth.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	http     *http.Client
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("jira: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("jira: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		http:     hc,
		log:      log,
		sleep:    sleepCtx,
	}, nil
}

// GetIssue returns the raw issue document for key.
func (c *Client) GetIssue(ctx context.Context, key string) (map[string]any, error) {
	path := "/rest/api/3/issue/" + url.PathEscape(key)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var issue map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("jira: decode issue %s: %w", key, err)
	}
	return issue, nil
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchPage struct {
	Total  int              `json:"total"`
	Issues []map[string]any `json:"issues"`
}

// Search runs jql and collects issues page by page until total or
// maxResults is reached. Rate-limited pages are retried after Retry-After.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int) ([]map[string]any, error) {
	if fields == nil {
		fields = []string{}
	}
	var issues []map[string]any
	startAt := 0
	for {
		body := searchRequest{JQL: jql, StartAt: startAt, MaxResults: pageSize, Fields: fields}
		resp, err := c.do(ctx, http.MethodPost, "/rest/api/3/search", body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			drainClose(resp)
			c.log.Debug("jira rate limited", "retry_after", wait, "start_at", startAt)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if err := checkStatus(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}

		var page searchPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("jira: decode search page: %w", err)
		}
		issues = append(issues, page.Issues...)

		startAt += pageSize
		if startAt >= page.Total || len(issues) >= maxResults {
			break
		}
	}
	if len(issues) > maxResults && maxResults > 0 {
		issues = issues[:maxResults]
	}
	return issues, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jira: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("jira: create request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func retryAfter(h string) time.Duration {
	secs, err := strconv.ParseUint(strings.TrimSpace(h), 10, 32)
	if err != nil {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher builds a Client per call from the stored credentials.
type Fetcher struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// FetchIssue implements ticket.Fetcher.
func (f Fetcher) FetchIssue(ctx context.Context, creds models.JiraCredentials, key string) (map[string]any, error) {
	c, err := NewClient(Config{
		BaseURL:    creds.BaseURL,
		Email:      creds.Email,
		APIToken:   creds.APIToken,
		HTTPClient: f.HTTPClient,
		Logger:     f.Logger,
	})
	if err != nil {
		return nil, err
	}
	return c.GetIssue(ctx, key)
}
