// Package gong is a client for the Gong call-recording platform API.
package gong

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// ClientOptions configures the Gong API client.
type ClientOptions struct {
	// BaseURL is the regional API base URL (e.g. "https://us-4637.api.gong.io").
	BaseURL string
	// AccessKey and AccessKeySecret are the Basic-auth credential pair.
	AccessKey       string
	AccessKeySecret string
	// RetryMax is the maximum number of retries (default: 3)
	RetryMax int
	// Timeout is the HTTP client timeout (default: 30 seconds)
	Timeout time.Duration
}

// Client is the Gong API client.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *retryablehttp.Client
}

// NewClient creates a Gong API client with default settings.
func NewClient(baseURL, accessKey, accessKeySecret string) *Client {
	return NewClientWithOptions(ClientOptions{
		BaseURL:         baseURL,
		AccessKey:       accessKey,
		AccessKeySecret: accessKeySecret,
	})
}

// NewClientWithOptions creates a Gong API client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.gong.io"
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // Disable logging by default

	token := base64.StdEncoding.EncodeToString([]byte(opts.AccessKey + ":" + opts.AccessKeySecret))

	return &Client{
		baseURL:    opts.BaseURL,
		authHeader: "Basic " + token,
		httpClient: retryClient,
	}
}

// ListCalls retrieves all calls in [from, to], following the pagination cursor
// until the listing is exhausted.
func (c *Client) ListCalls(from, to time.Time) ([]Call, error) {
	var (
		all    []Call
		cursor string
	)

	for {
		page, err := c.listCallsPage(from, to, cursor)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Calls...)

		cursor = page.Records.Cursor
		if cursor == "" {
			break
		}

		slog.Debug("fetching next page of calls",
			"retrieved", len(all),
			"total", page.Records.TotalRecords,
		)
	}

	return all, nil
}

func (c *Client) listCallsPage(from, to time.Time, cursor string) (*CallsResponse, error) {
	params := url.Values{}
	params.Set("fromDateTime", from.UTC().Format(timeFormat))
	params.Set("toDateTime", to.UTC().Format(timeFormat))

	if cursor != "" {
		params.Set("cursor", cursor)
	}

	reqURL := fmt.Sprintf("%s/v2/calls?%s", c.baseURL, params.Encode())

	req, err := retryablehttp.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var page CallsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calls response: %w", err)
	}

	return &page, nil
}

// GetTranscript fetches the transcript for a single call.
func (c *Client) GetTranscript(callID string) (*TranscriptResponse, error) {
	payload, err := json.Marshal(transcriptRequest{
		Filter: transcriptFilter{CallIDs: []string{callID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.baseURL+"/v2/calls/transcript", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp TranscriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript response: %w", err)
	}

	return &resp, nil
}

func (c *Client) setHeaders(req *retryablehttp.Request) {
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
}

func (c *Client) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
