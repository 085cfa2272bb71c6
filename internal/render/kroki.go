// Package render submits PlantUML sources to a Kroki service and returns
// the rendered image. Rendering is best-effort from the pipeline's point
// of view: failures carry the service's reason so the critic can attempt
// a corrective redraft.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the public Kroki instance.
const DefaultEndpoint = "https://kroki.io"

// maxReasonBytes caps how much of an error body is kept as the reason.
const maxReasonBytes = 2000

// Error is a render rejection from the service, usually a PlantUML
// syntax problem. Reason is the service's response body.
type Error struct {
	// Status is the HTTP status the service answered with.
	Status int
	// Reason is the service's explanation, truncated.
	Reason string
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("render service returned %d: %s", e.Status, e.Reason)
}

// Client renders diagram sources over HTTP.
type Client struct {
	endpoint   string
	format     string
	httpClient *http.Client
}

// NewClient creates a client for the given Kroki endpoint and output
// format (png, svg). A zero timeout falls back to 30 seconds.
func NewClient(endpoint, format string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if format == "" {
		format = "png"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		format:     format,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Format returns the configured output format.
func (c *Client) Format() string {
	return c.format
}

// Render posts the PlantUML source and returns the rendered image bytes.
// A non-200 answer returns an *Error carrying the service's reason.
func (c *Client) Render(ctx context.Context, source string) ([]byte, error) {
	url := fmt.Sprintf("%s/plantuml/%s", c.endpoint, c.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(source))
	if err != nil {
		return nil, fmt.Errorf("building render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxReasonBytes))
		return nil, &Error{
			Status: resp.StatusCode,
			Reason: strings.TrimSpace(string(body)),
		}
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rendered image: %w", err)
	}
	return image, nil
}
