package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrPublishRejected is returned when the courier fails to accept a job.
// This is distinct from the destination later failing to respond; the
// dispatcher logs it per destination and moves on.
var ErrPublishRejected = errors.New("courier: publish rejected")

// Publisher hands delivery jobs to the external publishing service. The
// dispatcher depends on this interface so tests can substitute fakes.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Client publishes jobs to the courier over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client for the courier at baseURL, authenticating
// with the given bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Publish submits one job to the courier's publish endpoint. Any transport
// error or non-2xx response wraps ErrPublishRejected.
func (c *Client) Publish(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshal job: %v", ErrPublishRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/publish", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPublishRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPublishRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
