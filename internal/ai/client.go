package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elara-health/chat-service/internal/profile"
)

// Client calls the remote assistant's streaming chat endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8900"
	}
	// no client-level timeout: streams stay open as long as the request
	// context allows
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{}}
}

type ReplyRequest struct {
	Prompt    string           `json:"prompt"`
	Profile   *profile.Profile `json:"user_profile"`
	SessionID string           `json:"session_id,omitempty"`
}

// StreamReply opens the event-stream response for one reply. The caller owns
// the returned body and must close it. A non-2xx status is an error.
func (c *Client) StreamReply(ctx context.Context, req ReplyRequest) (io.ReadCloser, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/chat/stream", strings.TrimRight(c.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("assistant: %s", msg)
	}

	return resp.Body, nil
}
