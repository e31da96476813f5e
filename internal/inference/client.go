package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
)

const (
	chatStreamPath    = "/api/v1/chat/message"
	generateTitlePath = "/api/v1/chat/generate-title"
)

// Turn is one prior message sent to the backend as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string `json:"message"`
	History []Turn `json:"history,omitempty"`
}

type titleRequest struct {
	Message string `json:"message"`
}

type titleResponse struct {
	Title string `json:"title"`
}

// Client talks to the inference backend. The caller's bearer token is
// forwarded on every request.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	titleTimeout time.Duration
}

func NewClient(baseURL string, titleTimeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-wide timeout: streams are bounded by the relay's idle
		// timeout and the request context.
		httpClient:   &http.Client{},
		titleTimeout: titleTimeout,
	}
}

// OpenChatStream posts the turn and returns the raw event-stream body.
// The caller owns the body and must close it.
func (c *Client) OpenChatStream(ctx context.Context, token string, req ChatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatStreamPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrUpstream, resp.StatusCode)
	}
	// An empty successful body is a valid, empty stream.
	if resp.Body == nil {
		return nil, fmt.Errorf("%w: no response body", domain.ErrUpstream)
	}
	return resp.Body, nil
}

// GenerateTitle asks the backend for a short title for the first message
// of a chat. A blank title from the backend falls back to the default.
func (c *Client) GenerateTitle(ctx context.Context, token, message string) (string, error) {
	if c.titleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.titleTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(titleRequest{Message: message})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generateTitlePath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", domain.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: title status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var body titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode title: %v", domain.ErrUpstream, err)
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		return domain.DefaultChatTitle, nil
	}
	return title, nil
}
