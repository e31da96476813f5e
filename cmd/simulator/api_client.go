package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client. Streaming requests can run long,
// so there is no overall client timeout.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{},
	}
}

// Response types matching backend

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Chat struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int64  `json:"messageCount"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	Pagination struct {
		HasMore    bool    `json:"hasMore"`
		NextCursor *string `json:"nextCursor"`
		Count      int     `json:"count"`
	} `json:"pagination"`
}

type streamEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Delta string `json:"delta"`
	Error string `json:"error"`
}

// CreateGuest creates an anonymous user and returns its bearer token
func (c *APIClient) CreateGuest() (*User, string, error) {
	resp, err := c.post("/auth/anonymous", nil, "")
	if err != nil {
		return nil, "", fmt.Errorf("anonymous request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError("create guest", resp)
	}

	var result AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	return &result.User, result.Token, nil
}

// CreateChat creates a chat session
func (c *APIClient) CreateChat(token, title string) (*Chat, error) {
	var body interface{}
	if title != "" {
		body = map[string]string{"title": title}
	}

	resp, err := c.post("/chats", body, token)
	if err != nil {
		return nil, fmt.Errorf("create chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("create chat", resp)
	}

	var chat Chat
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &chat, nil
}

// ListChats lists the caller's chats, most recently active first
func (c *APIClient) ListChats(token string) ([]Chat, error) {
	resp, err := c.get("/chats", token)
	if err != nil {
		return nil, fmt.Errorf("list chats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list chats", resp)
	}

	var chats []Chat
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return chats, nil
}

// Messages fetches one page of history ending just before cursor
func (c *APIClient) Messages(token, chatID string, limit int, cursor string) (*MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	path := "/chats/" + chatID + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.get(path, token)
	if err != nil {
		return nil, fmt.Errorf("messages request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch messages", resp)
	}

	var page MessagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &page, nil
}

// Ask sends one user turn and calls onDelta for every streamed delta.
// It returns the reassembled reply.
func (c *APIClient) Ask(token, chatID, question string, onDelta func(string)) (string, error) {
	resp, err := c.post("/chat", turnBody(chatID, question), token)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("chat", resp)
	}

	var reply strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data: "); ok {
			var ev streamEvent
			if jerr := json.Unmarshal([]byte(payload), &ev); jerr != nil {
				return reply.String(), fmt.Errorf("bad event frame %q: %w", payload, jerr)
			}
			if ev.Type == "text-delta" {
				reply.WriteString(ev.Delta)
				onDelta(ev.Delta)
			}
			if ev.Type == "text-end" {
				return reply.String(), nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return reply.String(), fmt.Errorf("stream closed before text-end")
			}
			return reply.String(), err
		}
	}
}

// AskWebSocket sends one user turn over the WebSocket transport
func (c *APIClient) AskWebSocket(token, chatID, question string, onDelta func(string)) (string, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/chat/ws?token=" + url.QueryEscape(token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(turnBody(chatID, question)); err != nil {
		return "", fmt.Errorf("failed to send turn: %w", err)
	}

	var reply strings.Builder
	for {
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return reply.String(), fmt.Errorf("websocket read failed: %w", err)
		}
		switch ev.Type {
		case "text-delta":
			reply.WriteString(ev.Delta)
			onDelta(ev.Delta)
		case "text-end":
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return reply.String(), nil
		case "error":
			return reply.String(), fmt.Errorf("server error: %s", ev.Error)
		}
	}
}

func turnBody(chatID, question string) map[string]interface{} {
	body := map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": question}},
	}
	if chatID != "" {
		body["chatId"] = chatID
	}
	return body
}

func statusError(action string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s failed (status %d): %s", action, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

// HTTP helpers

func (c *APIClient) get(path, token string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil, token)
}

func (c *APIClient) post(path string, body interface{}, token string) (*http.Response, error) {
	return c.do(http.MethodPost, path, body, token)
}

func (c *APIClient) do(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}
