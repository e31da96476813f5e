package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dom/faq-chat-web/internal/inference"
)

// FakeUpstream stands in for the inference backend. Each chat request is
// answered with the configured raw event-stream body.
type FakeUpstream struct {
	server *httptest.Server

	mu           sync.Mutex
	streamBody   string
	streamStatus int
	title        string
	titleStatus  int
	requests     []RecordedChatRequest
	titleCalls   []string
}

type RecordedChatRequest struct {
	Authorization string
	Body          inference.ChatRequest
}

func NewFakeUpstream(t *testing.T) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{
		streamBody:   "data: Hello\n\ndata:  world\n\ndata: [DONE]\n\n",
		streamStatus: http.StatusOK,
		title:        "Generated Title",
		titleStatus:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/message", f.handleMessage)
	mux.HandleFunc("/api/v1/chat/generate-title", f.handleTitle)
	f.server = httptest.NewServer(mux)

	t.Cleanup(f.server.Close)
	return f
}

func (f *FakeUpstream) URL() string {
	return f.server.URL
}

// SetStream sets the raw body and status returned for chat requests.
func (f *FakeUpstream) SetStream(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamStatus = status
	f.streamBody = body
}

func (f *FakeUpstream) SetTitle(status int, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleStatus = status
	f.title = title
}

func (f *FakeUpstream) Requests() []RecordedChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedChatRequest(nil), f.requests...)
}

func (f *FakeUpstream) TitleCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titleCalls...)
}

func (f *FakeUpstream) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body inference.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, RecordedChatRequest{
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	status, stream := f.streamStatus, f.streamBody
	f.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "upstream failure", status)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	io.WriteString(w, stream)
}

func (f *FakeUpstream) handleTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.titleCalls = append(f.titleCalls, body.Message)
	status, title := f.titleStatus, f.title
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"title": title})
}
