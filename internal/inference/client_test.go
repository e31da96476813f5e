package inference_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_OpenChatStream(t *testing.T) {
	var gotAuth, gotAccept string
	var gotBody inference.ChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/message", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: hi\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	client := inference.NewClient(server.URL+"/", time.Second)
	body, err := client.OpenChatStream(context.Background(), "tok", inference.ChatRequest{
		Message: "hello",
		History: []inference.Turn{{Role: "user", Content: "earlier"}},
	})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: hi\n\ndata: [DONE]\n\n", string(raw))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "hello", gotBody.Message)
	require.Len(t, gotBody.History, 1)
	assert.Equal(t, "earlier", gotBody.History[0].Content)
}

func TestClient_OpenChatStreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := inference.NewClient(server.URL, time.Second)
			body, err := client.OpenChatStream(context.Background(), "tok", inference.ChatRequest{Message: "x"})
			assert.ErrorIs(t, err, domain.ErrUpstream)
			assert.Nil(t, body)
		})
	}

	t.Run("unreachable backend", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client := inference.NewClient(url, time.Second)
		_, err := client.OpenChatStream(context.Background(), "tok", inference.ChatRequest{Message: "x"})
		assert.ErrorIs(t, err, domain.ErrUpstream)
	})
}

func TestClient_OpenChatStreamEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := inference.NewClient(server.URL, time.Second)
	body, err := client.OpenChatStream(context.Background(), "tok", inference.ChatRequest{Message: "x"})
	require.NoError(t, err)
	require.NotNil(t, body)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestClient_GenerateTitle(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantTitle string
		wantErr   bool
	}{
		{
			name: "returns backend title",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req map[string]string
				_ = json.NewDecoder(r.Body).Decode(&req)
				assert.Equal(t, "How do refunds work?", req["message"])
				_ = json.NewEncoder(w).Encode(map[string]string{"title": "Refund questions"})
			},
			wantTitle: "Refund questions",
		},
		{
			name: "blank title falls back",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"title": "  "})
			},
			wantTitle: domain.DefaultChatTitle,
		},
		{
			name: "non-200 is an error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: true,
		},
		{
			name: "slow backend times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := inference.NewClient(server.URL, 200*time.Millisecond)
			title, err := client.GenerateTitle(context.Background(), "tok", "How do refunds work?")
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUpstream)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, title)
		})
	}
}
