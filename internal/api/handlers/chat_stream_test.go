package handlers_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnBody(chatID *uuid.UUID, text string) map[string]interface{} {
	body := map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": text}},
	}
	if chatID != nil {
		body["chatId"] = chatID.String()
	}
	return body
}

func TestChatStreamHandler_Stream(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, token := testutil.NewUserBuilder().Anonymous().BuildAndAuthenticate(t, ts)
	session := testutil.NewChatSessionBuilder().WithOwner(user).Build(t, ts.DB.DB)

	ts.Upstream.SetStream(http.StatusOK, strings.Join([]string{
		"data: Orders ship",
		"data:  within<|newline|>",
		"data: Error: transient",
		"data: 2 days.",
		"data: [DONE]",
		"data: ignored",
		"",
	}, "\n"))

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(&session.ID, "When do orders ship?"), token)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "v1", resp.Header.Get("X-Vercel-Ai-Ui-Message-Stream"))

	deltas := testutil.AssertEnvelope(t, testutil.ReadSSEEvents(t, resp))
	assert.Equal(t, []string{"Orders ship", " within\n", "2 days."}, deltas)

	requests := ts.Upstream.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "Bearer "+token, requests[0].Authorization)

	ts.Services.Conversation.Wait()
	page, err := ts.Services.Chat.FetchMessages(t.Context(), user.ID, session.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "When do orders ship?", page.Messages[0].Content)
	assert.Equal(t, "Orders ship within\n2 days.", page.Messages[1].Content)

	got, err := ts.Services.Chat.GetSession(t.Context(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Generated Title", got.Title)
}

func TestChatStreamHandler_StreamWithoutChat(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(nil, "hello"), token)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusOK)
	deltas := testutil.AssertEnvelope(t, testutil.ReadSSEEvents(t, resp))
	assert.Equal(t, "Hello world", strings.Join(deltas, ""))
}

func TestChatStreamHandler_EmptyStream(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	ts.Upstream.SetStream(http.StatusOK, "data: [DONE]\n\n")

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(nil, "hello"), token)
	defer resp.Body.Close()

	events := testutil.ReadSSEEvents(t, resp)
	deltas := testutil.AssertEnvelope(t, events)
	assert.Empty(t, deltas)
	assert.Len(t, events, 2)
}

func TestChatStreamHandler_EmptyUpstreamBody(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	ts.Upstream.SetStream(http.StatusOK, "")

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(nil, "hello"), token)
	defer resp.Body.Close()

	testutil.AssertStatusCode(t, resp, http.StatusOK)
	events := testutil.ReadSSEEvents(t, resp)
	assert.Empty(t, testutil.AssertEnvelope(t, events))
	assert.Len(t, events, 2)
}

func TestChatStreamHandler_Errors(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	stranger, _ := testutil.NewUserBuilder().Build(t, ts.DB.DB)
	foreign := testutil.NewChatSessionBuilder().WithOwner(stranger).Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		body           interface{}
		upstreamStatus int
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "upstream failure",
			body:           turnBody(nil, "hello"),
			upstreamStatus: http.StatusInternalServerError,
			expectedStatus: http.StatusBadGateway,
			expectedError:  "Failed to get response from backend",
		},
		{
			name:           "no messages",
			body:           map[string]interface{}{"messages": []interface{}{}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "last message not from user",
			body: map[string]interface{}{
				"messages": []map[string]string{{"role": "assistant", "content": "hi"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "someone else's chat",
			body:           turnBody(&foreign.ID, "hello"),
			expectedStatus: http.StatusNotFound,
			expectedError:  "Chat not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.upstreamStatus
			if status == 0 {
				status = http.StatusOK
			}
			ts.Upstream.SetStream(status, "data: Hello\n\ndata: [DONE]\n\n")

			resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), tt.body, token)
			defer resp.Body.Close()

			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			if tt.expectedError != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedError)
				return
			}
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
		})
	}
}

func TestChatStreamHandler_RateLimited(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.RateLimitPerMinute = 2
	ts := testutil.NewTestServerWithConfig(t, cfg)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	for i := 0; i < 2; i++ {
		resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(nil, fmt.Sprintf("q%d", i)), token)
		testutil.AssertStatusCode(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(nil, "one too many"), token)
	defer resp.Body.Close()
	testutil.AssertStatusCode(t, resp, http.StatusTooManyRequests)
}

func TestChatStreamHandler_UnterminatedStream(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	session := testutil.NewChatSessionBuilder().WithOwner(user).Build(t, ts.DB.DB)

	// The backend closes the body without [DONE]; the partial reply is kept.
	ts.Upstream.SetStream(http.StatusOK, "data: partial answer\n")

	resp := doRequest(t, http.MethodPost, ts.APIURL("/chat"), turnBody(&session.ID, "hello"), token)
	defer resp.Body.Close()

	deltas := testutil.AssertEnvelope(t, testutil.ReadSSEEvents(t, resp))
	assert.Equal(t, []string{"partial answer"}, deltas)

	ts.Services.Conversation.Wait()
	var count int64
	ts.DB.DB.Model(&domain.ChatMessage{}).Where("chat_session_id = ?", session.ID).Count(&count)
	assert.Equal(t, int64(2), count)
}
