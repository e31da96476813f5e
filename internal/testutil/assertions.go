package testutil

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies error response with expected status and message
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body struct {
		Error string `json:"error"`
	}
	AssertJSONResponse(t, resp, &body)
	assert.Contains(t, body.Error, expectedMessage, "error message mismatch")
}

// ReadSSEEvents reads every data frame of an event-stream response
func ReadSSEEvents(t *testing.T, resp *http.Response) []relay.Event {
	t.Helper()

	var events []relay.Event
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var ev relay.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &ev), "bad event frame: %s", payload)
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	assert.True(t, sawDone, "stream did not end with data: [DONE]")
	return events
}

// AssertEnvelope checks the start/deltas/end shape and returns the deltas
func AssertEnvelope(t *testing.T, events []relay.Event) []string {
	t.Helper()

	require.GreaterOrEqual(t, len(events), 2, "expected at least start and end events")
	assert.Equal(t, relay.EventStart, events[0].Type)
	assert.Equal(t, relay.EventEnd, events[len(events)-1].Type)

	var deltas []string
	for _, ev := range events {
		assert.Equal(t, relay.ResponseID, ev.ID)
	}
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, relay.EventDelta, ev.Type)
		deltas = append(deltas, ev.Delta)
	}
	return deltas
}
