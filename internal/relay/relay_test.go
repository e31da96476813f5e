package relay_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	events []relay.Event
	failAt int // 1-based event index to fail on; 0 never fails
}

func (r *recorder) Emit(ev relay.Event) error {
	r.events = append(r.events, ev)
	if r.failAt > 0 && len(r.events) == r.failAt {
		return errors.New("client went away")
	}
	return nil
}

func (r *recorder) deltas() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Type == relay.EventDelta {
			out = append(out, ev.Delta)
		}
	}
	return out
}

type trackedBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackedBody) Close() error {
	b.closed.Store(true)
	return nil
}

func openString(body *trackedBody) relay.Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return body, nil
	}
}

func newRelay() *relay.Relay {
	return relay.New(time.Second, zap.NewNop())
}

func TestRelay_Run(t *testing.T) {
	tests := []struct {
		name        string
		stream      string
		wantDeltas  []string
		wantText    string
		wantDropped int
	}{
		{
			name:       "newline placeholder inside a delta",
			stream:     "data: Hel\ndata: lo<|newline|>world\ndata: [DONE]\n",
			wantDeltas: []string{"Hel", "lo\nworld"},
			wantText:   "Hello\nworld",
		},
		{
			name:       "done stops consumption even with bytes after it",
			stream:     "data: a\n\ndata: [DONE]\n\ndata: never\n\n",
			wantDeltas: []string{"a"},
			wantText:   "a",
		},
		{
			name:        "error lines are dropped",
			stream:      "data: before\ndata: Error: upstream exploded\ndata: after\n",
			wantDeltas:  []string{"before", "after"},
			wantText:    "beforeafter",
			wantDropped: 1,
		},
		{
			name:       "error marker is case sensitive",
			stream:     "data: error is just a word here\n",
			wantDeltas: []string{"error is just a word here"},
			wantText:   "error is just a word here",
		},
		{
			name:       "non data lines and empty payloads are ignored",
			stream:     ": comment\nevent: message\ndata: \ndata:x\ndata: kept\n",
			wantDeltas: []string{"kept"},
			wantText:   "kept",
		},
		{
			name:       "crlf line endings",
			stream:     "data: one\r\n\r\ndata: two\r\n",
			wantDeltas: []string{"one", "two"},
			wantText:   "onetwo",
		},
		{
			name:       "unterminated final line is processed",
			stream:     "data: first\ndata: last",
			wantDeltas: []string{"first", "last"},
			wantText:   "firstlast",
		},
		{
			name:       "leading spaces in payload are preserved",
			stream:     "data: Hello\ndata:  world\n",
			wantDeltas: []string{"Hello", " world"},
			wantText:   "Hello world",
		},
		{
			name:   "empty stream",
			stream: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &trackedBody{Reader: strings.NewReader(tt.stream)}
			rec := &recorder{}

			res, err := newRelay().Run(context.Background(), openString(body), rec)
			require.NoError(t, err)
			require.NoError(t, res.Err)

			require.GreaterOrEqual(t, len(rec.events), 2)
			assert.Equal(t, relay.Event{Type: relay.EventStart, ID: relay.ResponseID}, rec.events[0])
			assert.Equal(t, relay.Event{Type: relay.EventEnd, ID: relay.ResponseID}, rec.events[len(rec.events)-1])
			assert.Equal(t, tt.wantDeltas, rec.deltas())
			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, len(tt.wantDeltas), res.Deltas)
			assert.Equal(t, tt.wantDropped, res.Dropped)
			assert.True(t, body.closed.Load(), "upstream body must be closed")
		})
	}
}

func TestRelay_ChunkBoundariesDoNotMatter(t *testing.T) {
	stream := "data: Hel\ndata: lo<|newline|>world\r\n\ndata: Error oops\ndata: !\ndata: [DONE]\ndata: ignored\n"

	whole := &recorder{}
	_, err := newRelay().Run(context.Background(), openString(&trackedBody{Reader: strings.NewReader(stream)}), whole)
	require.NoError(t, err)

	readers := map[string]func(io.Reader) io.Reader{
		"one byte":  iotest.OneByteReader,
		"half":      iotest.HalfReader,
		"data err":  iotest.DataErrReader,
		"unchanged": func(r io.Reader) io.Reader { return r },
	}
	for name, wrap := range readers {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			body := &trackedBody{Reader: wrap(strings.NewReader(stream))}
			_, err := newRelay().Run(context.Background(), openString(body), rec)
			require.NoError(t, err)
			assert.Equal(t, whole.events, rec.events)
		})
	}
	assert.Equal(t, []string{"Hel", "lo\nworld", "!"}, whole.deltas())
}

func TestRelay_OpenFailureEmitsNothing(t *testing.T) {
	rec := &recorder{}
	open := func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("connection refused")
	}

	res, err := newRelay().Run(context.Background(), open, rec)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Nil(t, res)
	assert.Empty(t, rec.events)
}

func TestRelay_EmitterFailureStillClosesBody(t *testing.T) {
	tests := []struct {
		name   string
		failAt int
	}{
		{name: "fails on start", failAt: 1},
		{name: "fails on first delta", failAt: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &trackedBody{Reader: strings.NewReader("data: a\ndata: b\ndata: c\n")}
			rec := &recorder{failAt: tt.failAt}

			res, err := newRelay().Run(context.Background(), openString(body), rec)
			require.NoError(t, err)
			assert.Error(t, res.Err)
			assert.True(t, body.closed.Load())

			// end is still the last event, exactly once
			last := rec.events[len(rec.events)-1]
			assert.Equal(t, relay.EventEnd, last.Type)
			ends := 0
			for _, ev := range rec.events {
				if ev.Type == relay.EventEnd {
					ends++
				}
			}
			assert.Equal(t, 1, ends)
			assert.Less(t, res.Deltas, 3)
		})
	}
}

func TestRelay_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: partial\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	open := func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	rec := &recorder{}
	start := time.Now()
	res, err := relay.New(200*time.Millisecond, zap.NewNop()).Run(context.Background(), open, rec)
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, relay.ErrIdleTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "partial", res.Text)
	assert.Equal(t, relay.EventEnd, rec.events[len(rec.events)-1].Type)
}

type slowEmitter struct {
	recorder
	delay time.Duration
}

func (s *slowEmitter) Emit(ev relay.Event) error {
	if ev.Type == relay.EventDelta {
		time.Sleep(s.delay)
	}
	return s.recorder.Emit(ev)
}

func TestRelay_SlowClientIsNotIdle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 5; i++ {
			io.WriteString(w, "data: x\n")
			w.(http.Flusher).Flush()
			time.Sleep(40 * time.Millisecond)
		}
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer server.Close()

	open := func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	emit := &slowEmitter{delay: 150 * time.Millisecond}
	res, err := relay.New(100*time.Millisecond, zap.NewNop()).Run(context.Background(), open, emit)
	require.NoError(t, err)

	assert.NoError(t, res.Err)
	assert.Equal(t, 5, res.Deltas)
	assert.Equal(t, "xxxxx", res.Text)
	assert.Equal(t, relay.EventEnd, emit.events[len(emit.events)-1].Type)
}

func TestRelay_ClientCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	open := func(ctx context.Context) (io.ReadCloser, error) {
		// Mirror an HTTP body: cancelling the request aborts the read.
		go func() {
			<-ctx.Done()
			pr.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}

	rec := &recorder{}
	done := make(chan *relay.Result)
	go func() {
		res, _ := relay.New(0, zap.NewNop()).Run(ctx, open, rec)
		done <- res
	}()

	_, err := io.WriteString(pw, "data: hi\n")
	require.NoError(t, err)
	cancel()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, "hi", res.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
