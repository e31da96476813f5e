package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// UIMessageStreamHeader marks the response as a UI message stream for
// browser chat clients.
const UIMessageStreamHeader = "X-Vercel-Ai-Ui-Message-Stream"


// SSEEmitter writes events as server-sent event frames. Headers go out
// with the first event so a handler can still answer with a plain error
// status if the upstream never opens. The end event is followed by a
// data: [DONE] terminator.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewSSEEmitter(w http.ResponseWriter) (*SSEEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEEmitter{w: w, flusher: flusher}, nil
}

func (e *SSEEmitter) Emit(ev Event) error {
	if !e.started {
		e.w.Header().Set("Content-Type", "text/event-stream")
		e.w.Header().Set("Cache-Control", "no-cache")
		e.w.Header().Set("Connection", "keep-alive")
		e.w.Header().Set("X-Accel-Buffering", "no")
		e.w.Header().Set(UIMessageStreamHeader, "v1")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if ev.Type == EventEnd {
		if _, err := fmt.Fprintf(e.w, "data: %s\n\n", doneSentinel); err != nil {
			return err
		}
	}
	e.flusher.Flush()
	return nil
}

// Started reports whether the response headers have been written.
func (e *SSEEmitter) Started() bool {
	return e.started
}
