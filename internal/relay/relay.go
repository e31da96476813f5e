// Package relay pipes an upstream event stream to a client, re-framing
// each upstream data line as a text delta inside a start/end envelope.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"go.uber.org/zap"
)

// ResponseID identifies the single text part of every relayed response.
const ResponseID = "response-text"

const (
	dataPrefix       = "data: "
	doneSentinel     = "[DONE]"
	errorMarker      = "Error"
	newlinePlacehold = "<|newline|>"
)

var ErrIdleTimeout = errors.New("upstream idle timeout")

type EventType string

const (
	EventStart EventType = "text-start"
	EventDelta EventType = "text-delta"
	EventEnd   EventType = "text-end"
)

type Event struct {
	Type  EventType `json:"type"`
	ID    string    `json:"id"`
	Delta string    `json:"delta,omitempty"`
}

// Emitter delivers events to the client transport.
type Emitter interface {
	Emit(Event) error
}

// Opener opens the upstream stream. The context passed in is cancelled
// when the relay gives up on the stream.
type Opener func(ctx context.Context) (io.ReadCloser, error)

type Result struct {
	Text    string
	Deltas  int
	Dropped int
	// Err is set when the stream stopped early: idle timeout, read failure,
	// client disconnect or an emitter failure.
	Err error
}

type Relay struct {
	idleTimeout time.Duration
	log         *zap.Logger
}

// New returns a relay. A zero idleTimeout disables the idle bound.
func New(idleTimeout time.Duration, log *zap.Logger) *Relay {
	return &Relay{
		idleTimeout: idleTimeout,
		log:         log.Named("relay"),
	}
}

// Run opens the upstream and pumps it into emit until the stream ends.
// An open failure is returned as an error and nothing is emitted.
// Otherwise exactly one start and one end event bracket the deltas, and
// the upstream body is closed before Run returns.
func (r *Relay) Run(ctx context.Context, open Opener, emit Emitter) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := open(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUpstream) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: no response body", domain.ErrUpstream)
	}

	src := newIdleReader(body, r.idleTimeout, cancel)
	defer src.Close()

	res := &Result{}
	var text strings.Builder

	defer func() {
		if err := emit.Emit(Event{Type: EventEnd, ID: ResponseID}); err != nil && res.Err == nil {
			res.Err = err
		}
		res.Text = text.String()
	}()

	if err := emit.Emit(Event{Type: EventStart, ID: ResponseID}); err != nil {
		res.Err = err
		return res, nil
	}

	br := bufio.NewReader(src)
	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			stop, err := r.handleLine(line, emit, res, &text)
			if err != nil {
				res.Err = err
				return res, nil
			}
			if stop {
				return res, nil
			}
		}
		if readErr != nil {
			switch {
			case errors.Is(readErr, io.EOF):
			case src.TimedOut():
				res.Err = ErrIdleTimeout
			case ctx.Err() != nil:
				res.Err = ctx.Err()
			default:
				res.Err = readErr
			}
			if res.Err != nil {
				r.log.Warn("upstream stream ended early", zap.Error(res.Err))
			}
			return res, nil
		}
	}
}

// handleLine processes one raw line. stop reports the [DONE] sentinel.
func (r *Relay) handleLine(line string, emit Emitter, res *Result, text *strings.Builder) (stop bool, err error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok || payload == "" {
		return false, nil
	}
	if payload == doneSentinel {
		return true, nil
	}
	if strings.HasPrefix(payload, errorMarker) {
		res.Dropped++
		r.log.Warn("dropped upstream error line", zap.String("payload", payload))
		return false, nil
	}

	delta := strings.ReplaceAll(payload, newlinePlacehold, "\n")
	if err := emit.Emit(Event{Type: EventDelta, ID: ResponseID, Delta: delta}); err != nil {
		return false, err
	}
	res.Deltas++
	text.WriteString(delta)
	return false, nil
}

// idleReader bounds the wait for each Read. The timer only runs while a
// Read is in flight, so time spent emitting to a slow client is not
// counted. When it fires the upstream request is cancelled and the body
// closed, which unblocks the pending Read.
type idleReader struct {
	body      io.ReadCloser
	timeout   time.Duration
	timer     *time.Timer
	timedOut  atomic.Bool
	closeOnce sync.Once
}

func newIdleReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{body: body, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, func() {
			ir.timedOut.Store(true)
			cancel()
			ir.closeBody()
		})
		ir.timer.Stop()
	}
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	if ir.timedOut.Load() {
		return 0, ErrIdleTimeout
	}
	if ir.timer != nil {
		ir.timer.Reset(ir.timeout)
	}
	n, err := ir.body.Read(p)
	if ir.timer != nil {
		ir.timer.Stop()
	}
	if err != nil && ir.timedOut.Load() {
		return n, ErrIdleTimeout
	}
	return n, err
}

func (ir *idleReader) TimedOut() bool {
	return ir.timedOut.Load()
}

func (ir *idleReader) Close() error {
	if ir.timer != nil {
		ir.timer.Stop()
	}
	ir.closeBody()
	return nil
}

func (ir *idleReader) closeBody() {
	ir.closeOnce.Do(func() {
		_ = ir.body.Close()
	})
}
