package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/dom/faq-chat-web/internal/ratelimit"
	"github.com/dom/faq-chat-web/internal/relay"
	"github.com/dom/faq-chat-web/internal/service"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	maxQueuedTurns = 4

	// Shares the bucket of the POST /chat route limit.
	turnLimitScope = "chat"
)

// TurnRunner runs one chat turn, emitting relay events.
type TurnRunner interface {
	Turn(ctx context.Context, caller domain.Caller, req service.TurnRequest, emit relay.Emitter) (*relay.Result, error)
}

// Client is one chat connection. Turns on a connection run one at a time
// in arrival order, each drawing on the caller's chat rate limit. A nil
// limiter leaves turns unlimited.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	turns  chan []byte
	caller domain.Caller
	runner  TurnRunner
	limiter ratelimit.Limiter
	log     *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, caller domain.Caller, runner TurnRunner, limiter ratelimit.Limiter, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		turns:  make(chan []byte, maxQueuedTurns),
		caller:  caller,
		runner:  runner,
		limiter: limiter,
		log:     log.Named("ws").With(zap.String("user_id", caller.UserID.String())),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the pumps.
func (c *Client) Start() {
	go c.WritePump()
	go c.runTurns()
	go c.ReadPump()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		select {
		case c.turns <- data:
		default:
			c.sendError(fmt.Errorf("too many pending messages"))
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) runTurns() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.turns:
			c.handleTurn(data)
		}
	}
}

func (c *Client) handleTurn(data []byte) {
	var req service.TurnRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(fmt.Errorf("invalid message payload"))
		return
	}

	if !c.allowTurn() {
		c.sendError(domain.ErrRateLimited)
		return
	}

	result, err := c.runner.Turn(c.ctx, c.caller, req, c)
	if err != nil {
		c.sendError(err)
		return
	}
	if result.Err != nil {
		c.log.Info("stream finished early", zap.Int("deltas", result.Deltas), zap.Error(result.Err))
	}
}

// allowTurn fails open when the limiter is unavailable.
func (c *Client) allowTurn() bool {
	if c.limiter == nil {
		return true
	}
	key := turnLimitScope + ":user:" + c.caller.UserID.String()
	allowed, err := c.limiter.Allow(c.ctx, key)
	if err != nil {
		c.log.Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	return allowed
}

// Emit queues a relay event as a text frame.
func (c *Client) Emit(ev relay.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) sendError(err error) {
	data, _ := json.Marshal(newErrorFrame(err))
	_ = c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Close cancels any running turn and makes the write pump send a close
// frame. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(c.cancel)
}
