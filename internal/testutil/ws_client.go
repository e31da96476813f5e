package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	gorillaWS "github.com/gorilla/websocket"
)

// WSFrame is any server frame: a relay event or an error frame
type WSFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`
	Error string `json:"error,omitempty"`
}

// WSClient is a test WebSocket client
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *WSFrame
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient creates a new WebSocket test client
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *WSFrame, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// readPump reads messages from the WebSocket connection
func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			}
			return
		}

		var frame WSFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.errors <- err
			continue
		}

		select {
		case c.messages <- &frame:
		case <-c.done:
			return
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

// SendTurn sends a chat turn request frame
func (c *WSClient) SendTurn(body interface{}) {
	c.t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(body); err != nil {
		c.t.Fatalf("failed to send turn: %v", err)
	}
}

// ExpectFrame waits for the next frame
func (c *WSClient) ExpectFrame(timeout time.Duration) *WSFrame {
	c.t.Helper()

	select {
	case frame := <-c.messages:
		if frame == nil {
			c.t.Fatalf("connection closed while waiting for a frame")
		}
		return frame
	case err := <-c.errors:
		c.t.Fatalf("error while waiting for a frame: %v", err)
	case <-time.After(timeout):
		c.t.Fatalf("timeout waiting for a frame")
	}
	return nil
}

// CollectTurn reads frames until a text-end or error frame arrives
func (c *WSClient) CollectTurn(timeout time.Duration) []*WSFrame {
	c.t.Helper()

	var frames []*WSFrame
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timeout collecting turn after %d frames", len(frames))
		}
		frame := c.ExpectFrame(remaining)
		frames = append(frames, frame)
		if frame.Type == "text-end" || frame.Type == "error" {
			return frames
		}
	}
}
