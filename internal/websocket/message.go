package websocket

import (
	"errors"

	"github.com/dom/faq-chat-web/internal/domain"
)

// Client frames are chat turn requests with the same body as POST /chat.
// Server frames are relay events or an ErrorFrame.

const FrameTypeError = "error"

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newErrorFrame(err error) ErrorFrame {
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrUpstream):
		msg = "Failed to get response from backend"
	case errors.Is(err, domain.ErrNotFound):
		msg = "Chat not found"
	case errors.Is(err, domain.ErrConfiguration):
		msg = "Server configuration error"
	case errors.Is(err, domain.ErrRateLimited):
		msg = "Too many requests, please try again later"
	}
	return ErrorFrame{Type: FrameTypeError, Error: msg}
}
