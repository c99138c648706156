package ipc

import (
	"encoding/json"
	"errors"
	"io"
	"log"

	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/protocol"
)

// handler reads one authenticated connection. It never touches dashboard
// state; everything it learns goes through the sink.
type handler struct {
	clientID uint64
	codec    *protocol.Codec
	sink     Sink
	logger   *log.Logger
	debug    bool
}

// run reads frames until end of stream or a read error, then enqueues the
// client's removal. It returns the number of frames read.
func (h *handler) run() (messages uint64) {
	defer h.sink.PushRemove(h.clientID)

	for {
		frame, err := h.codec.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				h.logger.Printf("client %d disconnected after %d messages", h.clientID, messages)
			default:
				h.logger.Printf("client %d read error after %d messages: %v", h.clientID, messages, err)
			}
			return messages
		}
		messages++

		var msg protocol.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			h.reject(apperrors.Wrap(apperrors.CodeProtocolInvalidMessage, "malformed message", err))
			continue
		}
		cmd, err := protocol.ParseCommand(msg)
		if err != nil {
			h.reject(err)
			continue
		}
		if !h.sink.PushCommand(h.clientID, cmd, nil) && h.debug {
			h.logger.Printf("client %d: queue full, dropped %s", h.clientID, cmd.Action)
		}
	}
}

// reject enqueues a rejected item so the render loop counts it in order.
func (h *handler) reject(err error) {
	if h.debug {
		h.logger.Printf("client %d: rejected message: %v", h.clientID, err)
	}
	h.sink.PushCommand(h.clientID, protocol.Command{}, err)
}
