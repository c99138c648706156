package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/livedash/host/internal/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Viewers only send small control messages.
	maxInboundMessage = 4 * 1024
)

// closeSend signals the viewer to shut down exactly once.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// trySend queues a message for this viewer without blocking.
func (c *Client) trySend(msg Message) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump sends queued messages and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(msg)
			if err != nil {
				c.server.logger.Printf("failed to marshal %s: %v", msg.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Printf("write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles viewer requests and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		c.closeSend()
		c.server.logger.Printf("viewer disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(maxInboundMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.server.logger.Printf("read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.inputLimiter.Allow() {
			c.trySend(NewErrorMessage(apperrors.CodeViewerRateLimited, "too many requests"))
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.trySend(NewErrorMessage(apperrors.CodeProtocolInvalidMessage, "malformed message"))
			continue
		}

		switch msg.Type {
		case MessageTypeFramesRequest:
			c.sendFrames()
		default:
			c.trySend(NewErrorMessage(apperrors.CodeProtocolUnknownAction, "unknown message type: "+string(msg.Type)))
		}
	}
}

// sendFrames replays the current frame of every client to this viewer.
func (c *Client) sendFrames() {
	for _, f := range c.server.Frames() {
		if !c.trySend(Message{Type: MessageTypeFrameUpdated, Payload: f}) {
			c.server.logger.Printf("viewer send buffer full during replay")
			return
		}
	}
}
