// Package server provides the live dashboard viewer: a loopback HTTP server
// that serves the latest rendered frame per client and pushes frame
// notifications to browsers over WebSocket.
package server

import (
	"fmt"
	"time"
)

// MessageType identifies the kind of message sent over the viewer WebSocket.
type MessageType string

const (
	// MessageTypeFrameUpdated announces a newly rendered dashboard frame.
	// Payload: FramePayload
	MessageTypeFrameUpdated MessageType = "frame.updated"

	// MessageTypeClientRemoved announces that a producer disconnected and
	// its dashboard was released.
	// Payload: ClientRemovedPayload
	MessageTypeClientRemoved MessageType = "client.removed"

	// MessageTypeFramesRequest is sent by a viewer to ask for the current
	// frame of every client.
	// Payload: none
	MessageTypeFramesRequest MessageType = "frames.request"

	// MessageTypeError reports a problem with a viewer request.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"
)

// Message is the envelope for all viewer WebSocket traffic.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// FramePayload describes one rendered frame.
type FramePayload struct {
	ClientID uint64 `json:"client_id"`
	Version  uint64 `json:"version"`
	DrawnAt  int64  `json:"drawn_at"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	URL      string `json:"url"`
}

// ClientRemovedPayload identifies a released dashboard.
type ClientRemovedPayload struct {
	ClientID uint64 `json:"client_id"`
}

// ErrorPayload carries a stable error code and a description.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FrameURL returns the viewer path of a client's latest frame.
func FrameURL(clientID uint64) string {
	return fmt.Sprintf("/clients/%d.png", clientID)
}

// NewFrameUpdatedMessage creates a frame.updated message.
func NewFrameUpdatedMessage(clientID, version uint64, drawnAt time.Time, width, height int) Message {
	return Message{
		Type: MessageTypeFrameUpdated,
		Payload: FramePayload{
			ClientID: clientID,
			Version:  version,
			DrawnAt:  drawnAt.UnixMilli(),
			Width:    width,
			Height:   height,
			URL:      FrameURL(clientID),
		},
	}
}

// NewClientRemovedMessage creates a client.removed message.
func NewClientRemovedMessage(clientID uint64) Message {
	return Message{
		Type:    MessageTypeClientRemoved,
		Payload: ClientRemovedPayload{ClientID: clientID},
	}
}

// NewErrorMessage creates an error message to send to a viewer.
func NewErrorMessage(code, message string) Message {
	return Message{
		Type:    MessageTypeError,
		Payload: ErrorPayload{Code: code, Message: message},
	}
}
