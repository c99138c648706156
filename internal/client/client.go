// Package client is the producer side of the dashboard protocol: it
// connects to the service socket, performs the shared-secret handshake and
// sends plot commands as newline-delimited JSON.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/protocol"
)

// DefaultHandshakeTimeout bounds the handshake when ctx has no deadline.
const DefaultHandshakeTimeout = 5 * time.Second

// Config configures a connection.
type Config struct {
	// Path is the service socket.
	Path string

	// Secret is presented in the hello frame.
	Secret string

	// Name identifies the producer in service logs and the audit.
	Name string
}

// Client is an authenticated producer connection. Methods are safe for
// concurrent use; messages from one Client arrive in the order written.
type Client struct {
	conn     net.Conn
	codec    *protocol.Codec
	id       uint64
	instance string
}

// Dial connects to the service at path and authenticates with secret.
func Dial(ctx context.Context, path, secret string) (*Client, error) {
	return DialConfig(ctx, Config{Path: path, Secret: secret})
}

// DialConfig connects and authenticates. A refused handshake returns a
// CodedError carrying the service's code, e.g. auth.invalid.
func DialConfig(ctx context.Context, config Config) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", config.Path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Path, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	_ = conn.SetDeadline(deadline)

	codec := protocol.NewCodec(conn)
	hello := protocol.Hello{Type: protocol.FrameHello, Secret: config.Secret, Name: config.Name}
	if err := codec.Write(hello); err != nil {
		conn.Close()
		return nil, apperrors.HandshakeFailed("failed to send hello", err)
	}

	var reply protocol.HandshakeReply
	if err := codec.Read(&reply); err != nil {
		conn.Close()
		return nil, apperrors.HandshakeFailed("no handshake reply", err)
	}

	switch reply.Type {
	case protocol.FrameWelcome:
	case protocol.FrameRejected:
		conn.Close()
		code := reply.Code
		if code == "" {
			code = apperrors.CodeAuthHandshakeFailed
		}
		return nil, apperrors.New(code, reply.Message)
	default:
		conn.Close()
		return nil, apperrors.HandshakeFailed(fmt.Sprintf("unexpected reply type %q", reply.Type), nil)
	}

	_ = conn.SetDeadline(time.Time{})
	return &Client{conn: conn, codec: codec, id: reply.ClientID, instance: reply.Instance}, nil
}

// ID returns the client id the service assigned.
func (c *Client) ID() uint64 {
	return c.id
}

// Instance returns the id of the service process.
func (c *Client) Instance() string {
	return c.instance
}

// Close ends the connection. The service releases this client's dashboard.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes a raw message.
func (c *Client) Send(msg protocol.Message) error {
	return c.codec.Write(msg)
}

// CreatePlot creates a plot or merges options into an existing one.
func (c *Client) CreatePlot(plotID string, options map[string]any) error {
	return c.Send(protocol.Message{Action: protocol.WireCreate, PlotID: id(plotID), Options: options})
}

// UpdatePlot sends data to the plot's default line.
func (c *Client) UpdatePlot(plotID string, data protocol.Value, mode protocol.Mode) error {
	return c.Send(protocol.Message{Action: protocol.WireUpdate, PlotID: id(plotID), Data: &data, Mode: mode.String()})
}

// ConfigPlot merges options into an existing plot.
func (c *Client) ConfigPlot(plotID string, options map[string]any) error {
	return c.Send(protocol.Message{Action: protocol.WireConfig, PlotID: id(plotID), Options: options})
}

// RemovePlot deletes a plot and its lines.
func (c *Client) RemovePlot(plotID string) error {
	return c.Send(protocol.Message{Action: protocol.WireRemove, PlotID: id(plotID)})
}

// CreateLine creates a line or merges options into an existing one.
func (c *Client) CreateLine(plotID, lineID string, options map[string]any) error {
	return c.Send(protocol.Message{Action: protocol.WireCreateLine, PlotID: id(plotID), LineID: id(lineID), Options: options})
}

// UpdateLine sends data to one line.
func (c *Client) UpdateLine(plotID, lineID string, data protocol.Value, mode protocol.Mode) error {
	return c.Send(protocol.Message{Action: protocol.WireUpdateLine, PlotID: id(plotID), LineID: id(lineID), Data: &data, Mode: mode.String()})
}

// ConfigLine merges options into an existing line.
func (c *Client) ConfigLine(plotID, lineID string, options map[string]any) error {
	return c.Send(protocol.Message{Action: protocol.WireConfigLine, PlotID: id(plotID), LineID: id(lineID), Options: options})
}

// RemoveLine deletes one line.
func (c *Client) RemoveLine(plotID, lineID string) error {
	return c.Send(protocol.Message{Action: protocol.WireRemoveLine, PlotID: id(plotID), LineID: id(lineID)})
}

func id(s string) *protocol.ID {
	v := protocol.ID(s)
	return &v
}
