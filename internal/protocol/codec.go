package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// Handshake frame types.
const (
	FrameHello    = "hello"
	FrameWelcome  = "welcome"
	FrameRejected = "rejected"
)

// Hello is the first frame a producer sends.
type Hello struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
	Name   string `json:"name,omitempty"`
}

// HandshakeReply answers a Hello. Welcome frames carry the client id and the
// server instance id; rejected frames carry a stable error code.
type HandshakeReply struct {
	Type     string `json:"type"`
	ClientID uint64 `json:"client_id,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MaxFrameSize bounds a single framed record.
const MaxFrameSize = 16 << 20

// Codec reads and writes newline-delimited JSON frames. Reads must come
// from a single goroutine; writes are serialized.
type Codec struct {
	r   *bufio.Reader
	w   io.Writer
	wmu sync.Mutex
}

// NewCodec wraps a connection.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		r: bufio.NewReaderSize(rw, 64*1024),
		w: rw,
	}
}

// ReadFrame returns the next non-empty frame without its newline.
// It returns io.EOF at a clean end of stream and io.ErrUnexpectedEOF when
// the stream ends inside a frame that was never newline-terminated.
func (c *Codec) ReadFrame() ([]byte, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

// readLine returns one line with its "\n" or "\r\n" stripped. A line cut
// off by the end of stream is returned with the read error.
func (c *Codec) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > MaxFrameSize+2 {
			return nil, ErrFrameTooLarge
		}
		switch err {
		case nil:
			buf = bytes.TrimSuffix(buf[:len(buf)-1], []byte{'\r'})
			if len(buf) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			return buf, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return buf, err
		}
	}
}

// Read decodes the next frame into v.
func (c *Codec) Read(v any) error {
	frame, err := c.ReadFrame()
	if err != nil {
		return err
	}
	return json.Unmarshal(frame, v)
}

// Write encodes v as one frame.
func (c *Codec) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")
