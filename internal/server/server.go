package server

import (
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/livedash/host/internal/render"
)

// channelBufferSize is the buffer size for the broadcast channel and
// per-viewer send channels. Messages for a viewer whose buffer is full
// are dropped.
const channelBufferSize = 256

// Inbound viewer requests are throttled per connection.
const (
	inboundRate  = rate.Limit(10)
	inboundBurst = 5
)

// StatusFunc builds the payload served at /status.
type StatusFunc func() any

// storedFrame is the latest encoded frame of one client.
type storedFrame struct {
	png     []byte
	version uint64
	drawnAt time.Time
	width   int
	height  int
}

func (f storedFrame) payload(clientID uint64) FramePayload {
	return FramePayload{
		ClientID: clientID,
		Version:  f.version,
		DrawnAt:  f.drawnAt.UnixMilli(),
		Width:    f.width,
		Height:   f.height,
		URL:      FrameURL(clientID),
	}
}

// Server serves rendered dashboards to browsers. It implements
// render.Surface so the render loop can present frames to it directly.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	logger   *log.Logger

	// mu guards clients, stopped, frames, status and boundAddr.
	mu        sync.RWMutex
	clients   map[*Client]bool
	stopped   bool
	frames    map[uint64]storedFrame
	status    StatusFunc
	boundAddr string

	// broadcast receives messages to send to all viewers.
	broadcast chan Message

	httpServer *http.Server
}

var _ render.Surface = (*Server)(nil)

// Client is one connected viewer.
type Client struct {
	conn *websocket.Conn

	// send is drained by writePump.
	send chan Message

	// done is closed to signal the viewer should shut down.
	done     chan struct{}
	sendOnce sync.Once

	server *Server

	// inputLimiter throttles inbound viewer requests.
	inputLimiter *rate.Limiter
}

// NewServer creates a viewer that will listen on addr. If logger is nil,
// logs are discarded.
func NewServer(addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		addr:      addr,
		logger:    logger,
		clients:   make(map[*Client]bool),
		frames:    make(map[uint64]storedFrame),
		broadcast: make(chan Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			// The viewer only listens on loopback.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetStatusFunc sets the provider for the /status endpoint. Without one
// the endpoint answers 503.
func (s *Server) SetStatusFunc(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// ClientCount returns the number of connected viewers.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Present stores the frame and announces it to viewers. The frame's PNG
// bytes are retained and must not be modified afterwards.
func (s *Server) Present(frame render.Frame) error {
	var width, height int
	if frame.Image != nil {
		b := frame.Image.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.frames[frame.ClientID] = storedFrame{
		png:     frame.PNG,
		version: frame.Version,
		drawnAt: frame.DrawnAt,
		width:   width,
		height:  height,
	}
	s.mu.Unlock()

	s.Broadcast(NewFrameUpdatedMessage(frame.ClientID, frame.Version, frame.DrawnAt, width, height))
	return nil
}

// Release forgets the client's frame and tells viewers it is gone.
func (s *Server) Release(clientID uint64) error {
	s.mu.Lock()
	_, ok := s.frames[clientID]
	delete(s.frames, clientID)
	s.mu.Unlock()

	if ok {
		s.Broadcast(NewClientRemovedMessage(clientID))
	}
	return nil
}

// Close stops the viewer.
func (s *Server) Close() error {
	return s.Stop()
}

// Frame returns the latest PNG for a client.
func (s *Server) Frame(clientID uint64) ([]byte, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[clientID]
	if !ok {
		return nil, 0, false
	}
	return f.png, f.version, true
}

// Frames lists the latest frame of every client in ascending client order.
func (s *Server) Frames() []FramePayload {
	s.mu.RLock()
	out := make([]FramePayload, 0, len(s.frames))
	for id, f := range s.frames {
		out = append(out, f.payload(id))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Broadcast queues a message for every viewer. It never blocks; when the
// broadcast channel is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	// Holding RLock through the send keeps Stop from closing the channel
	// underneath us.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		s.logger.Printf("broadcast channel full, dropping %s", msg.Type)
	}
}

// runBroadcaster fans broadcast messages out to every viewer until the
// broadcast channel is closed.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			select {
			case <-client.done:
			case client.send <- msg:
			default:
				s.logger.Printf("viewer send buffer full, dropping %s", msg.Type)
			}
		}
		s.mu.RUnlock()
	}
}
