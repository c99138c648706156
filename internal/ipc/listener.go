// Package ipc serves the dashboard's producer socket. It owns the Unix
// socket lifecycle, the shared-secret handshake and one handler goroutine
// per authenticated connection.
package ipc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/protocol"
)

// DefaultHandshakeTimeout bounds how long a new connection may take to
// send its hello frame.
const DefaultHandshakeTimeout = 5 * time.Second

const maxAcceptBackoff = time.Second

// Sink receives lifecycle events and commands. *queue.Queue implements it.
type Sink interface {
	PushRegister(clientID uint64)
	PushRemove(clientID uint64)
	PushCommand(clientID uint64, cmd protocol.Command, err error) bool
}

// Authenticator checks the secret presented in a hello frame.
type Authenticator interface {
	Verify(secret string) error
}

// PeerCred holds the credentials of the process on the other end of a
// connection, when the platform reports them.
type PeerCred struct {
	PID   int32
	UID   uint32
	GID   uint32
	Known bool
}

// ConnInfo describes one connection for observers.
type ConnInfo struct {
	ClientID    uint64
	Name        string
	Peer        PeerCred
	ConnectedAt time.Time
}

// Observer is notified about connection lifecycle. Methods are called from
// connection goroutines and must not block for long.
type Observer interface {
	Connected(info ConnInfo)
	Disconnected(info ConnInfo, messages uint64)
	Rejected(info ConnInfo, code, reason string)
}

// Config configures a Listener.
type Config struct {
	// Path is the filesystem location of the Unix socket.
	Path string

	// Sink receives register, remove and command items. Required.
	Sink Sink

	// Auth verifies handshake secrets. Required.
	Auth Authenticator

	// Instance identifies this server process in welcome frames.
	Instance string

	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Observer is optional.
	Observer Observer

	// Logger emits connection events. If nil, logs are discarded.
	Logger *log.Logger

	// Debug logs every disconnect and rejected message.
	Debug bool
}

// Stats is a snapshot of listener counters.
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Authenticated uint64 `json:"authenticated"`
	Rejected      uint64 `json:"rejected"`
	Active        int64  `json:"active"`
}

// Listener accepts producer connections on a Unix socket.
type Listener struct {
	config Config
	logger *log.Logger

	// mu guards start/stop operations and conns.
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	nextID        atomic.Uint64
	accepted      atomic.Uint64
	authenticated atomic.Uint64
	rejected      atomic.Uint64
	active        atomic.Int64
}

// NewListener creates a listener for the given config.
func NewListener(config Config) *Listener {
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Listener{
		config: config,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.config.Path
}

// Start begins listening on the configured Unix socket.
// It removes stale socket files, but fails if another process is active.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return fmt.Errorf("dashboard socket already started")
	}
	if l.config.Path == "" {
		return apperrors.New(apperrors.CodeIPCSocketInvalid, "socket path is empty")
	}
	if err := validateSocketPath(l.config.Path); err != nil {
		return err
	}
	if l.config.Sink == nil || l.config.Auth == nil {
		return fmt.Errorf("dashboard socket requires a sink and an authenticator")
	}

	if err := l.prepareSocketDir(); err != nil {
		return err
	}
	if err := l.ensureSocketAvailable(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", l.config.Path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIPCListenFailed, "failed to listen on dashboard socket", err)
	}
	if err := os.Chmod(l.config.Path, 0600); err != nil {
		listener.Close()
		_ = os.Remove(l.config.Path)
		return apperrors.Wrap(apperrors.CodeIPCListenFailed, "failed to set socket permissions", err)
	}

	l.listener = listener
	l.done = make(chan struct{})
	l.wg.Add(1)
	go l.acceptLoop(listener, l.done)

	l.logger.Printf("listening on %s", l.config.Path)
	return nil
}

// Stop closes the socket and every open connection, removes the socket
// file, and waits for connection goroutines to finish.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.listener == nil {
		l.mu.Unlock()
		return nil
	}
	close(l.done)
	_ = l.listener.Close()
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.listener = nil
	l.mu.Unlock()

	l.wg.Wait()

	if err := os.Remove(l.config.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove dashboard socket: %w", err)
	}
	return nil
}

// Stats returns current counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Accepted:      l.accepted.Load(),
		Authenticated: l.authenticated.Load(),
		Rejected:      l.rejected.Load(),
		Active:        l.active.Load(),
	}
}

// acceptLoop accepts until the listener is closed. Other accept errors
// (for example running out of file descriptors) are logged and retried
// with a growing backoff.
func (l *Listener) acceptLoop(ln net.Listener, done <-chan struct{}) {
	defer l.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.logger.Printf("accept loop stopped: %v", err)
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			l.logger.Printf("%v; retrying in %v", apperrors.Wrap(apperrors.CodeIPCAcceptFailed, "accept failed", err), backoff)
			select {
			case <-done:
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		l.accepted.Add(1)

		if !l.track(conn) {
			_ = conn.Close()
			return
		}
		l.wg.Add(1)
		go l.serveConn(conn)
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// serveConn runs the handshake and, on success, the connection handler.
func (l *Listener) serveConn(conn net.Conn) {
	defer l.wg.Done()
	defer l.untrack(conn)
	defer conn.Close()

	info := ConnInfo{Peer: peerCredentials(conn), ConnectedAt: time.Now()}
	codec := protocol.NewCodec(conn)

	_ = conn.SetDeadline(time.Now().Add(l.config.HandshakeTimeout))
	hello, err := l.handshake(codec)
	if err != nil {
		code, msg := apperrors.ToCodeAndMessage(err)
		_ = codec.Write(protocol.HandshakeReply{Type: protocol.FrameRejected, Code: code, Message: msg})
		l.rejected.Add(1)
		l.logger.Printf("rejected connection (pid %d): %v", info.Peer.PID, err)
		if l.config.Observer != nil {
			l.config.Observer.Rejected(info, code, msg)
		}
		return
	}
	_ = conn.SetDeadline(time.Time{})

	id := l.nextID.Add(1)
	info.ClientID = id
	info.Name = hello.Name
	welcome := protocol.HandshakeReply{Type: protocol.FrameWelcome, ClientID: id, Instance: l.config.Instance}
	if err := codec.Write(welcome); err != nil {
		l.logger.Printf("client %d: failed to send welcome: %v", id, err)
		return
	}

	l.authenticated.Add(1)
	l.active.Add(1)
	defer l.active.Add(-1)

	l.config.Sink.PushRegister(id)
	if hello.Name != "" {
		l.logger.Printf("client %d connected (%s)", id, hello.Name)
	} else {
		l.logger.Printf("client %d connected", id)
	}
	if l.config.Observer != nil {
		l.config.Observer.Connected(info)
	}

	h := &handler{
		clientID: id,
		codec:    codec,
		sink:     l.config.Sink,
		logger:   l.logger,
		debug:    l.config.Debug,
	}
	messages := h.run()

	if l.config.Observer != nil {
		l.config.Observer.Disconnected(info, messages)
	}
}

func (l *Listener) handshake(codec *protocol.Codec) (protocol.Hello, error) {
	var hello protocol.Hello
	if err := codec.Read(&hello); err != nil {
		return hello, apperrors.HandshakeFailed("could not read hello frame", err)
	}
	if hello.Type != protocol.FrameHello {
		return hello, apperrors.HandshakeFailed(fmt.Sprintf("unexpected frame type %q", hello.Type), nil)
	}
	if err := l.config.Auth.Verify(hello.Secret); err != nil {
		return hello, err
	}
	return hello, nil
}

func (l *Listener) prepareSocketDir() error {
	dir := filepath.Dir(l.config.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return apperrors.Wrap(apperrors.CodeIPCListenFailed, "failed to create socket directory", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return apperrors.Wrap(apperrors.CodeIPCListenFailed, "failed to set socket directory permissions", err)
	}
	return nil
}

func (l *Listener) ensureSocketAvailable() error {
	path := l.config.Path
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeIPCSocketInvalid, "failed to stat socket", err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return apperrors.New(apperrors.CodeIPCSocketInvalid, fmt.Sprintf("socket path is not a socket: %s", path))
	}

	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return apperrors.SocketInUse(path)
	}
	if errors.Is(err, os.ErrPermission) {
		return apperrors.Wrap(apperrors.CodeIPCSocketInvalid, "permission denied accessing socket", err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.CodeIPCSocketInvalid, "failed to remove stale socket", err)
	}
	return nil
}
