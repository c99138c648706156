package server

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// StartAsync starts the viewer in a goroutine. The returned channel
// receives nil once the listener is bound, or the bind error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.createMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go s.runBroadcaster()

	go func() {
		s.logger.Printf("listening on http://%s", ln.Addr())
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	return errCh
}

// Stop closes every viewer connection and the HTTP server. It is safe to
// call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// writePump sends the close frame when it sees done.
	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)
	s.frames = make(map[uint64]storedFrame)

	close(s.broadcast)
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Close()
	}
	return nil
}
