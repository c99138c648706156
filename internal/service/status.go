package service

import (
	"time"

	"github.com/livedash/host/internal/ipc"
	"github.com/livedash/host/internal/queue"
	"github.com/livedash/host/internal/storage"
)

// StatusResponse is served at the viewer's /status endpoint and printed by
// `livedash status`.
type StatusResponse struct {
	Instance      string                `json:"instance"`
	SocketPath    string                `json:"socket_path"`
	ViewerAddress string                `json:"viewer_address,omitempty"`
	FrameDir      string                `json:"frame_dir,omitempty"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	ViewerClients int                   `json:"viewer_clients"`
	Listener      ipc.Stats             `json:"listener"`
	Queue         queue.Stats           `json:"queue"`
	Loop          LoopStats             `json:"loop"`
	Audit         *storage.AuditSummary `json:"audit,omitempty"`
}

// Status returns a snapshot of every component's counters.
func (s *Service) Status() StatusResponse {
	resp := StatusResponse{
		Instance:   s.instance,
		SocketPath: s.cfg.SocketPath,
		Listener:   s.listener.Stats(),
		Queue:      s.queue.Stats(),
		Loop:       s.loop.Stats(),
	}

	s.mu.Lock()
	if !s.started.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.started).Seconds())
	}
	s.mu.Unlock()

	if s.viewer != nil {
		resp.ViewerAddress = s.viewer.Addr()
		resp.ViewerClients = s.viewer.ClientCount()
	}
	if s.files != nil {
		resp.FrameDir = s.cfg.OutputDir
	}
	if sum, err := s.audit.Summary(); err == nil {
		resp.Audit = &sum
	} else {
		s.logger.Printf("status: audit summary unavailable: %v", err)
	}
	return resp
}
