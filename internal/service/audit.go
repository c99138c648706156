package service

import (
	"io"
	"log"
	"time"

	"github.com/livedash/host/internal/ipc"
	"github.com/livedash/host/internal/storage"
)

// AuditObserver records connection lifecycle in the audit store. Write
// failures are logged and never affect the connection.
type AuditObserver struct {
	store         *storage.SQLiteStore
	instance      string
	maxRejections int
	logger        *log.Logger
	now           func() time.Time
}

var _ ipc.Observer = (*AuditObserver)(nil)

// NewAuditObserver creates an observer writing to store. maxRejections
// caps the rejection table; 0 keeps every record.
func NewAuditObserver(store *storage.SQLiteStore, instance string, maxRejections int, logger *log.Logger) *AuditObserver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &AuditObserver{
		store:         store,
		instance:      instance,
		maxRejections: maxRejections,
		logger:        logger,
		now:           time.Now,
	}
}

// Connected implements ipc.Observer.
func (a *AuditObserver) Connected(info ipc.ConnInfo) {
	pid, uid := peerFields(info.Peer)
	rec := &storage.ConnectionRecord{
		Instance:    a.instance,
		ClientID:    info.ClientID,
		Name:        info.Name,
		PeerPID:     pid,
		PeerUID:     uid,
		ConnectedAt: info.ConnectedAt,
	}
	if err := a.store.SaveConnection(rec); err != nil {
		a.logger.Printf("audit: connect write failed for client %d: %v", info.ClientID, err)
	}
}

// Disconnected implements ipc.Observer.
func (a *AuditObserver) Disconnected(info ipc.ConnInfo, messages uint64) {
	if err := a.store.CloseConnection(a.instance, info.ClientID, a.now(), messages); err != nil {
		a.logger.Printf("audit: disconnect write failed for client %d: %v", info.ClientID, err)
	}
}

// Rejected implements ipc.Observer.
func (a *AuditObserver) Rejected(info ipc.ConnInfo, code, reason string) {
	pid, uid := peerFields(info.Peer)
	rec := &storage.RejectionRecord{
		Instance: a.instance,
		Code:     code,
		Reason:   reason,
		PeerPID:  pid,
		PeerUID:  uid,
		At:       info.ConnectedAt,
	}
	if err := a.store.SaveAndPruneRejection(rec, a.maxRejections); err != nil {
		a.logger.Printf("audit: rejection write failed: %v", err)
	}
}

func peerFields(p ipc.PeerCred) (pid, uid *int64) {
	if !p.Known {
		return nil, nil
	}
	pv, uv := int64(p.PID), int64(p.UID)
	return &pv, &uv
}
