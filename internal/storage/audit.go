package storage

// audit.go contains SQLiteStore methods for the connection audit.

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	apperrors "github.com/livedash/host/internal/errors"
)

// ConnectionRecord is one authenticated producer connection.
// DisconnectedAt is nil while the connection is open.
type ConnectionRecord struct {
	ID             int64
	Instance       string
	ClientID       uint64
	Name           string
	PeerPID        *int64
	PeerUID        *int64
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	Messages       uint64
}

// RejectionRecord is one refused handshake.
type RejectionRecord struct {
	ID       int64
	Instance string
	Code     string
	Reason   string
	PeerPID  *int64
	PeerUID  *int64
	At       time.Time
}

// SaveConnection inserts a connection record and sets its ID.
func (s *SQLiteStore) SaveConnection(rec *ConnectionRecord) error {
	if rec == nil {
		return fmt.Errorf("connection record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO connections (instance, client_id, name, peer_pid, peer_uid, connected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query,
		rec.Instance,
		int64(rec.ClientID),
		rec.Name,
		nullInt(rec.PeerPID),
		nullInt(rec.PeerUID),
		rec.ConnectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "insert connection", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	log.Printf("storage: recorded connect client=%d instance=%s", rec.ClientID, rec.Instance)
	return nil
}

// CloseConnection marks a connection as ended with its message count.
func (s *SQLiteStore) CloseConnection(instance string, clientID uint64, at time.Time, messages uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		UPDATE connections SET disconnected_at = ?, messages = ?
		WHERE instance = ? AND client_id = ? AND disconnected_at IS NULL
	`
	res, err := s.db.Exec(query, at.UTC().Format(time.RFC3339Nano), int64(messages), instance, int64(clientID))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "close connection", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "close connection", err)
	}
	if n == 0 {
		return ErrConnectionNotFound
	}

	log.Printf("storage: recorded disconnect client=%d messages=%d", clientID, messages)
	return nil
}

// SaveAndPruneRejection inserts a rejection and prunes the oldest beyond
// maxRows in a single transaction. maxRows <= 0 disables pruning.
func (s *SQLiteStore) SaveAndPruneRejection(rec *RejectionRecord, maxRows int) error {
	if rec == nil {
		return fmt.Errorf("rejection record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "begin transaction", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO rejections (instance, code, reason, peer_pid, peer_uid, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := tx.Exec(insertQuery,
		rec.Instance,
		rec.Code,
		rec.Reason,
		nullInt(rec.PeerPID),
		nullInt(rec.PeerUID),
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "insert rejection", err)
	}

	if maxRows > 0 {
		const pruneQuery = `
			DELETE FROM rejections
			WHERE id NOT IN (SELECT id FROM rejections ORDER BY id DESC LIMIT ?)
		`
		if _, err := tx.Exec(pruneQuery, maxRows); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "prune rejections", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "commit rejection", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	log.Printf("storage: recorded rejection code=%s", rec.Code)
	return nil
}

// ListConnections returns connection records newest first. limit <= 0
// returns all of them.
func (s *SQLiteStore) ListConnections(limit int) ([]*ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, instance, client_id, name, peer_pid, peer_uid, connected_at, disconnected_at, messages
		FROM connections
		ORDER BY id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "query connections", err)
	}
	defer rows.Close()

	var records []*ConnectionRecord
	for rows.Next() {
		var (
			rec          ConnectionRecord
			clientID     int64
			messages     int64
			pid, uid     sql.NullInt64
			connectedStr string
			disconnected sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Instance, &clientID, &rec.Name, &pid, &uid, &connectedStr, &disconnected, &messages); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan connection row", err)
		}
		rec.ClientID = uint64(clientID)
		rec.Messages = uint64(messages)
		rec.PeerPID = intPtr(pid)
		rec.PeerUID = intPtr(uid)

		t, err := time.Parse(time.RFC3339Nano, connectedStr)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "parse connected_at", err)
		}
		rec.ConnectedAt = t
		if disconnected.Valid {
			d, err := time.Parse(time.RFC3339Nano, disconnected.String)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "parse disconnected_at", err)
			}
			rec.DisconnectedAt = &d
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate connection rows", err)
	}
	return records, nil
}

// ListRejections returns rejection records newest first.
func (s *SQLiteStore) ListRejections(limit int) ([]*RejectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, instance, code, reason, peer_pid, peer_uid, at
		FROM rejections
		ORDER BY id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "query rejections", err)
	}
	defer rows.Close()

	var records []*RejectionRecord
	for rows.Next() {
		var (
			rec      RejectionRecord
			pid, uid sql.NullInt64
			atStr    string
		)
		if err := rows.Scan(&rec.ID, &rec.Instance, &rec.Code, &rec.Reason, &pid, &uid, &atStr); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan rejection row", err)
		}
		rec.PeerPID = intPtr(pid)
		rec.PeerUID = intPtr(uid)
		t, err := time.Parse(time.RFC3339Nano, atStr)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "parse rejection at", err)
		}
		rec.At = t
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate rejection rows", err)
	}
	return records, nil
}

// AuditSummary aggregates the audit tables.
type AuditSummary struct {
	Connections      int64            `json:"connections"`
	OpenConnections  int64            `json:"open_connections"`
	Messages         int64            `json:"messages"`
	RejectionsByCode map[string]int64 `json:"rejections_by_code"`
}

// Summary returns aggregate counts.
func (s *SQLiteStore) Summary() (AuditSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := AuditSummary{RejectionsByCode: make(map[string]int64)}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN disconnected_at IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(messages), 0)
		FROM connections
	`).Scan(&sum.Connections, &sum.OpenConnections, &sum.Messages)
	if err != nil {
		return AuditSummary{}, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "summarize connections", err)
	}

	rows, err := s.db.Query("SELECT code, COUNT(*) FROM rejections GROUP BY code")
	if err != nil {
		return AuditSummary{}, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "summarize rejections", err)
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			return AuditSummary{}, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan rejection summary", err)
		}
		sum.RejectionsByCode[code] = n
	}
	if err := rows.Err(); err != nil {
		return AuditSummary{}, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate rejection summary", err)
	}
	return sum, nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
