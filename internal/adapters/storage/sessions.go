package storage

// sessions.go — SessionStore sobre la tabla tracking_sessions.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// GetActive devuelve la sesión ACTIVE de la wallet, o (nil, nil).
func (s *SessionStore) GetActive(ctx context.Context, wallet string) (*domain.TrackingSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tracked_wallet, status, started_at, snapshot_completed_at, snapshot_source, ended_at
		FROM tracking_sessions
		WHERE tracked_wallet = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1
	`, wallet, string(domain.SessionActive))

	var (
		id, trackedWallet, status, startedAtStr string
		snapshotAt, endedAt                     sql.NullString
		source                                  string
	)
	err := row.Scan(&id, &trackedWallet, &status, &startedAtStr, &snapshotAt, &source, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetActive: %w", err)
	}

	session := &domain.TrackingSession{
		TrackedWallet:  trackedWallet,
		Status:         domain.SessionStatus(status),
		SnapshotSource: source,
	}
	if session.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("storage.GetActive: parse session id %q: %w", id, err)
	}
	if session.StartedAt, err = parseTime(startedAtStr); err != nil {
		return nil, fmt.Errorf("storage.GetActive: %w", err)
	}
	if session.SnapshotCompletedAt, err = parseTimePtr(snapshotAt); err != nil {
		return nil, fmt.Errorf("storage.GetActive: %w", err)
	}
	if session.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return nil, fmt.Errorf("storage.GetActive: %w", err)
	}
	return session, nil
}

// Save hace upsert de la sesión por id.
func (s *SessionStore) Save(ctx context.Context, session *domain.TrackingSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_sessions
			(id, tracked_wallet, status, started_at, snapshot_completed_at, snapshot_source, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status                = excluded.status,
			snapshot_completed_at = excluded.snapshot_completed_at,
			snapshot_source       = excluded.snapshot_source,
			ended_at              = excluded.ended_at
	`,
		session.ID.String(),
		session.TrackedWallet,
		string(session.Status),
		fmtTime(session.StartedAt),
		fmtTimePtr(session.SnapshotCompletedAt),
		session.SnapshotSource,
		fmtTimePtr(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Save session: %w", err)
	}
	return nil
}
