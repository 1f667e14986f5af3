package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle of a wallet follow-session.
type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionEnded  SessionStatus = "ENDED"
	SessionError  SessionStatus = "ERROR"
)

// TrackingSession records one follow-session for a wallet: when tracking began,
// whether the t0 snapshot completed, and how the session ended.
type TrackingSession struct {
	ID                  uuid.UUID
	TrackedWallet       string
	Status              SessionStatus
	StartedAt           time.Time
	SnapshotCompletedAt *time.Time
	SnapshotSource      string
	EndedAt             *time.Time
}

// NewTrackingSession creates an ACTIVE session for the wallet.
func NewTrackingSession(wallet string) *TrackingSession {
	return &TrackingSession{
		ID:            uuid.New(),
		TrackedWallet: wallet,
		Status:        SessionActive,
		StartedAt:     time.Now().UTC(),
	}
}

// WithSnapshotCompleted returns a copy marking the t0 snapshot done.
func (s *TrackingSession) WithSnapshotCompleted(at time.Time, source string) *TrackingSession {
	c := *s
	t := at.UTC()
	c.SnapshotCompletedAt = &t
	c.SnapshotSource = source
	return &c
}

// WithEnded returns a copy with the terminal status and end time set.
func (s *TrackingSession) WithEnded(at time.Time, status SessionStatus) *TrackingSession {
	c := *s
	c.Status = status
	t := at.UTC()
	c.EndedAt = &t
	return &c
}
