package model

import "time"

// SessionStatus is the lifecycle state of a work session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// Session represents one worker-at-station work period. EndedAt is nil while
// the session is still running.
type Session struct {
	ID         string        `gorm:"primaryKey;size:36"`
	StationID  int64         `gorm:"index;not null"`
	WorkerID   int64         `gorm:"index;not null"`
	Status     SessionStatus `gorm:"size:16;not null;index"`
	GoodCount  int64         `gorm:"not null;default:0"`
	ScrapCount int64         `gorm:"not null;default:0"`
	StartedAt  time.Time     `gorm:"not null;index"`
	EndedAt    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Station   Station          `gorm:"constraint:OnDelete:CASCADE"`
	Worker    FloorWorker      `gorm:"foreignKey:WorkerID"`
	Intervals []StatusInterval `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Reports   []Report         `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}
