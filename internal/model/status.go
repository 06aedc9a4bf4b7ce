package model

import "time"

// MachineState is the semantic bucket a status maps to.
type MachineState string

const (
	StateProduction MachineState = "production"
	StateSetup      MachineState = "setup"
	StateStoppage   MachineState = "stoppage"
)

// StatusDefinition maps a status identifier to a machine state plus display
// metadata. StationID is nil for global definitions; a station-scoped
// definition overrides the global one with the same ID.
type StatusDefinition struct {
	ID           int64        `gorm:"primaryKey;autoIncrement:false"`
	StationID    *int64       `gorm:"index"`
	Label        string       `gorm:"size:128;not null"`
	MachineState MachineState `gorm:"size:16;not null"`
	ColorHex     string       `gorm:"size:8"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusInterval is a half-open span [StartedAt, EndedAt) during which a
// session held a particular status. EndedAt is nil while the status is still
// in effect.
type StatusInterval struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:36;not null;index:idx_interval_session_start"`
	StatusID  int64     `gorm:"not null;index"`
	StartedAt time.Time `gorm:"not null;index:idx_interval_session_start"`
	EndedAt   *time.Time
	CreatedAt time.Time
}
