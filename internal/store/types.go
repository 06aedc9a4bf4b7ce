package store

import (
	"time"

	"factory-floor-backend/internal/model"
)

// CreateSessionParams describes a new work session. InitialStatusID opens
// the session's first status interval at StartedAt.
type CreateSessionParams struct {
	StationID       int64
	WorkerID        int64
	StartedAt       time.Time
	InitialStatusID int64
}

// ReportParams describes a report to attach to a session. StatusIntervalID
// is optional; when set it anchors the report to the interval it explains.
type ReportParams struct {
	Kind             model.ReportKind
	Reason           string
	Quantity         int64
	StatusIntervalID *int64
}
