package model

import "time"

// ReportKind classifies a floor report.
type ReportKind string

const (
	ReportMalfunction ReportKind = "malfunction"
	ReportGeneral     ReportKind = "general"
	ReportScrap       ReportKind = "scrap"
)

// Report is cause/reason metadata raised during a session, optionally
// anchored to the status interval it explains. It does not participate in
// duration math.
type Report struct {
	ID               int64      `gorm:"primaryKey;autoIncrement"`
	SessionID        string     `gorm:"size:36;not null;index"`
	StatusIntervalID *int64     `gorm:"index"`
	Kind             ReportKind `gorm:"size:16;not null"`
	Reason           string     `gorm:"size:512"`
	Quantity         int64      `gorm:"not null;default:0"`
	CreatedAt        time.Time  `gorm:"not null"`
}
