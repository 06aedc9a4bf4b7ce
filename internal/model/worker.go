package model

import "time"

// FloorWorker represents an operator who can be assigned to a station.
type FloorWorker struct {
	ID          int64  `gorm:"primaryKey"`
	DisplayName string `gorm:"size:256;not null"`
	Badge       string `gorm:"size:64;uniqueIndex"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
