package model

import "time"

// Station represents a physical work station on the factory floor.
type Station struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	Line      string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Sessions []Session `gorm:"foreignKey:StationID"`
}
