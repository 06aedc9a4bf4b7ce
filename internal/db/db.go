package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"factory-floor-backend/config"
	"factory-floor-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Station{},
		&model.FloorWorker{},
		&model.Session{},
		&model.StatusDefinition{},
		&model.StatusInterval{},
		&model.Report{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableTimescale {
		log.Println("TimescaleDB is enabled, applying TimescaleDB-specific DDL...")
		if err := applyTimescaleDDL(db); err != nil {
			log.Printf("Warning: failed to apply some TimescaleDB DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		// status_intervals is the high-churn table; partition it on its
		// start timestamp.
		"SELECT create_hypertable('status_intervals', 'started_at', if_not_exists => TRUE);",

		// A backdated transition may clamp an interval to zero length, so
		// the bound check is <=, not <.
		"ALTER TABLE status_intervals " +
			"ADD CONSTRAINT status_intervals_bounds_valid CHECK (ended_at IS NULL OR started_at <= ended_at);",

		// Range queries over a session's timeline: half-open, open-ended
		// while the interval is still in effect.
		"CREATE INDEX idx_status_interval_session_range ON status_intervals " +
			"USING GIST (session_id, tstzrange(started_at, COALESCE(ended_at, 'infinity'), '[)'));",

		"CREATE INDEX idx_status_interval_session_started_at ON status_intervals (session_id, started_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
