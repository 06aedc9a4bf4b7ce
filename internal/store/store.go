package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/model"
)

// ErrNotFound is the first-class miss result for single-entity reads. A
// session disappearing mid-stream is an expected steady-state event, not an
// exception.
var ErrNotFound = errors.New("store: not found")

// ErrSessionClosed is returned by mutations that require an open session.
var ErrSessionClosed = errors.New("store: session already closed")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error)
	AppendInterval(ctx context.Context, sessionID string, statusID int64, at time.Time) (*model.StatusInterval, error)
	UpdateCounters(ctx context.Context, sessionID string, goodDelta, scrapDelta int64) (*model.Session, error)
	CloseSession(ctx context.Context, sessionID string, status model.SessionStatus, at time.Time) (*model.Session, error)
	AttachReport(ctx context.Context, sessionID string, params ReportParams) (*model.Report, error)
	DeleteSession(ctx context.Context, sessionID string) error

	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ActiveSessions(ctx context.Context) ([]model.Session, error)
	ActiveSessionsForStation(ctx context.Context, stationID int64) ([]model.Session, error)
	IntervalsForSession(ctx context.Context, sessionID string) ([]model.StatusInterval, error)
	ReportsForSession(ctx context.Context, sessionID string) ([]model.Report, error)
	StatusDefinitions(ctx context.Context) ([]model.StatusDefinition, error)
}

// gormStore implements the Store interface using GORM. Every successful
// mutation publishes row-level notifications to the change feed after the
// transaction commits, never from inside it.
type gormStore struct {
	db   *gorm.DB
	feed *changefeed.Bus
}

// NewGormStore creates a new GORM-backed store. feed may be nil when no
// consumer watches for changes (tests, batch tools).
func NewGormStore(db *gorm.DB, feed *changefeed.Bus) Store {
	return &gormStore{db: db, feed: feed}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) publish(notifications []changefeed.Notification) {
	if s.feed == nil {
		return
	}
	for _, n := range notifications {
		s.feed.Publish(n)
	}
}

// CreateSession opens a new active session and its first status interval.
func (s *gormStore) CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error) {
	if params.StationID == 0 || params.WorkerID == 0 {
		return nil, fmt.Errorf("station and worker are required: %w", gorm.ErrInvalidData)
	}
	startedAt := params.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	session := model.Session{
		ID:        uuid.NewString(),
		StationID: params.StationID,
		WorkerID:  params.WorkerID,
		Status:    model.SessionActive,
		StartedAt: startedAt,
	}
	interval := model.StatusInterval{
		SessionID: session.ID,
		StatusID:  params.InitialStatusID,
		StartedAt: startedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if params.InitialStatusID != 0 {
			if err := tx.Create(&interval).Error; err != nil {
				return fmt.Errorf("failed to open initial interval: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifications := []changefeed.Notification{
		{Resource: changefeed.ResourceSessions, Event: changefeed.EventInsert, Key: session.ID, SessionID: session.ID},
	}
	if params.InitialStatusID != 0 {
		notifications = append(notifications, changefeed.Notification{
			Resource: changefeed.ResourceIntervals, Event: changefeed.EventInsert,
			Key: fmt.Sprintf("%d", interval.ID), SessionID: session.ID,
		})
	}
	s.publish(notifications)
	return &session, nil
}

// AppendInterval closes the session's open interval at the transition time
// and opens a new one with the given status.
func (s *gormStore) AppendInterval(ctx context.Context, sessionID string, statusID int64, at time.Time) (*model.StatusInterval, error) {
	var created model.StatusInterval
	var closedID int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if !session.Open() {
			return ErrSessionClosed
		}

		closed, err := closeOpenInterval(tx, sessionID, at)
		if err != nil {
			return err
		}
		if closed != nil {
			closedID = closed.ID
		}

		created = model.StatusInterval{
			SessionID: sessionID,
			StatusID:  statusID,
			StartedAt: at,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("failed to open interval for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var notifications []changefeed.Notification
	if closedID != 0 {
		notifications = append(notifications, changefeed.Notification{
			Resource: changefeed.ResourceIntervals, Event: changefeed.EventUpdate,
			Key: fmt.Sprintf("%d", closedID), SessionID: sessionID,
		})
	}
	notifications = append(notifications, changefeed.Notification{
		Resource: changefeed.ResourceIntervals, Event: changefeed.EventInsert,
		Key: fmt.Sprintf("%d", created.ID), SessionID: sessionID,
	})
	s.publish(notifications)
	return &created, nil
}

// UpdateCounters applies good/scrap deltas to an open session.
func (s *gormStore) UpdateCounters(ctx context.Context, sessionID string, goodDelta, scrapDelta int64) (*model.Session, error) {
	var session *model.Session

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if !session.Open() {
			return ErrSessionClosed
		}

		session.GoodCount += goodDelta
		session.ScrapCount += scrapDelta
		if session.GoodCount < 0 {
			session.GoodCount = 0
		}
		if session.ScrapCount < 0 {
			session.ScrapCount = 0
		}
		if err := tx.Model(session).
			Updates(map[string]any{"good_count": session.GoodCount, "scrap_count": session.ScrapCount}).Error; err != nil {
			return fmt.Errorf("failed to update counters for session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]changefeed.Notification{{
		Resource: changefeed.ResourceSessions, Event: changefeed.EventUpdate,
		Key: sessionID, SessionID: sessionID,
	}})
	return session, nil
}

// CloseSession ends the session and its open interval. Closing an already
// closed session is a no-op and returns the stored row unchanged.
func (s *gormStore) CloseSession(ctx context.Context, sessionID string, status model.SessionStatus, at time.Time) (*model.Session, error) {
	if status != model.SessionCompleted && status != model.SessionAborted {
		return nil, fmt.Errorf("invalid terminal status %q: %w", status, gorm.ErrInvalidData)
	}

	var session *model.Session
	alreadyClosed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if !session.Open() {
			alreadyClosed = true
			return nil
		}

		if _, err := closeOpenInterval(tx, sessionID, at); err != nil {
			return err
		}

		session.Status = status
		session.EndedAt = &at
		if err := tx.Model(session).
			Updates(map[string]any{"status": status, "ended_at": at}).Error; err != nil {
			return fmt.Errorf("failed to close session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !alreadyClosed {
		s.publish([]changefeed.Notification{{
			Resource: changefeed.ResourceSessions, Event: changefeed.EventUpdate,
			Key: sessionID, SessionID: sessionID,
		}})
	}
	return session, nil
}

// AttachReport records cause metadata against a session.
func (s *gormStore) AttachReport(ctx context.Context, sessionID string, params ReportParams) (*model.Report, error) {
	report := model.Report{
		SessionID:        sessionID,
		StatusIntervalID: params.StatusIntervalID,
		Kind:             params.Kind,
		Reason:           params.Reason,
		Quantity:         params.Quantity,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, sessionID); err != nil {
			return err
		}
		if err := tx.Create(&report).Error; err != nil {
			return fmt.Errorf("failed to attach report to session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]changefeed.Notification{{
		Resource: changefeed.ResourceReports, Event: changefeed.EventInsert,
		Key: fmt.Sprintf("%d", report.ID), SessionID: sessionID,
	}})
	return &report, nil
}

// DeleteSession removes a session and cascades to its intervals and reports.
func (s *gormStore) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, sessionID); err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.StatusInterval{}).Error; err != nil {
			return fmt.Errorf("failed to delete intervals of session %s: %w", sessionID, err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Report{}).Error; err != nil {
			return fmt.Errorf("failed to delete reports of session %s: %w", sessionID, err)
		}
		if err := tx.Delete(&model.Session{ID: sessionID}).Error; err != nil {
			return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish([]changefeed.Notification{{
		Resource: changefeed.ResourceSessions, Event: changefeed.EventDelete,
		Key: sessionID, SessionID: sessionID,
	}})
	return nil
}

// GetSession fetches one session row. Returns ErrNotFound as a first-class
// result when the session does not exist.
func (s *gormStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *gormStore) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.WithContext(ctx).
		Where("status = ?", model.SessionActive).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) ActiveSessionsForStation(ctx context.Context, stationID int64) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.WithContext(ctx).
		Where("status = ? AND station_id = ?", model.SessionActive, stationID).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active sessions for station %d: %w", stationID, err)
	}
	return sessions, nil
}

func (s *gormStore) IntervalsForSession(ctx context.Context, sessionID string) ([]model.StatusInterval, error) {
	var intervals []model.StatusInterval
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at ASC").
		Find(&intervals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch intervals for session %s: %w", sessionID, err)
	}
	return intervals, nil
}

func (s *gormStore) ReportsForSession(ctx context.Context, sessionID string) ([]model.Report, error) {
	var reports []model.Report
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports for session %s: %w", sessionID, err)
	}
	return reports, nil
}

func (s *gormStore) StatusDefinitions(ctx context.Context) ([]model.StatusDefinition, error) {
	var defs []model.StatusDefinition
	if err := s.db.WithContext(ctx).Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch status definitions: %w", err)
	}
	return defs, nil
}

// --- Transaction helpers ---

func lockSession(tx *gorm.DB, sessionID string) (*model.Session, error) {
	var session model.Session
	err := tx.First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}
	return &session, nil
}

// closeOpenInterval ends the session's open interval, if any, at the given
// time. The end is clamped so it never precedes the interval's own start.
func closeOpenInterval(tx *gorm.DB, sessionID string, at time.Time) (*model.StatusInterval, error) {
	var open model.StatusInterval
	err := tx.Where("session_id = ? AND ended_at IS NULL", sessionID).
		Order("started_at DESC").
		First(&open).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open interval for session %s: %w", sessionID, err)
	}

	end := at
	if end.Before(open.StartedAt) {
		end = open.StartedAt
	}
	open.EndedAt = &end
	if err := tx.Model(&open).Update("ended_at", end).Error; err != nil {
		return nil, fmt.Errorf("failed to close interval %d: %w", open.ID, err)
	}
	return &open, nil
}
