package snapshot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factory-floor-backend/internal/clock"
	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Station{}, &model.FloorWorker{}, &model.Session{},
		&model.StatusInterval{}, &model.StatusDefinition{}, &model.Report{},
	))

	require.NoError(t, db.Create(&model.Station{ID: 1, Name: "Press 1"}).Error)
	require.NoError(t, db.Create(&model.FloorWorker{ID: 1, DisplayName: "A. Kovacs"}).Error)
	require.NoError(t, db.Create(&model.StatusDefinition{
		ID: 10, Label: "Running", MachineState: model.StateProduction, ColorHex: "#2a9d3f",
	}).Error)
	require.NoError(t, db.Create(&model.StatusDefinition{
		ID: 20, Label: "Changeover", MachineState: model.StateSetup, ColorHex: "#e8b417",
	}).Error)

	return store.NewGormStore(db, nil)
}

func TestBuildSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	session, err := s.CreateSession(ctx, store.CreateSessionParams{
		StationID: 1, WorkerID: 1, StartedAt: started, InitialStatusID: 10,
	})
	require.NoError(t, err)

	// [0,10m)=production, [10m,11m)=setup, [11m, open)=production.
	_, err = s.AppendInterval(ctx, session.ID, 20, started.Add(10*time.Minute))
	require.NoError(t, err)
	open, err := s.AppendInterval(ctx, session.ID, 10, started.Add(11*time.Minute))
	require.NoError(t, err)
	_, err = s.UpdateCounters(ctx, session.ID, 40, 2)
	require.NoError(t, err)
	_, err = s.AttachReport(ctx, session.ID, store.ReportParams{
		Kind: model.ReportGeneral, Reason: "tooling note", StatusIntervalID: int64Ptr(open.ID),
	})
	require.NoError(t, err)

	manual := clock.NewManual(started.Add(15 * time.Minute))
	builder := NewBuilder(s, manual, 0)

	snap, err := builder.Build(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, session.ID, snap.SessionID)
	assert.Equal(t, model.SessionActive, snap.Status)
	assert.Equal(t, started.Add(15*time.Minute), snap.GeneratedAt)

	// production = 10m + (15m-11m) = 14m, setup = 1m.
	assert.Equal(t, int64(14*60*1000), snap.Summary.ProductionMs)
	assert.Equal(t, int64(60*1000), snap.Summary.SetupMs)
	assert.Equal(t, int64(40), snap.Summary.GoodCount)
	assert.InDelta(t, 40/(14.0/60.0), snap.Summary.ProductsPerHour, 1e-6)

	require.Len(t, snap.Intervals, 3)
	assert.Equal(t, "Running", snap.Intervals[0].Label)
	assert.Equal(t, model.StateProduction, snap.Intervals[0].MachineState)
	assert.Equal(t, []int64{1}, snap.Intervals[2].ReportIDs)

	// All three intervals are below the default collapse threshold with no
	// anchors, so the timeline keeps them verbatim.
	assert.Len(t, snap.Timeline.Segments, 3)
	assert.Empty(t, snap.Timeline.Markers)

	// The open interval's segment is materialized up to "now".
	last := snap.Timeline.Segments[2]
	assert.Equal(t, started.Add(15*time.Minute), last.End)
}

func TestBuildSnapshotClosedSessionClamped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	session, err := s.CreateSession(ctx, store.CreateSessionParams{
		StationID: 1, WorkerID: 1, StartedAt: started, InitialStatusID: 10,
	})
	require.NoError(t, err)
	endedAt := started.Add(time.Hour)
	_, err = s.CloseSession(ctx, session.ID, model.SessionCompleted, endedAt)
	require.NoError(t, err)

	// "now" well past session end must not inflate the totals.
	manual := clock.NewManual(endedAt.Add(6 * time.Hour))
	builder := NewBuilder(s, manual, 0)

	snap, err := builder.Build(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3600_000), snap.Summary.ProductionMs)
	require.NotNil(t, snap.EndedAt)
}

func TestBuildSnapshotNotFound(t *testing.T) {
	s := newTestStore(t)
	builder := NewBuilder(s, clock.System(), 0)

	_, err := builder.Build(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildActiveSharesOneClockRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.CreateSession(ctx, store.CreateSessionParams{
			StationID: 1, WorkerID: 1, StartedAt: started.Add(time.Duration(i) * time.Minute), InitialStatusID: 10,
		})
		require.NoError(t, err)
	}

	builder := NewBuilder(s, clock.NewManual(started.Add(time.Hour)), 0)
	snaps, err := builder.BuildActive(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
}

func TestBuildStationActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.DB().Create(&model.Station{ID: 2, Name: "Lathe 4"}).Error)

	_, err := s.CreateSession(ctx, store.CreateSessionParams{StationID: 1, WorkerID: 1, InitialStatusID: 10})
	require.NoError(t, err)
	other, err := s.CreateSession(ctx, store.CreateSessionParams{StationID: 2, WorkerID: 1, InitialStatusID: 10})
	require.NoError(t, err)

	builder := NewBuilder(s, clock.System(), 0)
	snaps, err := builder.BuildStationActive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, other.ID, snaps[0].SessionID)
}
