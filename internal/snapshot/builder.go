package snapshot

import (
	"context"
	"time"

	"factory-floor-backend/internal/accounting"
	"factory-floor-backend/internal/clock"
	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/statusmap"
	"factory-floor-backend/internal/store"
	"factory-floor-backend/internal/timeline"
)

// IntervalView is one hydrated status interval inside a snapshot, decorated
// with the resolved definition and the ids of reports anchored to it.
type IntervalView struct {
	ID           int64              `json:"id"`
	StatusID     int64              `json:"statusId"`
	Label        string             `json:"label"`
	ColorHex     string             `json:"colorHex"`
	MachineState model.MachineState `json:"machineState,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      *time.Time         `json:"endedAt,omitempty"`
	ReportIDs    []int64            `json:"reportIds,omitempty"`
}

// SessionSnapshot is a fully hydrated, consistent, point-in-time view of one
// session. It is a value: rebuilt whole on every change, never patched.
type SessionSnapshot struct {
	SessionID   string              `json:"sessionId"`
	StationID   int64               `json:"stationId"`
	WorkerID    int64               `json:"workerId"`
	Status      model.SessionStatus `json:"status"`
	StartedAt   time.Time           `json:"startedAt"`
	EndedAt     *time.Time          `json:"endedAt,omitempty"`
	Summary     accounting.Summary  `json:"summary"`
	Intervals   []IntervalView      `json:"intervals"`
	Timeline    timeline.Compressed `json:"timeline"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// Builder produces session snapshots. It holds no mutable state of its own
// and is safe to call concurrently; all state lives in the store.
type Builder struct {
	store    store.Store
	clock    clock.Clock
	collapse time.Duration
}

// NewBuilder creates a Builder. collapse is the timeline collapse threshold;
// zero selects the default.
func NewBuilder(s store.Store, c clock.Clock, collapse time.Duration) *Builder {
	if collapse <= 0 {
		collapse = timeline.DefaultCollapseThreshold
	}
	return &Builder{store: s, clock: c, collapse: collapse}
}

// Build produces the snapshot for one session. A missing session surfaces as
// store.ErrNotFound, which callers translate into a delete event rather than
// an error.
func (b *Builder) Build(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	session, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resolver, err := b.loadResolver(ctx)
	if err != nil {
		return nil, err
	}

	return b.assemble(ctx, session, resolver, b.clock.Now())
}

// BuildActive produces snapshots for every active session, all sharing one
// clock read so the set is mutually consistent.
func (b *Builder) BuildActive(ctx context.Context) ([]SessionSnapshot, error) {
	sessions, err := b.store.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	return b.assembleSet(ctx, sessions)
}

// BuildStationActive is BuildActive narrowed to one station's pipeline.
func (b *Builder) BuildStationActive(ctx context.Context, stationID int64) ([]SessionSnapshot, error) {
	sessions, err := b.store.ActiveSessionsForStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return b.assembleSet(ctx, sessions)
}

func (b *Builder) assembleSet(ctx context.Context, sessions []model.Session) ([]SessionSnapshot, error) {
	resolver, err := b.loadResolver(ctx)
	if err != nil {
		return nil, err
	}

	// One clock read for the whole set keeps the snapshots mutually
	// consistent.
	now := b.clock.Now()

	snapshots := make([]SessionSnapshot, 0, len(sessions))
	for i := range sessions {
		snap, err := b.assemble(ctx, &sessions[i], resolver, now)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (b *Builder) loadResolver(ctx context.Context) (*statusmap.Resolver, error) {
	defs, err := b.store.StatusDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	return statusmap.New(defs), nil
}

// assemble hydrates one session against a fixed "now" so that open-interval
// math and the session total agree within the pass.
func (b *Builder) assemble(ctx context.Context, session *model.Session, resolver *statusmap.Resolver, now time.Time) (*SessionSnapshot, error) {
	intervals, err := b.store.IntervalsForSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	reports, err := b.store.ReportsForSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	bound := accounting.Bound{Start: session.StartedAt, End: session.EndedAt}
	totals, err := accounting.Summarize(bound, intervals, resolver.ForStation(session.StationID), now)
	if err != nil {
		return nil, err
	}
	summary := accounting.NewSummary(totals, session.GoodCount, session.ScrapCount)

	reportsByInterval := make(map[int64][]int64)
	for _, r := range reports {
		if r.StatusIntervalID != nil {
			reportsByInterval[*r.StatusIntervalID] = append(reportsByInterval[*r.StatusIntervalID], r.ID)
		}
	}

	boundEnd := now
	if session.EndedAt != nil && session.EndedAt.Before(now) {
		boundEnd = *session.EndedAt
	}

	views := make([]IntervalView, 0, len(intervals))
	segments := make([]timeline.Segment, 0, len(intervals))
	for _, iv := range intervals {
		view := IntervalView{
			ID:        iv.ID,
			StatusID:  iv.StatusID,
			StartedAt: iv.StartedAt,
			EndedAt:   iv.EndedAt,
			ReportIDs: reportsByInterval[iv.ID],
		}
		if def, ok := resolver.Definition(session.StationID, iv.StatusID); ok {
			view.Label = def.Label
			view.ColorHex = def.ColorHex
			view.MachineState = def.MachineState
		}
		views = append(views, view)

		end := boundEnd
		if iv.EndedAt != nil && iv.EndedAt.Before(end) {
			end = *iv.EndedAt
		}
		if !end.After(iv.StartedAt) {
			continue
		}
		segments = append(segments, timeline.Segment{
			Start:    iv.StartedAt,
			End:      end,
			StatusID: iv.StatusID,
			Label:    view.Label,
			ColorHex: view.ColorHex,
		})
	}

	return &SessionSnapshot{
		SessionID:   session.ID,
		StationID:   session.StationID,
		WorkerID:    session.WorkerID,
		Status:      session.Status,
		StartedAt:   session.StartedAt,
		EndedAt:     session.EndedAt,
		Summary:     summary,
		Intervals:   views,
		Timeline:    timeline.Compress(segments, b.collapse),
		GeneratedAt: now,
	}, nil
}
