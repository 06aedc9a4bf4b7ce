package accounting

import (
	"errors"
	"time"

	"factory-floor-backend/internal/model"
)

// ErrInvalidBound indicates the session bound passed by the caller is
// unusable. This is a caller contract violation, not noisy data.
var ErrInvalidBound = errors.New("accounting: invalid session bound")

const msPerHour = 3_600_000

// Resolver maps a status identifier to its machine state. The second return
// is false when the identifier cannot be resolved; such time is excluded
// from the production/setup/stoppage buckets.
type Resolver func(statusID int64) (model.MachineState, bool)

// Bound is the [Start, End] window a session's intervals are clamped to.
// End is nil while the session is still open.
type Bound struct {
	Start time.Time
	End   *time.Time
}

// BucketTotals holds accumulated milliseconds per machine state bucket.
// ExcludedMs covers time under statuses the resolver could not map.
type BucketTotals struct {
	ProductionMs int64 `json:"productionMs"`
	SetupMs      int64 `json:"setupMs"`
	StoppageMs   int64 `json:"stoppageMs"`
	ExcludedMs   int64 `json:"excludedMs"`
}

// Add accumulates other into t.
func (t *BucketTotals) Add(other BucketTotals) {
	t.ProductionMs += other.ProductionMs
	t.SetupMs += other.SetupMs
	t.StoppageMs += other.StoppageMs
	t.ExcludedMs += other.ExcludedMs
}

// Summary is the derived time accounting for a session or session set.
// Recomputed on demand; never mutated in place.
type Summary struct {
	BucketTotals
	GoodCount       int64   `json:"goodCount"`
	ScrapCount      int64   `json:"scrapCount"`
	ProductsPerHour float64 `json:"productsPerHour"`
	ScrapPercentage float64 `json:"scrapPercentage"`
	SessionCount    int     `json:"sessionCount"`
}

// Summarize buckets a session's status intervals into machine state totals.
//
// Each interval's effective end is min(endedAt ?? boundEnd, boundEnd, now):
// open intervals are clamped to the session bound and to "now", whichever is
// smaller, so time past session end is never counted and future timestamps
// from clock skew cannot inflate totals. Interval starts before the bound
// start are clamped up for the same reason. Intervals with a non-positive
// clamped duration contribute zero and are skipped; they are malformed data,
// not an error condition.
func Summarize(bound Bound, intervals []model.StatusInterval, resolve Resolver, now time.Time) (BucketTotals, error) {
	var totals BucketTotals

	if bound.Start.IsZero() {
		return totals, ErrInvalidBound
	}
	if bound.End != nil && bound.End.Before(bound.Start) {
		return totals, ErrInvalidBound
	}

	boundEnd := now
	if bound.End != nil && bound.End.Before(now) {
		boundEnd = *bound.End
	}

	for _, iv := range intervals {
		start := iv.StartedAt
		if start.Before(bound.Start) {
			start = bound.Start
		}

		end := boundEnd
		if iv.EndedAt != nil && iv.EndedAt.Before(end) {
			end = *iv.EndedAt
		}
		if now.Before(end) {
			end = now
		}

		d := end.Sub(start)
		if d <= 0 {
			continue
		}
		ms := d.Milliseconds()

		state, ok := resolve(iv.StatusID)
		if !ok {
			totals.ExcludedMs += ms
			continue
		}
		switch state {
		case model.StateProduction:
			totals.ProductionMs += ms
		case model.StateSetup:
			totals.SetupMs += ms
		case model.StateStoppage:
			totals.StoppageMs += ms
		default:
			totals.ExcludedMs += ms
		}
	}

	return totals, nil
}

// ProductsPerHour derives the production rate from raw counters. Defined as
// 0 when no production time has accumulated.
func ProductsPerHour(totals BucketTotals, good int64) float64 {
	if totals.ProductionMs == 0 {
		return 0
	}
	return float64(good) / (float64(totals.ProductionMs) / msPerHour)
}

// ScrapPercentage derives the scrap share from raw counters. Defined as 0
// when nothing has been counted yet.
func ScrapPercentage(good, scrap int64) float64 {
	total := good + scrap
	if total == 0 {
		return 0
	}
	return float64(scrap) / float64(total) * 100
}

// NewSummary assembles a Summary for a single session from its bucket totals
// and counters.
func NewSummary(totals BucketTotals, good, scrap int64) Summary {
	return Summary{
		BucketTotals:    totals,
		GoodCount:       good,
		ScrapCount:      scrap,
		ProductsPerHour: ProductsPerHour(totals, good),
		ScrapPercentage: ScrapPercentage(good, scrap),
		SessionCount:    1,
	}
}

// Merge aggregates per-session summaries by summing the raw durations and
// counters first and deriving the rates from the sums. Rates are never
// averaged across sessions; recomputing them from summed counters avoids
// the bias that averaging per-session rates would introduce.
func Merge(summaries ...Summary) Summary {
	var merged Summary
	for _, s := range summaries {
		merged.BucketTotals.Add(s.BucketTotals)
		merged.GoodCount += s.GoodCount
		merged.ScrapCount += s.ScrapCount
		merged.SessionCount += s.SessionCount
	}
	merged.ProductsPerHour = ProductsPerHour(merged.BucketTotals, merged.GoodCount)
	merged.ScrapPercentage = ScrapPercentage(merged.GoodCount, merged.ScrapCount)
	return merged
}

// AveragePerSession divides the additive fields of a merged summary by its
// session count. Rate fields are left untouched: they are intensive
// quantities and dividing them again would be wrong.
func AveragePerSession(merged Summary) Summary {
	n := int64(merged.SessionCount)
	if n <= 1 {
		return merged
	}
	avg := merged
	avg.ProductionMs /= n
	avg.SetupMs /= n
	avg.StoppageMs /= n
	avg.ExcludedMs /= n
	avg.GoodCount /= n
	avg.ScrapCount /= n
	return avg
}
