package timeline

import (
	"sort"
	"time"
)

// DefaultCollapseThreshold is the minimum duration a segment must reach to
// survive compression on its own.
const DefaultCollapseThreshold = 15 * time.Minute

// Segment is one renderable span of a session timeline.
type Segment struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	StatusID int64     `json:"statusId"`
	Label    string    `json:"label"`
	ColorHex string    `json:"colorHex"`
}

// Duration returns the span length of the segment.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Marker replaces a collapsed run of short-lived segments. At is the
// temporal midpoint of the run.
type Marker struct {
	At    time.Time `json:"at"`
	Count int       `json:"count"`
	Label string    `json:"label"`
}

// Compressed is the output of Compress.
type Compressed struct {
	Segments []Segment `json:"segments"`
	Markers  []Marker  `json:"markers"`
}

// Compress collapses status flicker out of a raw segment list.
//
// Segments at least threshold long are kept as anchors. A maximal run of
// consecutive sub-threshold segments bounded by anchors on both sides is
// replaced by a single marker at the run's midpoint. A run touching the
// start or end of the timeline is kept verbatim: without anchors on both
// sides there is no unambiguous midpoint to report.
//
// The transform is pure and idempotent; an empty input yields empty output.
func Compress(segments []Segment, threshold time.Duration) Compressed {
	if threshold <= 0 {
		threshold = DefaultCollapseThreshold
	}

	out := Compressed{
		Segments: make([]Segment, 0, len(segments)),
		Markers:  make([]Marker, 0),
	}
	if len(segments) == 0 {
		return out
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var run []Segment
	seenAnchor := false

	flushRun := func(boundedRight bool) {
		if len(run) == 0 {
			return
		}
		if seenAnchor && boundedRight {
			out.Markers = append(out.Markers, newMarker(run))
		} else {
			out.Segments = append(out.Segments, run...)
		}
		run = nil
	}

	for _, seg := range sorted {
		if seg.Duration() >= threshold {
			flushRun(true)
			out.Segments = append(out.Segments, seg)
			seenAnchor = true
		} else {
			run = append(run, seg)
		}
	}
	flushRun(false)

	return out
}

// newMarker builds the collapse marker for a flicker run. The marker sits at
// the midpoint between the run's first start and last end.
func newMarker(run []Segment) Marker {
	start := run[0].Start
	end := run[len(run)-1].End
	mid := start.Add(end.Sub(start) / 2)
	return Marker{
		At:    mid,
		Count: len(run),
		Label: mid.Format("15:04:05"),
	}
}
