package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

// seg builds a segment spanning [startMin, endMin) minutes from base.
func seg(startMin, endMin int, statusID int64) Segment {
	return Segment{
		Start:    base.Add(time.Duration(startMin) * time.Minute),
		End:      base.Add(time.Duration(endMin) * time.Minute),
		StatusID: statusID,
	}
}

func TestCompressEmptyInput(t *testing.T) {
	out := Compress(nil, DefaultCollapseThreshold)
	assert.Empty(t, out.Segments)
	assert.Empty(t, out.Markers)
}

func TestCompressFlickerBetweenAnchors(t *testing.T) {
	// Three 2-minute flickers flanked by two 30-minute anchors collapse
	// into exactly one marker; the anchors survive.
	input := []Segment{
		seg(0, 30, 1),
		seg(30, 32, 2),
		seg(32, 34, 3),
		seg(34, 36, 2),
		seg(36, 66, 1),
	}

	out := Compress(input, 15*time.Minute)

	require.Len(t, out.Segments, 2)
	assert.Equal(t, input[0], out.Segments[0])
	assert.Equal(t, input[4], out.Segments[1])

	require.Len(t, out.Markers, 1)
	marker := out.Markers[0]
	// Run spans [30m, 36m); midpoint is 33m.
	assert.Equal(t, base.Add(33*time.Minute), marker.At)
	assert.Equal(t, 3, marker.Count)
	assert.Equal(t, "06:33:00", marker.Label)
}

func TestCompressLeadingRunKept(t *testing.T) {
	input := []Segment{
		seg(0, 2, 2),
		seg(2, 4, 3),
		seg(4, 34, 1),
	}

	out := Compress(input, 15*time.Minute)

	assert.Len(t, out.Segments, 3, "a run with no anchor on its left is kept verbatim")
	assert.Empty(t, out.Markers)
}

func TestCompressTrailingRunKept(t *testing.T) {
	input := []Segment{
		seg(0, 30, 1),
		seg(30, 32, 2),
		seg(32, 33, 3),
	}

	out := Compress(input, 15*time.Minute)

	assert.Len(t, out.Segments, 3, "a run with no anchor on its right is kept verbatim")
	assert.Empty(t, out.Markers)
}

func TestCompressSingleShortSegment(t *testing.T) {
	input := []Segment{seg(0, 2, 1)}

	out := Compress(input, 15*time.Minute)

	require.Len(t, out.Segments, 1)
	assert.Equal(t, input[0], out.Segments[0])
	assert.Empty(t, out.Markers)
}

func TestCompressMultipleRuns(t *testing.T) {
	input := []Segment{
		seg(0, 20, 1),
		seg(20, 22, 2), // collapsed
		seg(22, 42, 1),
		seg(42, 44, 3), // collapsed
		seg(44, 45, 2), // collapsed (same run)
		seg(45, 65, 1),
		seg(65, 66, 3), // trailing, kept
	}

	out := Compress(input, 15*time.Minute)

	assert.Len(t, out.Segments, 4)
	assert.Len(t, out.Markers, 2)
	assert.Equal(t, 1, out.Markers[0].Count)
	assert.Equal(t, 2, out.Markers[1].Count)
}

func TestCompressIdempotent(t *testing.T) {
	input := []Segment{
		seg(0, 30, 1),
		seg(30, 32, 2),
		seg(32, 34, 3),
		seg(34, 64, 1),
		seg(64, 65, 2),
	}

	first := Compress(input, 15*time.Minute)
	second := Compress(first.Segments, 15*time.Minute)

	assert.Equal(t, first.Segments, second.Segments)
	assert.Empty(t, second.Markers, "recompressing an already-compressed timeline must not invent markers")
}

func TestCompressSortsUnorderedInput(t *testing.T) {
	input := []Segment{
		seg(36, 66, 1),
		seg(0, 30, 1),
		seg(30, 32, 2),
		seg(32, 36, 3),
	}

	out := Compress(input, 15*time.Minute)

	require.Len(t, out.Segments, 2)
	assert.True(t, out.Segments[0].Start.Before(out.Segments[1].Start))
	assert.Len(t, out.Markers, 1)
}
