package stream

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
}

func TestSSESinkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send(Delete("s-1")))
	require.NoError(t, sink.Comment("keep-alive"))
	require.NoError(t, sink.Send(Error(CodeChannelClosed)))

	body := rec.Body.String()
	frames := strings.Split(body, "\n\n")
	require.Len(t, frames, 4) // three frames plus the trailing empty split
	assert.Equal(t, `data: {"type":"delete","sessionId":"s-1"}`, frames[0])
	assert.Equal(t, ": keep-alive", frames[1])
	assert.Equal(t, `data: {"type":"error","message":"CHANNEL_CLOSED"}`, frames[2])
	assert.Empty(t, frames[3])
	assert.True(t, rec.Flushed)
}

func TestSSESinkInitialPayloadNeverNull(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send(Initial(nil)))
	assert.Equal(t, "data: {\"type\":\"initial\",\"sessions\":[]}\n\n", rec.Body.String())
}
