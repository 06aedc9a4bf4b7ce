package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/snapshot"
	"factory-floor-backend/internal/store"
	"factory-floor-backend/internal/stream"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	builder *snapshot.Builder
	feed    changefeed.Feed
	webpush *webpush.Options

	listOpts   stream.Options
	detailOpts stream.Options
}

// NewHandler creates a new API handler. listOpts drives the set-scoped
// stream channels, detailOpts the per-session ones.
func NewHandler(s store.Store, builder *snapshot.Builder, feed changefeed.Feed, webpushOptions *webpush.Options, listOpts, detailOpts stream.Options) *Handler {
	return &Handler{
		store:      s,
		builder:    builder,
		feed:       feed,
		webpush:    webpushOptions,
		listOpts:   listOpts,
		detailOpts: detailOpts,
	}
}
