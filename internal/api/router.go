package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/mw"
	"factory-floor-backend/internal/snapshot"
	"factory-floor-backend/internal/store"
	"factory-floor-backend/internal/stream"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, builder *snapshot.Builder, feed changefeed.Feed, webpushOptions *webpush.Options, listOpts, detailOpts stream.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, builder, feed, webpushOptions, listOpts, detailOpts)

	// Rate limit: 10 requests per second with a burst of 5
	rateLimiter := mw.RateLimiter(rate.Limit(10), 5)

	// Derived summaries are cheap to cache for a few seconds; anything
	// longer and the numbers visibly lag the stream.
	cacheStore := cache.New(5*time.Second, time.Minute)
	caching := mw.Cache(cacheStore, 5*time.Second)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Derived read surface
		api.GET("/sessions/:id/summary", caching, handler.GetSessionSummary)
		api.GET("/sessions/summary", caching, handler.GetSessionsSummary)
		api.GET("/sessions/:id/timeline", caching, handler.GetSessionTimeline)

		// Long-lived push channels; never cached, never buffered
		api.GET("/stream/sessions", handler.StreamActiveSessions)
		api.GET("/stream/sessions/:id", handler.StreamSessionDetail)
		api.GET("/stream/stations/:id/progress", handler.StreamStationProgress)

		// Write surface feeding the change feed
		api.POST("/sessions", handler.PostSession)
		api.POST("/sessions/:id/intervals", handler.PostInterval)
		api.PATCH("/sessions/:id/counters", handler.PatchCounters)
		api.POST("/sessions/:id/close", handler.PostClose)
		api.POST("/sessions/:id/reports", handler.PostReport)
		api.DELETE("/sessions/:id", handler.DeleteSession)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
