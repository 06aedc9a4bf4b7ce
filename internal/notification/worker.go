package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

// JobKind selects the notification template.
type JobKind string

const (
	JobSessionCompleted JobKind = "session-completed"
	JobStoppageStarted  JobKind = "stoppage-started"
)

// Job is one push-notification request for everybody subscribed to a
// station.
type Job struct {
	Kind      JobKind
	StationID int64
	SessionID string
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification: worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.sendForStation(ctx, job)
		case <-ctx.Done():
			log.Printf("notification: worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job. It never blocks: a full queue drops the job, which
// is acceptable for advisory notifications.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("notification: queue full, dropping %s for station %d", job.Kind, job.StationID)
	}
}

// sendForStation fetches the station's subscribers and pushes the rendered
// message to each.
func (wp *WorkerPool) sendForStation(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_station_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.station_id = ?", job.StationID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("notification: fetching subscriptions for station %d: %v", job.StationID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	var station model.Station
	stationLabel := fmt.Sprintf("%d", job.StationID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&station, job.StationID).Error; err != nil {
		log.Printf("notification: fetching station %d: %v", job.StationID, err)
	} else if station.Name != "" {
		stationLabel = station.Name
	}

	var message string
	switch job.Kind {
	case JobStoppageStarted:
		message = fmt.Sprintf("Stoppage reported on station %s", stationLabel)
	default:
		message = fmt.Sprintf("Station %s finished a job run", stationLabel)
	}

	log.Printf("notification: sending %d notifications for station %d", len(subscriptions), job.StationID)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, []byte(message))
	}
}

// send pushes one payload and prunes the subscription if the push service
// reports it gone.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("notification: sending to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("notification: subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("notification: deleting expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
