package notify

import (
	"context"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/metrics"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

// EventSource is the slice of the store the dispatcher reads and acknowledges.
type EventSource interface {
	PendingEvents(ctx context.Context, limit int) ([]models.StatusEvent, error)
	MarkDelivered(ctx context.Context, eventID int) error
	Recipients(ctx context.Context, reportID string) ([]string, error)
	PushTokens(ctx context.Context, userIDs []string) ([]models.User, error)
}

const (
	defaultBatchSize   = 50
	defaultConcurrency = 8
	statusTitle        = "Report status updated"
)

// Dispatcher delivers every committed status event to the report's author
// and voters. Delivery is at least once: an event is marked delivered only
// after its fan-out ran, and individual send failures are logged and dropped.
type Dispatcher struct {
	events      EventSource
	gateway     Gateway
	interval    time.Duration
	batchSize   int
	concurrency int
	wake        chan struct{}
}

func NewDispatcher(events EventSource, gateway Gateway, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		events:      events,
		gateway:     gateway,
		interval:    interval,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		wake:        make(chan struct{}, 1),
	}
}

// Notify asks the running loop for an immediate pass. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run processes pending events on every tick or nudge until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	log.Infof("Notification dispatcher started (interval %s)", d.interval)
	for {
		if _, err := d.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Dispatcher pass failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Info("Notification dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// ProcessPending delivers one batch of undelivered events and returns how
// many were handled.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	events, err := d.events.PendingEvents(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	metrics.EventsPending.Set(float64(len(events)))

	handled := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		d.deliver(ctx, event)
		if err := d.events.MarkDelivered(ctx, event.ID); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event models.StatusEvent) {
	logger := log.WithFields(log.Fields{
		"event_id":  event.ID,
		"report_id": event.ReportID,
		"status":    event.NewStatus,
	})

	recipients, err := d.events.Recipients(ctx, event.ReportID)
	if err != nil {
		logger.Warnf("Skipping notification, recipients unavailable: %v", err)
		return
	}
	users, err := d.events.PushTokens(ctx, recipients)
	if err != nil {
		logger.Warnf("Skipping notification, push tokens unavailable: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, user := range users {
		if user.PushToken == nil || *user.PushToken == "" {
			continue
		}
		msg := Message{
			Token: *user.PushToken,
			Title: statusTitle,
			Body:  statusBody(event.NewStatus),
			Data: map[string]string{
				"reportId": event.ReportID,
				"status":   string(event.NewStatus),
			},
		}
		userID := user.ID
		g.Go(func() error {
			if err := d.gateway.Send(gctx, msg); err != nil {
				metrics.NotificationsTotal.WithLabelValues("error").Inc()
				logger.WithField("user_id", userID).Warnf("Push delivery failed: %v", err)
				return nil
			}
			metrics.NotificationsTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	logger.Infof("Status notification fanned out to %d device(s)", len(users))
}

func statusBody(status models.Status) string {
	switch status {
	case models.StatusInProgress:
		return "Work has started on a report you follow."
	case models.StatusResolved:
		return "A report you follow has been resolved."
	default:
		return "A report you follow was reopened."
	}
}
