// Package notification fans booking lifecycle events out to downstream
// consumers without blocking the booking path.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/pkg/jobs"
)

// Kind names a booking lifecycle event.
type Kind string

const (
	KindCreated     Kind = "booking.created"
	KindCancelled   Kind = "booking.cancelled"
	KindRescheduled Kind = "booking.rescheduled"
)

// Notification is the payload handed to downstream consumers.
type Notification struct {
	ID              string              `json:"id"`
	Kind            Kind                `json:"kind"`
	BookingID       string              `json:"booking_id"`
	EventTypeID     string              `json:"event_type_id"`
	HostID          string              `json:"host_id"`
	InviteeName     string              `json:"invitee_name"`
	InviteeEmail    string              `json:"invitee_email"`
	InviteeTimezone string              `json:"invitee_timezone"`
	Start           time.Time           `json:"start"`
	End             time.Time           `json:"end"`
	PreviousStart   *time.Time          `json:"previous_start,omitempty"`
	CancelledBy     *models.CancelActor `json:"cancelled_by,omitempty"`
	Reason          *string             `json:"reason,omitempty"`
	JoinURL         *string             `json:"join_url,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

// FromBooking builds a notification snapshot of booking.
func FromBooking(kind Kind, booking *models.Booking) Notification {
	return Notification{
		ID:              uuid.NewString(),
		Kind:            kind,
		BookingID:       booking.ID,
		EventTypeID:     booking.EventTypeID,
		HostID:          booking.HostID,
		InviteeName:     booking.InviteeName,
		InviteeEmail:    booking.InviteeEmail,
		InviteeTimezone: booking.InviteeTimezone,
		Start:           booking.StartAt,
		End:             booking.EndAt,
		CancelledBy:     booking.CancelledBy,
		Reason:          booking.CancellationReason,
		JoinURL:         booking.JoinURL,
		OccurredAt:      time.Now().UTC(),
	}
}

// Publisher delivers one notification.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Dispatcher accepts notifications without waiting for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// QueueDispatcher hands notifications to a background worker pool that
// publishes them with retries.
type QueueDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewQueueDispatcher builds the dispatcher and its queue. Call Start before use.
func NewQueueDispatcher(publisher Publisher, cfg jobs.QueueConfig) *QueueDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(Notification)
		if !ok {
			return fmt.Errorf("unexpected notification payload %T", job.Payload)
		}
		return publisher.Publish(ctx, n)
	}
	return &QueueDispatcher{
		queue:  jobs.NewQueue("notifications", handler, cfg),
		logger: cfg.Logger,
	}
}

// Start launches the workers.
func (d *QueueDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *QueueDispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch enqueues n; a full or stopped queue drops it with a warning.
func (d *QueueDispatcher) Dispatch(_ context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := d.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: string(n.Kind), Payload: n})
	if err != nil {
		d.logger.Warn("notification dropped",
			zap.String("notification_id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.String("booking_id", n.BookingID),
			zap.Error(err))
	}
}

// LogPublisher writes notifications to the log; used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, n Notification) error {
	p.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("booking_id", n.BookingID),
		zap.Time("start", n.Start))
	return nil
}
