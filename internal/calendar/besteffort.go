package calendar

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// Recorder counts degraded external calendar calls.
type Recorder interface {
	RecordExternalCalendar(operation string, ok bool)
}

// BestEffort bounds every external call by a timeout and swallows failures.
// Busy reads degrade to "no external busy time"; writes degrade to no-ops.
type BestEffort struct {
	busy     BusyTimeProvider
	writer   EventWriter
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

// NewBestEffort wraps the given provider and writer; either may be nil.
func NewBestEffort(busy BusyTimeProvider, writer EventWriter, timeout time.Duration, logger *zap.Logger, recorder Recorder) *BestEffort {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BestEffort{busy: busy, writer: writer, timeout: timeout, logger: logger, recorder: recorder}
}

func (b *BestEffort) record(op string, err error) {
	if b.recorder != nil {
		b.recorder.RecordExternalCalendar(op, err == nil)
	}
}

// BusyIntervals never fails; errors and timeouts yield no intervals.
func (b *BestEffort) BusyIntervals(ctx context.Context, hostID string, from, to time.Time) []models.BusyInterval {
	if b == nil || b.busy == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	busy, err := b.busy.BusyIntervals(callCtx, hostID, from, to)
	b.record("busy", err)
	if err != nil {
		b.logger.Warn("external busy time unavailable, continuing without it",
			zap.String("host_id", hostID),
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Error(err))
		return nil
	}
	for i := range busy {
		busy[i].Source = models.BusySourceExternal
	}
	return busy
}

// CreateEvent returns nil when the host has no calendar or the call fails.
func (b *BestEffort) CreateEvent(ctx context.Context, hostID string, ev Event) *ExternalEvent {
	if b == nil || b.writer == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	created, err := b.writer.CreateEvent(callCtx, hostID, ev)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	b.record("create", err)
	if err != nil {
		b.logger.Warn("external event create failed", zap.String("booking_id", ev.BookingID), zap.Error(err))
		return nil
	}
	return created
}

// UpdateEvent logs and drops failures.
func (b *BestEffort) UpdateEvent(ctx context.Context, hostID, externalID string, ev Event) {
	if b == nil || b.writer == nil || externalID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.writer.UpdateEvent(callCtx, hostID, externalID, ev)
	if errors.Is(err, ErrNotConnected) {
		return
	}
	b.record("update", err)
	if err != nil {
		b.logger.Warn("external event update failed", zap.String("booking_id", ev.BookingID), zap.Error(err))
	}
}

// DeleteEvent logs and drops failures.
func (b *BestEffort) DeleteEvent(ctx context.Context, hostID, externalID string) {
	if b == nil || b.writer == nil || externalID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.writer.DeleteEvent(callCtx, hostID, externalID)
	if errors.Is(err, ErrNotConnected) {
		return
	}
	b.record("delete", err)
	if err != nil {
		b.logger.Warn("external event delete failed", zap.String("external_event_id", externalID), zap.Error(err))
	}
}
