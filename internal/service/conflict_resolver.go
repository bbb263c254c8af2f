package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/slotbook-api/internal/availability"
	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

// confirmedReader lists a host's confirmed bookings overlapping [from, to).
// Both the repository and an open booking transaction satisfy it.
type confirmedReader interface {
	ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error)
}

type externalBusySource interface {
	BusyIntervals(ctx context.Context, hostID string, from, to time.Time) []models.BusyInterval
}

// ConflictResolver assembles a host's busy time and applies the buffered overlap rule.
type ConflictResolver struct {
	external externalBusySource
}

// NewConflictResolver constructs a resolver. external may be nil.
func NewConflictResolver(external externalBusySource) *ConflictResolver {
	return &ConflictResolver{external: external}
}

// External returns external busy time around [from, to). It never fails.
func (r *ConflictResolver) External(ctx context.Context, policy *models.SchedulePolicy, from, to time.Time) []models.BusyInterval {
	if r == nil || r.external == nil {
		return nil
	}
	qFrom, qTo := availability.BusyWindow(from, to, policy.BufferBefore, policy.BufferAfter)
	return r.external.BusyIntervals(ctx, policy.HostID, qFrom, qTo)
}

// Internal reads confirmed bookings around [from, to) from reader.
func (r *ConflictResolver) Internal(ctx context.Context, reader confirmedReader, policy *models.SchedulePolicy, from, to time.Time) ([]models.BusyInterval, error) {
	qFrom, qTo := availability.BusyWindow(from, to, policy.BufferBefore, policy.BufferAfter)
	bookings, err := reader.ListConfirmedBetween(ctx, policy.HostID, qFrom, qTo)
	if err != nil {
		return nil, err
	}
	busy := make([]models.BusyInterval, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, b.Interval())
	}
	return busy, nil
}

// Busy fetches internal and external busy time concurrently and merges them.
// Only an internal read failure is returned.
func (r *ConflictResolver) Busy(ctx context.Context, reader confirmedReader, policy *models.SchedulePolicy, from, to time.Time) ([]models.BusyInterval, error) {
	var internal, external []models.BusyInterval
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		internal, err = r.Internal(gctx, reader, policy, from, to)
		return err
	})
	g.Go(func() error {
		external = r.External(gctx, policy, from, to)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return availability.MergeBusy(internal, external), nil
}

// Check returns ErrConflict when [start, end) is blocked by busy, ignoring the
// internal interval of excludeBookingID.
func (r *ConflictResolver) Check(policy *models.SchedulePolicy, start, end time.Time, busy []models.BusyInterval, excludeBookingID string) error {
	busy = availability.ExcludeBooking(busy, excludeBookingID)
	if _, blocked := availability.FirstConflict(start, end, busy, policy.BufferBefore, policy.BufferAfter); blocked {
		return appErrors.ErrConflict
	}
	return nil
}
