package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// EventTypeRepository reads bookable event types and their weekly windows.
type EventTypeRepository struct {
	db *sqlx.DB
}

// NewEventTypeRepository builds the repository.
func NewEventTypeRepository(db *sqlx.DB) *EventTypeRepository {
	return &EventTypeRepository{db: db}
}

// FindByID loads one active event type.
func (r *EventTypeRepository) FindByID(ctx context.Context, id string) (*models.EventType, error) {
	const query = `SELECT id, host_id, slug, title, duration_minutes, slot_interval_minutes, buffer_before_minutes,
buffer_after_minutes, min_notice_minutes, range_type, rolling_days, range_start, range_end, timezone,
max_bookings_per_day, active, created_at, updated_at
FROM event_types WHERE id = $1 AND active = TRUE`
	var et models.EventType
	if err := r.db.GetContext(ctx, &et, query, id); err != nil {
		return nil, err
	}
	return &et, nil
}

// ListWindows returns the weekly windows of an event type.
func (r *EventTypeRepository) ListWindows(ctx context.Context, eventTypeID string) ([]models.AvailabilityWindow, error) {
	const query = `SELECT event_type_id, day_of_week, start_minute, end_minute
FROM availability_windows WHERE event_type_id = $1 ORDER BY day_of_week ASC, start_minute ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, eventTypeID); err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	return windows, nil
}

// LoadPolicy reads an event type with its windows and normalises them.
func (r *EventTypeRepository) LoadPolicy(ctx context.Context, eventTypeID string) (*models.SchedulePolicy, error) {
	et, err := r.FindByID(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	windows, err := r.ListWindows(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	return NormalizePolicy(et, windows)
}

// NormalizePolicy collapses the stored rows into a SchedulePolicy. A missing
// slot interval falls back to the duration.
func NormalizePolicy(et *models.EventType, windows []models.AvailabilityWindow) (*models.SchedulePolicy, error) {
	loc, err := time.LoadLocation(et.Timezone)
	if err != nil {
		return nil, fmt.Errorf("event type %s timezone %q: %w", et.ID, et.Timezone, err)
	}
	if et.DurationMinutes <= 0 {
		return nil, fmt.Errorf("event type %s has non-positive duration", et.ID)
	}

	interval := et.DurationMinutes
	if et.IntervalMinutes != nil && *et.IntervalMinutes > 0 {
		interval = *et.IntervalMinutes
	}

	policy := &models.SchedulePolicy{
		EventTypeID:       et.ID,
		HostID:            et.HostID,
		Title:             et.Title,
		Duration:          minutes(et.DurationMinutes),
		Interval:          minutes(interval),
		BufferBefore:      minutes(et.BufferBeforeMinutes),
		BufferAfter:       minutes(et.BufferAfterMinutes),
		MinNotice:         minutes(et.MinNoticeMinutes),
		Timezone:          et.Timezone,
		Location:          loc,
		MaxBookingsPerDay: et.MaxBookingsPerDay,
	}

	switch models.RangeType(strings.ToUpper(et.RangeType)) {
	case models.RangeRolling:
		days := 0
		if et.RollingDays != nil {
			days = *et.RollingDays
		}
		policy.Range = models.RangePolicy{Type: models.RangeRolling, RollingDays: days}
	case models.RangeFixed:
		policy.Range = models.RangePolicy{Type: models.RangeFixed}
		if et.RangeStart != nil {
			d := models.DateOf(*et.RangeStart)
			policy.Range.StartDate = &d
		}
		if et.RangeEnd != nil {
			d := models.DateOf(*et.RangeEnd)
			policy.Range.EndDate = &d
		}
	default:
		policy.Range = models.RangePolicy{Type: models.RangeIndefinite}
	}

	for _, w := range windows {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			continue
		}
		r := models.DayRange{StartMinute: w.StartMinute, EndMinute: w.EndMinute}
		if !r.Valid() {
			continue
		}
		policy.Weekly[w.DayOfWeek] = append(policy.Weekly[w.DayOfWeek], r)
	}
	return policy, nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
