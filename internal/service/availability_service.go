package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/availability"
	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type policySource interface {
	Get(ctx context.Context, eventTypeID string) (*models.SchedulePolicy, error)
}

type availabilityStore interface {
	confirmedReader
	CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error)
}

// AvailabilityConfig bounds browse requests.
type AvailabilityConfig struct {
	MaxDays      int
	StoreTimeout time.Duration
}

// AvailabilityService lists bookable slots for an event type over a date range.
// Results are snapshots; booking re-validates under lock.
type AvailabilityService struct {
	policies  policySource
	store     availabilityStore
	resolver  *ConflictResolver
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AvailabilityConfig
	now       func() time.Time
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(policies policySource, store availabilityStore, resolver *ConflictResolver, metrics *MetricsService, validate *validator.Validate, cfg AvailabilityConfig, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 62
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if resolver == nil {
		resolver = NewConflictResolver(nil)
	}
	return &AvailabilityService{
		policies:  policies,
		store:     store,
		resolver:  resolver,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// List computes availability for every host-local date in [query.From, query.To].
// Days failing the range rules come back with no slots.
func (s *AvailabilityService) List(ctx context.Context, eventTypeID string, query dto.AvailabilityQuery) (*dto.AvailabilityResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, withCause(appErrors.ErrValidation, "invalid availability query", err)
	}
	from, err := models.ParseLocalDate(query.From)
	if err != nil {
		return nil, withCause(appErrors.ErrValidation, "invalid from date", err)
	}
	to, err := models.ParseLocalDate(query.To)
	if err != nil {
		return nil, withCause(appErrors.ErrValidation, "invalid to date", err)
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if from.DaysUntil(to)+1 > s.cfg.MaxDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested range is too long")
	}

	policy, err := loadPolicy(ctx, s.policies, s.cfg.StoreTimeout, eventTypeID)
	if err != nil {
		return nil, err
	}
	loc, err := policy.Loc()
	if err != nil {
		return nil, withCause(appErrors.ErrInternal, "event type has an invalid timezone", err)
	}
	inviteeLoc, err := availability.LoadLocation(query.Timezone, loc)
	if err != nil {
		return nil, withCause(appErrors.ErrValidation, "unknown timezone", err)
	}

	started := time.Now()
	now := s.now()
	days, candidates := s.candidates(policy, from, to, now, loc)

	resp := &dto.AvailabilityResponse{
		EventTypeID:     policy.EventTypeID,
		HostTimezone:    loc.String(),
		InviteeTimezone: inviteeLoc.String(),
		DurationMinutes: int(policy.Duration / time.Minute),
		Days:            make([]dto.AvailabilityDay, 0, len(days)),
	}
	if candidates == 0 {
		for _, d := range days {
			resp.Days = append(resp.Days, dto.AvailabilityDay{Date: d.date.String(), Slots: []dto.AvailableSlot{}})
		}
		return resp, nil
	}

	windowStart, _ := availability.DayBounds(from, loc)
	_, windowEnd := availability.DayBounds(to, loc)

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	busy, err := s.resolver.Busy(storeCtx, s.store, policy, windowStart, windowEnd)
	if err != nil {
		return nil, mapStoreError(storeCtx, err, "read busy time")
	}

	for _, d := range days {
		free := availability.FilterFree(d.slots, busy, policy.BufferBefore, policy.BufferAfter)
		if len(free) > 0 && policy.MaxBookingsPerDay != nil {
			full, err := s.dayFull(storeCtx, policy, d.date, loc)
			if err != nil {
				return nil, mapStoreError(storeCtx, err, "count daily bookings")
			}
			if full {
				free = nil
			}
		}
		day := dto.AvailabilityDay{Date: d.date.String(), Slots: make([]dto.AvailableSlot, 0, len(free))}
		for _, slot := range free {
			day.Slots = append(day.Slots, dto.AvailableSlot{
				Start:      slot.Start.UTC(),
				End:        slot.End.UTC(),
				LocalStart: availability.Present(slot.Start, inviteeLoc),
				LocalEnd:   availability.Present(slot.End, inviteeLoc),
			})
		}
		resp.Days = append(resp.Days, day)
	}

	s.metrics.ObserveAvailability("batch", time.Since(started))
	s.logger.Debug("availability computed",
		zap.String("event_type_id", eventTypeID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("busy_intervals", len(busy)))
	return resp, nil
}

type dayCandidates struct {
	date  models.LocalDate
	slots []availability.Slot
}

func (s *AvailabilityService) candidates(policy *models.SchedulePolicy, from, to models.LocalDate, now time.Time, loc *time.Location) ([]dayCandidates, int) {
	var days []dayCandidates
	total := 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		slots := availability.DayCandidates(policy, d, now, loc)
		total += len(slots)
		days = append(days, dayCandidates{date: d, slots: slots})
	}
	return days, total
}

func (s *AvailabilityService) dayFull(ctx context.Context, policy *models.SchedulePolicy, date models.LocalDate, loc *time.Location) (bool, error) {
	dayStart, dayEnd := availability.DayBounds(date, loc)
	count, err := s.store.CountConfirmedBetween(ctx, policy.EventTypeID, dayStart, dayEnd, "")
	if err != nil {
		return false, err
	}
	return count >= *policy.MaxBookingsPerDay, nil
}
