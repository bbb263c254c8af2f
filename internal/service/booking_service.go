package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/availability"
	"github.com/noah-isme/slotbook-api/internal/calendar"
	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/notification"
	"github.com/noah-isme/slotbook-api/internal/repository"
	"github.com/noah-isme/slotbook-api/pkg/captoken"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type bookingStore interface {
	InTx(ctx context.Context, fn func(repository.BookingTx) error) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	SetExternalEvent(ctx context.Context, id, externalID string, joinURL *string) error
	ListByHost(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

type eventSink interface {
	CreateEvent(ctx context.Context, hostID string, ev calendar.Event) *calendar.ExternalEvent
	UpdateEvent(ctx context.Context, hostID, externalID string, ev calendar.Event)
	DeleteEvent(ctx context.Context, hostID, externalID string)
}

type tokenIssuer interface {
	Issue() (token string, hash string, err error)
	Verify(token, hash string) error
}

// AuthProof is the caller's claim to act on a booking: a host identity or a cancel token.
type AuthProof struct {
	HostID string
	Token  string
}

// BookingServiceConfig bounds store and side-effect calls.
type BookingServiceConfig struct {
	StoreTimeout time.Duration
}

// BookingService creates, cancels and reschedules bookings. The conflict check
// and the write of create/reschedule share one transaction under the host lock.
type BookingService struct {
	policies  policySource
	store     bookingStore
	resolver  *ConflictResolver
	events    eventSink
	tokens    tokenIssuer
	notifier  notification.Dispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	cfg       BookingServiceConfig
	now       func() time.Time
}

// NewBookingService constructs a BookingService. events and notifier may be nil.
func NewBookingService(
	policies policySource,
	store bookingStore,
	resolver *ConflictResolver,
	events eventSink,
	tokens tokenIssuer,
	notifier notification.Dispatcher,
	metrics *MetricsService,
	validate *validator.Validate,
	cfg BookingServiceConfig,
	logger *zap.Logger,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewConflictResolver(nil)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &BookingService{
		policies:  policies,
		store:     store,
		resolver:  resolver,
		events:    events,
		tokens:    tokens,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		tracer:    otel.Tracer("github.com/noah-isme/slotbook-api/internal/service"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create books req.Start for the invitee and returns the booking with its
// one-time cancel token.
func (s *BookingService) Create(ctx context.Context, req dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := s.tracer.Start(ctx, "booking.create", trace.WithAttributes(attribute.String("event_type_id", req.EventTypeID)))
	defer span.End()

	booking, token, err := s.create(ctx, req)
	s.finish(span, "create", err)
	if err != nil {
		return nil, err
	}

	s.afterCreate(ctx, booking)
	return &dto.CreateBookingResponse{Booking: booking, CancelToken: token}, nil
}

func (s *BookingService) create(ctx context.Context, req dto.CreateBookingRequest) (*models.Booking, string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, "", withCause(appErrors.ErrValidation, "invalid booking payload", err)
	}
	responses, err := normaliseResponses(req.Responses)
	if err != nil {
		return nil, "", err
	}

	policy, err := loadPolicy(ctx, s.policies, s.cfg.StoreTimeout, req.EventTypeID)
	if err != nil {
		return nil, "", err
	}
	loc, err := policy.Loc()
	if err != nil {
		return nil, "", withCause(appErrors.ErrInternal, "event type has an invalid timezone", err)
	}
	inviteeLoc, err := availability.LoadLocation(req.InviteeTimezone, loc)
	if err != nil {
		return nil, "", withCause(appErrors.ErrValidation, "unknown invitee timezone", err)
	}

	start := req.Start.UTC()
	end := start.Add(policy.Duration)
	if err := availability.CheckTarget(policy, start, s.now(), loc); err != nil {
		return nil, "", err
	}

	external := s.resolver.External(ctx, policy, start, end)

	token, hash, err := s.tokens.Issue()
	if err != nil {
		return nil, "", withCause(appErrors.ErrInternal, "failed to issue cancel token", err)
	}

	booking := &models.Booking{
		EventTypeID:     policy.EventTypeID,
		HostID:          policy.HostID,
		InviteeName:     strings.TrimSpace(req.InviteeName),
		InviteeEmail:    strings.ToLower(strings.TrimSpace(req.InviteeEmail)),
		InviteeTimezone: inviteeLoc.String(),
		Responses:       responses,
		StartAt:         start,
		EndAt:           end,
		Status:          models.BookingConfirmed,
		CancelTokenHash: hash,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	err = s.store.InTx(storeCtx, func(tx repository.BookingTx) error {
		if err := tx.LockHost(storeCtx, policy.HostID); err != nil {
			return err
		}
		if err := availability.CheckNotice(policy, start, s.now()); err != nil {
			return err
		}
		internal, err := s.resolver.Internal(storeCtx, tx, policy, start, end)
		if err != nil {
			return err
		}
		if err := s.resolver.Check(policy, start, end, availability.MergeBusy(internal, external), ""); err != nil {
			return err
		}
		if err := s.checkDailyCap(storeCtx, tx, policy, loc, start, ""); err != nil {
			return err
		}
		return tx.Insert(storeCtx, booking)
	})
	if err != nil {
		return nil, "", mapStoreError(storeCtx, err, "create booking")
	}

	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("host_id", booking.HostID),
		zap.Time("start", booking.StartAt))
	return booking, token, nil
}

// Cancel cancels a booking on behalf of actor. A proof that does not match the
// booking is reported as NOT_FOUND.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor models.CancelActor, reason *string, proof AuthProof) (*models.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	booking, err := s.cancel(ctx, bookingID, actor, reason, proof)
	s.finish(span, "cancel", err)
	if err != nil {
		return nil, err
	}

	if s.events != nil && booking.ExternalEventID != nil {
		s.events.DeleteEvent(detach(ctx), booking.HostID, *booking.ExternalEventID)
	}
	s.notify(ctx, notification.KindCancelled, booking, nil)
	return booking, nil
}

func (s *BookingService) cancel(ctx context.Context, bookingID string, actor models.CancelActor, reason *string, proof AuthProof) (*models.Booking, error) {
	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if len(trimmed) > 1000 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reason is too long")
		}
		reason = &trimmed
		if trimmed == "" {
			reason = nil
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	existing, err := s.store.FindByID(storeCtx, bookingID)
	if err != nil {
		return nil, mapStoreError(storeCtx, err, "load booking")
	}
	if !s.authorised(existing, actor, proof) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}

	var cancelled *models.Booking
	err = s.store.InTx(storeCtx, func(tx repository.BookingTx) error {
		current, err := tx.GetForUpdate(storeCtx, bookingID)
		if err != nil {
			return err
		}
		if err := transitionAllowed(current.Status); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.Cancel(storeCtx, bookingID, actor, reason, at); err != nil {
			return err
		}
		current.Status = models.BookingCancelled
		current.CancelledBy = &actor
		current.CancellationReason = reason
		current.CancelledAt = &at
		current.UpdatedAt = at
		cancelled = current
		return nil
	})
	if err != nil {
		return nil, mapStoreError(storeCtx, err, "cancel booking")
	}

	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("actor", string(actor)))
	return cancelled, nil
}

// Reschedule moves a host's booking to newStart, re-running every check the
// create path runs while ignoring the booking's own interval.
func (s *BookingService) Reschedule(ctx context.Context, bookingID string, newStart time.Time, hostID string) (*models.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.reschedule", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	booking, previous, err := s.reschedule(ctx, bookingID, newStart, hostID)
	s.finish(span, "reschedule", err)
	if err != nil {
		return nil, err
	}

	if s.events != nil && booking.ExternalEventID != nil {
		s.events.UpdateEvent(detach(ctx), booking.HostID, *booking.ExternalEventID, s.calendarEvent(ctx, booking))
	}
	s.notify(ctx, notification.KindRescheduled, booking, &previous)
	return booking, nil
}

func (s *BookingService) reschedule(ctx context.Context, bookingID string, newStart time.Time, hostID string) (*models.Booking, time.Time, error) {
	if newStart.IsZero() {
		return nil, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	existing, err := s.store.FindByID(storeCtx, bookingID)
	if err != nil {
		return nil, time.Time{}, mapStoreError(storeCtx, err, "load booking")
	}
	if hostID == "" || existing.HostID != hostID {
		return nil, time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	if err := transitionAllowed(existing.Status); err != nil {
		return nil, time.Time{}, err
	}

	policy, err := loadPolicy(ctx, s.policies, s.cfg.StoreTimeout, existing.EventTypeID)
	if err != nil {
		return nil, time.Time{}, err
	}
	loc, err := policy.Loc()
	if err != nil {
		return nil, time.Time{}, withCause(appErrors.ErrInternal, "event type has an invalid timezone", err)
	}

	start := newStart.UTC()
	end := start.Add(policy.Duration)
	if err := availability.CheckTarget(policy, start, s.now(), loc); err != nil {
		return nil, time.Time{}, err
	}

	external := withoutOwnEvent(s.resolver.External(ctx, policy, start, end), existing)

	var updated *models.Booking
	var previous time.Time
	err = s.store.InTx(storeCtx, func(tx repository.BookingTx) error {
		if err := tx.LockHost(storeCtx, policy.HostID); err != nil {
			return err
		}
		current, err := tx.GetForUpdate(storeCtx, bookingID)
		if err != nil {
			return err
		}
		if err := transitionAllowed(current.Status); err != nil {
			return err
		}
		if err := availability.CheckNotice(policy, start, s.now()); err != nil {
			return err
		}
		internal, err := s.resolver.Internal(storeCtx, tx, policy, start, end)
		if err != nil {
			return err
		}
		if err := s.resolver.Check(policy, start, end, availability.MergeBusy(internal, external), bookingID); err != nil {
			return err
		}
		if err := s.checkDailyCap(storeCtx, tx, policy, loc, start, bookingID); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.Reschedule(storeCtx, bookingID, start, end, at); err != nil {
			return err
		}
		previous = current.StartAt
		current.StartAt = start
		current.EndAt = end
		current.Status = models.BookingConfirmed
		current.RescheduledAt = &at
		current.UpdatedAt = at
		updated = current
		return nil
	})
	if err != nil {
		return nil, time.Time{}, mapStoreError(storeCtx, err, "reschedule booking")
	}

	s.logger.Info("booking rescheduled",
		zap.String("booking_id", bookingID),
		zap.Time("from", previous),
		zap.Time("to", start))
	return updated, previous, nil
}

// Get returns one of the host's bookings.
func (s *BookingService) Get(ctx context.Context, bookingID, hostID string) (*models.Booking, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	booking, err := s.store.FindByID(storeCtx, bookingID)
	if err != nil {
		return nil, mapStoreError(storeCtx, err, "load booking")
	}
	if booking.HostID != hostID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	return booking, nil
}

// ListByHost returns a page of the host's bookings. Dates are UTC and inclusive.
func (s *BookingService) ListByHost(ctx context.Context, hostID string, query dto.ListBookingsQuery) ([]models.Booking, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, withCause(appErrors.ErrValidation, "invalid booking filter", err)
	}
	filter := models.BookingFilter{HostID: hostID, Page: query.Page, PageSize: query.PageSize}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if query.Status != "" {
		status := models.BookingStatus(query.Status)
		filter.Status = &status
	}
	if query.From != "" {
		from, err := models.ParseLocalDate(query.From)
		if err != nil {
			return nil, nil, withCause(appErrors.ErrValidation, "invalid from date", err)
		}
		t := availability.ToInstant(from, 0, time.UTC)
		filter.From = &t
	}
	if query.To != "" {
		to, err := models.ParseLocalDate(query.To)
		if err != nil {
			return nil, nil, withCause(appErrors.ErrValidation, "invalid to date", err)
		}
		t := availability.ToInstant(to.AddDays(1), 0, time.UTC)
		filter.To = &t
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	bookings, total, err := s.store.ListByHost(storeCtx, filter)
	if err != nil {
		return nil, nil, mapStoreError(storeCtx, err, "list bookings")
	}
	return bookings, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *BookingService) authorised(b *models.Booking, actor models.CancelActor, proof AuthProof) bool {
	switch actor {
	case models.CancelledByHost:
		return proof.HostID != "" && proof.HostID == b.HostID
	case models.CancelledByInvitee:
		if proof.Token == "" || b.CancelTokenHash == "" {
			return false
		}
		return s.tokens.Verify(proof.Token, b.CancelTokenHash) == nil
	}
	return false
}

func (s *BookingService) checkDailyCap(ctx context.Context, tx repository.BookingTx, policy *models.SchedulePolicy, loc *time.Location, start time.Time, excludeID string) error {
	if policy.MaxBookingsPerDay == nil {
		return nil
	}
	dayStart, dayEnd := availability.DayBounds(models.DateOf(start.In(loc)), loc)
	count, err := tx.CountConfirmedBetween(ctx, policy.EventTypeID, dayStart, dayEnd, excludeID)
	if err != nil {
		return err
	}
	if count >= *policy.MaxBookingsPerDay {
		return appErrors.Clone(appErrors.ErrConflict, "daily booking limit reached")
	}
	return nil
}

func (s *BookingService) afterCreate(ctx context.Context, booking *models.Booking) {
	sideCtx := detach(ctx)
	if s.events != nil {
		if ext := s.events.CreateEvent(sideCtx, booking.HostID, s.calendarEvent(sideCtx, booking)); ext != nil {
			booking.ExternalEventID = &ext.ID
			booking.JoinURL = ext.JoinURL
			storeCtx, cancel := context.WithTimeout(sideCtx, s.cfg.StoreTimeout)
			if err := s.store.SetExternalEvent(storeCtx, booking.ID, ext.ID, ext.JoinURL); err != nil {
				s.metrics.RecordSideEffectFailure("persist_external_event")
				s.logger.Warn("failed to persist external event id",
					zap.String("booking_id", booking.ID),
					zap.Error(err))
			}
			cancel()
		}
	}
	s.notify(ctx, notification.KindCreated, booking, nil)
}

func (s *BookingService) calendarEvent(ctx context.Context, b *models.Booking) calendar.Event {
	title := "Meeting with " + b.InviteeName
	if policy, err := loadPolicy(ctx, s.policies, s.cfg.StoreTimeout, b.EventTypeID); err == nil && policy.Title != "" {
		title = policy.Title + ": " + b.InviteeName
	}
	description := ""
	if b.JoinURL != nil {
		description = "Join: " + *b.JoinURL
	}
	return calendar.Event{
		BookingID:    b.ID,
		Title:        title,
		Description:  description,
		InviteeName:  b.InviteeName,
		InviteeEmail: b.InviteeEmail,
		Start:        b.StartAt,
		End:          b.EndAt,
		Timezone:     b.InviteeTimezone,
	}
}

func (s *BookingService) notify(ctx context.Context, kind notification.Kind, booking *models.Booking, previousStart *time.Time) {
	if s.notifier == nil {
		return
	}
	n := notification.FromBooking(kind, booking)
	n.PreviousStart = previousStart
	s.notifier.Dispatch(detach(ctx), n)
}

func (s *BookingService) finish(span trace.Span, operation string, err error) {
	outcome := "OK"
	if err != nil {
		outcome = appErrors.FromError(err).Code
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	s.metrics.RecordBookingOutcome(operation, outcome)
}

func transitionAllowed(status models.BookingStatus) error {
	switch status {
	case models.BookingConfirmed:
		return nil
	case models.BookingCancelled:
		return appErrors.ErrAlreadyCancelled
	default:
		return appErrors.ErrInvalidState
	}
}

// withoutOwnEvent drops the external intervals that mirror the booking being
// moved, matched by calendar event id or by the booking id stamped on the event.
func withoutOwnEvent(busy []models.BusyInterval, b *models.Booking) []models.BusyInterval {
	kept := busy[:0:0]
	for _, iv := range busy {
		if iv.Source == models.BusySourceExternal {
			if b.ExternalEventID != nil && iv.ExternalID == *b.ExternalEventID {
				continue
			}
			if iv.BookingID != "" && iv.BookingID == b.ID {
				continue
			}
		}
		kept = append(kept, iv)
	}
	return kept
}

func normaliseResponses(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []byte("{}"), nil
	}
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "responses must be a JSON object")
	}
	return []byte(trimmed), nil
}

// detach keeps trace values but drops the request deadline so post-commit
// side effects are bounded only by their own timeouts.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

var (
	_ tokenIssuer = (*captoken.Issuer)(nil)
	_ eventSink   = (*calendar.BestEffort)(nil)
)
