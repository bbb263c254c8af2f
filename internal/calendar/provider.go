// Package calendar adapts external calendar accounts (Google, CalDAV) into
// busy-time reads and booking event writes.
package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// ErrNotConnected is returned when a host has no external calendar.
var ErrNotConnected = errors.New("host has no external calendar connection")

// Event is the external representation of a booking.
type Event struct {
	BookingID    string
	Title        string
	Description  string
	InviteeName  string
	InviteeEmail string
	Start        time.Time
	End          time.Time
	Timezone     string
}

// ExternalEvent identifies an event created in the host's calendar.
type ExternalEvent struct {
	ID      string
	JoinURL *string
}

// BusyTimeProvider lists a host's external busy intervals in [from, to).
type BusyTimeProvider interface {
	BusyIntervals(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error)
}

// EventWriter mirrors bookings into a host's external calendar.
type EventWriter interface {
	CreateEvent(ctx context.Context, hostID string, ev Event) (*ExternalEvent, error)
	UpdateEvent(ctx context.Context, hostID, externalID string, ev Event) error
	DeleteEvent(ctx context.Context, hostID, externalID string) error
}

// HostCalendar is one connected calendar account.
type HostCalendar interface {
	Busy(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error)
	Create(ctx context.Context, ev Event) (*ExternalEvent, error)
	Update(ctx context.Context, externalID string, ev Event) error
	Delete(ctx context.Context, externalID string) error
}

// Factory opens a HostCalendar for a stored connection.
type Factory func(ctx context.Context, conn *models.CalendarConnection) (HostCalendar, error)

type connectionStore interface {
	FindByHost(ctx context.Context, hostID string) (*models.CalendarConnection, error)
}

// Router resolves a host's connection and dispatches to the provider factory.
type Router struct {
	store     connectionStore
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRouter builds a router over the registered provider factories.
func NewRouter(store connectionStore, factories map[string]Factory, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, factories: factories, logger: logger}
}

func (r *Router) open(ctx context.Context, hostID string) (HostCalendar, error) {
	conn, err := r.store.FindByHost(ctx, hostID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load calendar connection: %w", err)
	}
	factory, ok := r.factories[conn.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported calendar provider %q", conn.Provider)
	}
	return factory(ctx, conn)
}

// BusyIntervals implements BusyTimeProvider. Unconnected hosts have no external busy time.
func (r *Router) BusyIntervals(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error) {
	cal, err := r.open(ctx, hostID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, nil
		}
		return nil, err
	}
	return cal.Busy(ctx, from, to)
}

// CreateEvent implements EventWriter.
func (r *Router) CreateEvent(ctx context.Context, hostID string, ev Event) (*ExternalEvent, error) {
	cal, err := r.open(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return cal.Create(ctx, ev)
}

// UpdateEvent implements EventWriter.
func (r *Router) UpdateEvent(ctx context.Context, hostID, externalID string, ev Event) error {
	cal, err := r.open(ctx, hostID)
	if err != nil {
		return err
	}
	return cal.Update(ctx, externalID, ev)
}

// DeleteEvent implements EventWriter.
func (r *Router) DeleteEvent(ctx context.Context, hostID, externalID string) error {
	cal, err := r.open(ctx, hostID)
	if err != nil {
		return err
	}
	return cal.Delete(ctx, externalID)
}
