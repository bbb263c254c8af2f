package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/calendar"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/notification"
	"github.com/noah-isme/slotbook-api/internal/repository"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

// memoryStore keeps committed bookings in memory and serialises host locks
// the way the advisory lock does.
type memoryStore struct {
	mu        sync.Mutex
	bookings  map[string]*models.Booking
	hostLocks map[string]*sync.Mutex

	blockLock   bool
	externalIDs map[string]string
	setExtErr   error
	listErr     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bookings:    map[string]*models.Booking{},
		hostLocks:   map[string]*sync.Mutex{},
		externalIDs: map[string]string{},
	}
}

func (s *memoryStore) seed(b models.Booking) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BookingConfirmed
	}
	s.bookings[b.ID] = &b
	return &b
}

func (s *memoryStore) get(id string) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (s *memoryStore) confirmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.Status == models.BookingConfirmed {
			n++
		}
	}
	return n
}

func (s *memoryStore) hostLock(hostID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.hostLocks[hostID]
	if !ok {
		l = &sync.Mutex{}
		s.hostLocks[hostID] = l
	}
	return l
}

func (s *memoryStore) InTx(ctx context.Context, fn func(repository.BookingTx) error) error {
	tx := &memoryTx{store: s, staged: map[string]*models.Booking{}}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if b := s.get(id); b != nil {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryStore) ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.HostID == hostID && b.Status == models.BookingConfirmed && b.StartAt.Before(to) && b.EndAt.After(from) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memoryStore) CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.EventTypeID == eventTypeID && b.Status == models.BookingConfirmed && b.ID != excludeID &&
			!b.StartAt.Before(from) && b.StartAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) SetExternalEvent(ctx context.Context, id, externalID string, joinURL *string) error {
	if s.setExtErr != nil {
		return s.setExtErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalIDs[id] = externalID
	if b, ok := s.bookings[id]; ok {
		b.ExternalEventID = &externalID
		b.JoinURL = joinURL
	}
	return nil
}

func (s *memoryStore) ListByHost(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.HostID != filter.HostID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, len(out), nil
}

type memoryTx struct {
	store  *memoryStore
	locked []*sync.Mutex
	staged map[string]*models.Booking
}

func (t *memoryTx) release() {
	for _, l := range t.locked {
		l.Unlock()
	}
}

func (t *memoryTx) LockHost(ctx context.Context, hostID string) error {
	if t.store.blockLock {
		<-ctx.Done()
		return ctx.Err()
	}
	l := t.store.hostLock(hostID)
	l.Lock()
	t.locked = append(t.locked, l)
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return t.store.FindByID(ctx, id)
}

func (t *memoryTx) ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error) {
	return t.store.ListConfirmedBetween(ctx, hostID, from, to)
}

func (t *memoryTx) CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error) {
	return t.store.CountConfirmedBetween(ctx, eventTypeID, from, to, excludeID)
}

func (t *memoryTx) Insert(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	t.staged[b.ID] = &cp
	return nil
}

func (t *memoryTx) Reschedule(ctx context.Context, id string, start, end, at time.Time) error {
	b := t.store.get(id)
	if b == nil {
		return sql.ErrNoRows
	}
	b.StartAt, b.EndAt, b.Status, b.RescheduledAt = start, end, models.BookingConfirmed, &at
	t.staged[id] = b
	return nil
}

func (t *memoryTx) Cancel(ctx context.Context, id string, actor models.CancelActor, reason *string, at time.Time) error {
	b := t.store.get(id)
	if b == nil {
		return sql.ErrNoRows
	}
	b.Status, b.CancelledBy, b.CancellationReason, b.CancelledAt = models.BookingCancelled, &actor, reason, &at
	t.staged[id] = b
	return nil
}

type staticPolicies struct {
	policies map[string]*models.SchedulePolicy
}

func (p staticPolicies) Get(ctx context.Context, id string) (*models.SchedulePolicy, error) {
	if policy, ok := p.policies[id]; ok {
		return policy, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "event type not found")
}

// stalledPolicies never answers before the caller's deadline.
type stalledPolicies struct{}

func (stalledPolicies) Get(ctx context.Context, id string) (*models.SchedulePolicy, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(3 * time.Second):
		return nil, errors.New("policy source did not honour the deadline")
	}
}

type externalStub struct {
	busy  []models.BusyInterval
	calls int
	mu    sync.Mutex
}

func (e *externalStub) BusyIntervals(ctx context.Context, hostID string, from, to time.Time) []models.BusyInterval {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.busy
}

type sinkStub struct {
	mu      sync.Mutex
	created *calendar.ExternalEvent
	creates []calendar.Event
	updates []string
	deletes []string
}

func (s *sinkStub) CreateEvent(ctx context.Context, hostID string, ev calendar.Event) *calendar.ExternalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, ev)
	return s.created
}

func (s *sinkStub) UpdateEvent(ctx context.Context, hostID, externalID string, ev calendar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, externalID)
}

func (s *sinkStub) DeleteEvent(ctx context.Context, hostID, externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, externalID)
}

type dispatcherStub struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (d *dispatcherStub) Dispatch(ctx context.Context, n notification.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *dispatcherStub) kinds() []notification.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notification.Kind, 0, len(d.sent))
	for _, n := range d.sent {
		out = append(out, n.Kind)
	}
	return out
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// weekdayPolicy offers 30 minute slots 09:00-17:00 Monday to Friday in New York.
func weekdayPolicy(t *testing.T) *models.SchedulePolicy {
	loc := newYork(t)
	policy := &models.SchedulePolicy{
		EventTypeID: "et-1",
		HostID:      "host-1",
		Title:       "Intro call",
		Duration:    30 * time.Minute,
		Interval:    30 * time.Minute,
		Range:       models.RangePolicy{Type: models.RangeRolling, RollingDays: 30},
		Timezone:    loc.String(),
		Location:    loc,
	}
	for day := time.Monday; day <= time.Friday; day++ {
		policy.Weekly[day] = []models.DayRange{{StartMinute: 9 * 60, EndMinute: 17 * 60}}
	}
	return policy
}

// mondayAt returns 2024-06-03 hh:mm New York time.
func mondayAt(t *testing.T, hour, minute int) time.Time {
	return time.Date(2024, 6, 3, hour, minute, 0, 0, newYork(t))
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}
