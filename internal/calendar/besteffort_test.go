package calendar

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/models"
)

type busyFunc func(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error)

func (f busyFunc) BusyIntervals(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error) {
	return f(ctx, hostID, from, to)
}

type recorderStub struct {
	calls map[string][]bool
}

func (r *recorderStub) RecordExternalCalendar(op string, ok bool) {
	if r.calls == nil {
		r.calls = map[string][]bool{}
	}
	r.calls[op] = append(r.calls[op], ok)
}

type writerStub struct {
	created *ExternalEvent
	err     error
	deleted []string
}

func (w *writerStub) CreateEvent(ctx context.Context, hostID string, ev Event) (*ExternalEvent, error) {
	return w.created, w.err
}

func (w *writerStub) UpdateEvent(ctx context.Context, hostID, externalID string, ev Event) error {
	return w.err
}

func (w *writerStub) DeleteEvent(ctx context.Context, hostID, externalID string) error {
	w.deleted = append(w.deleted, externalID)
	return w.err
}

func TestBestEffortBusyReturnsIntervals(t *testing.T) {
	start := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	provider := busyFunc(func(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error) {
		return []models.BusyInterval{{Start: start, End: start.Add(time.Hour)}}, nil
	})
	rec := &recorderStub{}
	be := NewBestEffort(provider, nil, time.Second, nil, rec)

	busy := be.BusyIntervals(context.Background(), "host-1", start, start.Add(24*time.Hour))

	require.Len(t, busy, 1)
	assert.Equal(t, models.BusySourceExternal, busy[0].Source)
	assert.Equal(t, []bool{true}, rec.calls["busy"])
}

func TestBestEffortBusyDegradesOnError(t *testing.T) {
	provider := busyFunc(func(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error) {
		return nil, errors.New("provider down")
	})
	rec := &recorderStub{}
	be := NewBestEffort(provider, nil, time.Second, nil, rec)

	busy := be.BusyIntervals(context.Background(), "host-1", time.Now(), time.Now().Add(time.Hour))

	assert.Empty(t, busy)
	assert.Equal(t, []bool{false}, rec.calls["busy"])
}

func TestBestEffortBusyDegradesOnTimeout(t *testing.T) {
	provider := busyFunc(func(ctx context.Context, hostID string, from, to time.Time) ([]models.BusyInterval, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	be := NewBestEffort(provider, nil, 20*time.Millisecond, nil, nil)

	began := time.Now()
	busy := be.BusyIntervals(context.Background(), "host-1", time.Now(), time.Now().Add(time.Hour))

	assert.Empty(t, busy)
	assert.Less(t, time.Since(began), time.Second)
}

func TestBestEffortWritesSwallowFailures(t *testing.T) {
	writer := &writerStub{err: errors.New("boom")}
	rec := &recorderStub{}
	be := NewBestEffort(nil, writer, time.Second, nil, rec)

	assert.Nil(t, be.CreateEvent(context.Background(), "host-1", Event{BookingID: "b-1"}))
	be.UpdateEvent(context.Background(), "host-1", "ext-1", Event{BookingID: "b-1"})
	be.DeleteEvent(context.Background(), "host-1", "ext-1")
	be.DeleteEvent(context.Background(), "host-1", "")

	assert.Equal(t, []string{"ext-1"}, writer.deleted)
	assert.Equal(t, []bool{false}, rec.calls["create"])
	assert.Equal(t, []bool{false}, rec.calls["update"])
	assert.Equal(t, []bool{false}, rec.calls["delete"])
}

func TestBestEffortNotConnectedIsQuiet(t *testing.T) {
	writer := &writerStub{err: ErrNotConnected}
	rec := &recorderStub{}
	be := NewBestEffort(nil, writer, time.Second, nil, rec)

	assert.Nil(t, be.CreateEvent(context.Background(), "host-1", Event{}))
	assert.Empty(t, rec.calls)
}

type connStoreStub struct {
	conn *models.CalendarConnection
	err  error
}

func (s connStoreStub) FindByHost(ctx context.Context, hostID string) (*models.CalendarConnection, error) {
	return s.conn, s.err
}

type hostCalendarStub struct {
	busy []models.BusyInterval
}

func (h *hostCalendarStub) Busy(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error) {
	return h.busy, nil
}

func (h *hostCalendarStub) Create(ctx context.Context, ev Event) (*ExternalEvent, error) {
	link := "https://meet.example.com/" + ev.BookingID
	return &ExternalEvent{ID: "ext-" + ev.BookingID, JoinURL: &link}, nil
}

func (h *hostCalendarStub) Update(ctx context.Context, externalID string, ev Event) error { return nil }

func (h *hostCalendarStub) Delete(ctx context.Context, externalID string) error { return nil }

func TestRouterDispatchesByProvider(t *testing.T) {
	start := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	stub := &hostCalendarStub{busy: []models.BusyInterval{{Start: start, End: start.Add(time.Hour)}}}
	router := NewRouter(connStoreStub{conn: &models.CalendarConnection{HostID: "host-1", Provider: models.ProviderGoogle}},
		map[string]Factory{models.ProviderGoogle: func(ctx context.Context, conn *models.CalendarConnection) (HostCalendar, error) {
			return stub, nil
		}}, nil)

	busy, err := router.BusyIntervals(context.Background(), "host-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 1)

	created, err := router.CreateEvent(context.Background(), "host-1", Event{BookingID: "b-1"})
	require.NoError(t, err)
	assert.Equal(t, "ext-b-1", created.ID)
	require.NotNil(t, created.JoinURL)
}

func TestRouterWithoutConnection(t *testing.T) {
	router := NewRouter(connStoreStub{err: sql.ErrNoRows}, nil, nil)

	busy, err := router.BusyIntervals(context.Background(), "host-1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)

	_, err = router.CreateEvent(context.Background(), "host-1", Event{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRouterUnsupportedProvider(t *testing.T) {
	router := NewRouter(connStoreStub{conn: &models.CalendarConnection{Provider: "exchange"}}, map[string]Factory{}, nil)

	_, err := router.BusyIntervals(context.Background(), "host-1", time.Now(), time.Now().Add(time.Hour))
	assert.Error(t, err)
}
