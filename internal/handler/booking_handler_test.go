package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/middleware"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/service"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type bookingServiceMock struct {
	createErr   error
	created     dto.CreateBookingRequest
	cancelActor models.CancelActor
	cancelProof service.AuthProof
	cancelErr   error
	rescheduled time.Time
	listQuery   dto.ListBookingsQuery
}

func (m *bookingServiceMock) Create(ctx context.Context, req dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	m.created = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &dto.CreateBookingResponse{
		Booking:     &models.Booking{ID: "bk-1", EventTypeID: req.EventTypeID, StartAt: req.Start, Status: models.BookingConfirmed},
		CancelToken: "token-1",
	}, nil
}

func (m *bookingServiceMock) Cancel(ctx context.Context, bookingID string, actor models.CancelActor, reason *string, proof service.AuthProof) (*models.Booking, error) {
	m.cancelActor = actor
	m.cancelProof = proof
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	return &models.Booking{ID: bookingID, Status: models.BookingCancelled}, nil
}

func (m *bookingServiceMock) Reschedule(ctx context.Context, bookingID string, newStart time.Time, hostID string) (*models.Booking, error) {
	m.rescheduled = newStart
	return &models.Booking{ID: bookingID, HostID: hostID, StartAt: newStart}, nil
}

func (m *bookingServiceMock) Get(ctx context.Context, bookingID, hostID string) (*models.Booking, error) {
	if bookingID != "bk-1" {
		return nil, appErrors.ErrNotFound
	}
	return &models.Booking{ID: bookingID, HostID: hostID}, nil
}

func (m *bookingServiceMock) ListByHost(ctx context.Context, hostID string, query dto.ListBookingsQuery) ([]models.Booking, *models.Pagination, error) {
	m.listQuery = query
	return []models.Booking{{ID: "bk-1", HostID: hostID}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

type exporterMock struct{}

func (exporterMock) Agenda(ctx context.Context, hostID string, query dto.ListBookingsQuery) (*dto.ExportFile, error) {
	return &dto.ExportFile{Filename: "agenda.csv", ContentType: "text/csv; charset=utf-8", Content: []byte("Start,End\n")}, nil
}

func newContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	return c, w
}

func asHost(c *gin.Context, hostID string) {
	c.Set(middleware.ContextUserKey, &models.HostClaims{HostID: hostID})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestBookingHandlerCreate(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	body := []byte(`{"start":"2024-06-03T13:00:00Z","inviteeName":"Ana","inviteeEmail":"ana@example.com"}`)
	c, w := newContext(http.MethodPost, "/event-types/et-1/bookings", body)
	c.Params = gin.Params{{Key: "id", Value: "et-1"}}

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "et-1", svc.created.EventTypeID)
	assert.Contains(t, w.Body.String(), `"cancelToken":"token-1"`)
}

func TestBookingHandlerCreateMapsDomainErrors(t *testing.T) {
	svc := &bookingServiceMock{createErr: appErrors.ErrConflict}
	h := NewBookingHandler(svc, exporterMock{})
	body := []byte(`{"start":"2024-06-03T13:00:00Z","inviteeName":"Ana","inviteeEmail":"ana@example.com"}`)
	c, w := newContext(http.MethodPost, "/event-types/et-1/bookings", body)

	h.Create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, w))
}

func TestBookingHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewBookingHandler(&bookingServiceMock{}, exporterMock{})
	c, w := newContext(http.MethodPost, "/event-types/et-1/bookings", []byte(`{"start":"yesterday"}`))

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w))
}

func TestBookingHandlerCancelAsInvitee(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodPost, "/bookings/bk-1/cancel", []byte(`{"cancelToken":"secret","reason":"sick"}`))
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}

	h.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CancelledByInvitee, svc.cancelActor)
	assert.Equal(t, "secret", svc.cancelProof.Token)
	assert.Empty(t, svc.cancelProof.HostID)
}

func TestBookingHandlerCancelAsHost(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodPost, "/bookings/bk-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}
	asHost(c, "host-1")

	h.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CancelledByHost, svc.cancelActor)
	assert.Equal(t, "host-1", svc.cancelProof.HostID)
}

func TestBookingHandlerCancelWithoutCredentials(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodPost, "/bookings/bk-1/cancel", []byte(`{}`))

	h.Cancel(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.cancelActor)
}

func TestBookingHandlerCancelAlreadyCancelled(t *testing.T) {
	svc := &bookingServiceMock{cancelErr: appErrors.ErrAlreadyCancelled}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodPost, "/bookings/bk-1/cancel", []byte(`{"cancelToken":"secret"}`))

	h.Cancel(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CANCELLED", decodeError(t, w))
}

func TestBookingHandlerRescheduleRequiresHost(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodPost, "/bookings/bk-1/reschedule", []byte(`{"start":"2024-06-04T14:00:00Z"}`))

	h.Reschedule(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newContext(http.MethodPost, "/bookings/bk-1/reschedule", []byte(`{"start":"2024-06-04T14:00:00Z"}`))
	c.Params = gin.Params{{Key: "id", Value: "bk-1"}}
	asHost(c, "host-1")

	h.Reschedule(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.rescheduled.Equal(time.Date(2024, 6, 4, 14, 0, 0, 0, time.UTC)))
}

func TestBookingHandlerGetNotFound(t *testing.T) {
	h := NewBookingHandler(&bookingServiceMock{}, exporterMock{})
	c, w := newContext(http.MethodGet, "/bookings/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	asHost(c, "host-1")

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingHandlerListBindsQuery(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc, exporterMock{})
	c, w := newContext(http.MethodGet, "/hosts/me/bookings?from=2024-06-01&status=confirmed&pageSize=5", nil)
	asHost(c, "host-1")

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-06-01", svc.listQuery.From)
	assert.Equal(t, "confirmed", svc.listQuery.Status)
	assert.Equal(t, 5, svc.listQuery.PageSize)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestBookingHandlerExportStreamsAttachment(t *testing.T) {
	h := NewBookingHandler(&bookingServiceMock{}, exporterMock{})
	c, w := newContext(http.MethodGet, "/hosts/me/bookings/export?format=csv", nil)
	asHost(c, "host-1")

	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="agenda.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Start,End\n", w.Body.String())
}
