package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/dto"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type availabilityServiceMock struct {
	query dto.AvailabilityQuery
	id    string
	err   error
}

func (m *availabilityServiceMock) List(ctx context.Context, eventTypeID string, query dto.AvailabilityQuery) (*dto.AvailabilityResponse, error) {
	m.id = eventTypeID
	m.query = query
	if m.err != nil {
		return nil, m.err
	}
	return &dto.AvailabilityResponse{EventTypeID: eventTypeID, Days: []dto.AvailabilityDay{{Date: query.From}}}, nil
}

func TestAvailabilityHandlerList(t *testing.T) {
	svc := &availabilityServiceMock{}
	h := NewAvailabilityHandler(svc)
	c, w := newContext(http.MethodGet, "/event-types/et-1/availability?from=2024-06-03&to=2024-06-04&timezone=Europe/Berlin", nil)
	c.Params = gin.Params{{Key: "id", Value: "et-1"}}

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "et-1", svc.id)
	assert.Equal(t, "Europe/Berlin", svc.query.Timezone)
	assert.Contains(t, w.Body.String(), `"date":"2024-06-03"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAvailabilityHandlerPropagatesErrors(t *testing.T) {
	svc := &availabilityServiceMock{err: appErrors.ErrNotFound}
	h := NewAvailabilityHandler(svc)
	c, w := newContext(http.MethodGet, "/event-types/nope/availability?from=2024-06-03&to=2024-06-03", nil)

	h.List(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.err = errors.New("boom")
	c, w = newContext(http.MethodGet, "/event-types/nope/availability?from=2024-06-03&to=2024-06-03", nil)
	h.List(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}
