package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/repository"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

func withCause(base *appErrors.Error, message string, cause error) *appErrors.Error {
	e := appErrors.Clone(base, message)
	e.Err = cause
	return e
}

// mapStoreError turns a store failure into the caller-visible taxonomy. Typed
// errors raised inside a transaction pass through untouched.
func mapStoreError(ctx context.Context, err error, action string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return withCause(appErrors.ErrTimeout, action+" timed out", err)
	case errors.Is(err, repository.ErrBookingOverlap):
		return withCause(appErrors.ErrConflict, "", err)
	case errors.Is(err, sql.ErrNoRows):
		return withCause(appErrors.ErrNotFound, "booking not found", err)
	}
	return withCause(appErrors.ErrInternal, "failed to "+action, err)
}

// loadPolicy resolves an event type's policy within the store timeout.
func loadPolicy(ctx context.Context, policies policySource, timeout time.Duration, eventTypeID string) (*models.SchedulePolicy, error) {
	policyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	policy, err := policies.Get(policyCtx, eventTypeID)
	if err != nil {
		return nil, mapStoreError(policyCtx, err, "load event type")
	}
	return policy, nil
}
