package availability

import (
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

// CheckDay reports whether the host-local date may be offered at all.
// It returns ErrPast or ErrOutOfRange, or nil when the date is bookable.
func CheckDay(policy *models.SchedulePolicy, date models.LocalDate, now time.Time, loc *time.Location) error {
	today := models.DateOf(now.In(loc))
	if date.Before(today) {
		return appErrors.ErrPast
	}

	switch policy.Range.Type {
	case models.RangeRolling:
		if date.After(today.AddDays(policy.Range.RollingDays)) {
			return appErrors.ErrOutOfRange
		}
	case models.RangeFixed:
		if policy.Range.StartDate != nil && date.Before(*policy.Range.StartDate) {
			return appErrors.ErrOutOfRange
		}
		if policy.Range.EndDate != nil && date.After(*policy.Range.EndDate) {
			return appErrors.ErrOutOfRange
		}
	}
	return nil
}

// CheckNotice reports ErrTooSoon when start does not lie strictly after now+minNotice.
func CheckNotice(policy *models.SchedulePolicy, start, now time.Time) error {
	if !start.After(now.Add(policy.MinNotice)) {
		return appErrors.ErrTooSoon
	}
	return nil
}

// CheckTarget validates an explicit booking attempt at start. Day rules are
// checked on the host-local date of start, then the notice rule, then the
// requirement that start is an offered slot of that day.
func CheckTarget(policy *models.SchedulePolicy, start, now time.Time, loc *time.Location) error {
	date := models.DateOf(start.In(loc))
	if err := CheckDay(policy, date, now, loc); err != nil {
		return err
	}
	if err := CheckNotice(policy, start, now); err != nil {
		return err
	}
	if !IsOfferedStart(policy, date, start, loc) {
		return appErrors.ErrSlotUnavailable
	}
	return nil
}

// IsOfferedStart reports whether start is the projected start of a generated slot on date.
func IsOfferedStart(policy *models.SchedulePolicy, date models.LocalDate, start time.Time, loc *time.Location) bool {
	for _, slot := range GenerateSlots(policy.Weekly.For(date.Weekday()), policy.Duration, policy.Interval) {
		if ToInstant(date, slot.StartMinute, loc).Equal(start) {
			return true
		}
	}
	return false
}
