package availability

import (
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// DayCandidates returns the bookable-looking slots of one host-local date
// before busy time is considered. Days failing the range rules yield nil;
// individual slots inside the notice period are skipped.
func DayCandidates(policy *models.SchedulePolicy, date models.LocalDate, now time.Time, loc *time.Location) []Slot {
	if CheckDay(policy, date, now, loc) != nil {
		return nil
	}

	generated := GenerateSlots(policy.Weekly.For(date.Weekday()), policy.Duration, policy.Interval)
	slots := make([]Slot, 0, len(generated))
	for _, c := range generated {
		start, end := SlotInstant(date, c, policy.Duration, loc)
		if CheckNotice(policy, start, now) != nil {
			continue
		}
		slots = append(slots, Slot{Date: date, Start: start, End: end})
	}
	return DedupeByStart(slots)
}

// DayBounds returns the absolute instants of host-local midnight to midnight.
func DayBounds(date models.LocalDate, loc *time.Location) (time.Time, time.Time) {
	return ToInstant(date, 0, loc), ToInstant(date.AddDays(1), 0, loc)
}
