package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

func weekdayPolicy(loc *time.Location) *models.SchedulePolicy {
	var weekly models.WeeklyAvailability
	for d := time.Monday; d <= time.Friday; d++ {
		weekly[d] = []models.DayRange{{StartMinute: hm(9, 0), EndMinute: hm(17, 0)}}
	}
	return &models.SchedulePolicy{
		EventTypeID: "evt-1",
		HostID:      "host-1",
		Weekly:      weekly,
		Duration:    30 * time.Minute,
		Interval:    30 * time.Minute,
		Range:       models.RangePolicy{Type: models.RangeIndefinite},
		Timezone:    loc.String(),
		Location:    loc,
	}
}

func TestCheckDayPast(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	now := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)

	err := CheckDay(policy, models.LocalDate{Year: 2024, Month: time.June, Day: 4}, now, ny)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPast.Code))

	assert.NoError(t, CheckDay(policy, models.LocalDate{Year: 2024, Month: time.June, Day: 5}, now, ny))
}

func TestCheckDayUsesHostLocalToday(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	// 02:00 UTC on the 5th is still the 4th in New York.
	now := time.Date(2024, 6, 5, 2, 0, 0, 0, time.UTC)

	assert.NoError(t, CheckDay(policy, models.LocalDate{Year: 2024, Month: time.June, Day: 4}, now, ny))
}

func TestCheckDayRollingBoundIsInclusive(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	policy.Range = models.RangePolicy{Type: models.RangeRolling, RollingDays: 14}
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	today := models.LocalDate{Year: 2024, Month: time.June, Day: 3}

	assert.NoError(t, CheckDay(policy, today.AddDays(14), now, ny))
	err := CheckDay(policy, today.AddDays(15), now, ny)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrOutOfRange.Code))
}

func TestCheckDayExplicitRange(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	start := models.LocalDate{Year: 2024, Month: time.June, Day: 10}
	end := models.LocalDate{Year: 2024, Month: time.June, Day: 20}
	policy.Range = models.RangePolicy{Type: models.RangeFixed, StartDate: &start, EndDate: &end}
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

	assert.True(t, appErrors.HasCode(CheckDay(policy, start.AddDays(-1), now, ny), appErrors.ErrOutOfRange.Code))
	assert.NoError(t, CheckDay(policy, start, now, ny))
	assert.NoError(t, CheckDay(policy, end, now, ny))
	assert.True(t, appErrors.HasCode(CheckDay(policy, end.AddDays(1), now, ny), appErrors.ErrOutOfRange.Code))

	policy.Range.EndDate = nil
	assert.NoError(t, CheckDay(policy, end.AddDays(400), now, ny))
}

func TestCheckNoticeBoundary(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	policy.MinNotice = time.Hour
	now := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)

	assert.True(t, appErrors.HasCode(CheckNotice(policy, now.Add(time.Hour-time.Second), now), appErrors.ErrTooSoon.Code))
	assert.True(t, appErrors.HasCode(CheckNotice(policy, now.Add(time.Hour), now), appErrors.ErrTooSoon.Code))
	assert.NoError(t, CheckNotice(policy, now.Add(time.Hour+time.Second), now))
}

func TestCheckTargetRequiresOfferedSlot(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, CheckTarget(policy, time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC), now, ny))

	err := CheckTarget(policy, time.Date(2024, 6, 3, 14, 10, 0, 0, time.UTC), now, ny)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))

	// Saturday has no ranges.
	err = CheckTarget(policy, time.Date(2024, 6, 8, 14, 0, 0, 0, time.UTC), now, ny)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
}

func TestCheckTargetReportsPastBeforeNotice(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	policy := weekdayPolicy(ny)
	policy.MinNotice = 24 * time.Hour
	now := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)

	err := CheckTarget(policy, time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC), now, ny)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPast.Code))
}
