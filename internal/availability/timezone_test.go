package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/models"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestToInstantRegularDay(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	got := ToInstant(models.LocalDate{Year: 2024, Month: time.June, Day: 3}, hm(9, 0), ny)

	assert.True(t, got.Equal(time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)))
}

func TestToInstantRepeatedWallTimeUsesEarlierOffset(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	got := ToInstant(models.LocalDate{Year: 2024, Month: time.November, Day: 3}, hm(1, 30), ny)

	assert.True(t, got.Equal(time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)), "got %s", got.UTC())
	_, offset := got.Zone()
	assert.Equal(t, -4*3600, offset)
}

func TestToInstantNonexistentWallTimeShiftsToTransition(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	got := ToInstant(models.LocalDate{Year: 2024, Month: time.March, Day: 10}, hm(2, 30), ny)

	assert.True(t, got.Equal(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)), "got %s", got.UTC())
	assert.Equal(t, 3, got.Hour())
}

func TestToInstantMidnightEndOfDay(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	got := ToInstant(models.LocalDate{Year: 2024, Month: time.June, Day: 3}, models.MinutesPerDay, ny)

	assert.True(t, got.Equal(time.Date(2024, 6, 4, 4, 0, 0, 0, time.UTC)))
}

func TestSlotInstantEndIsStartPlusDuration(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	slot := models.CandidateSlot{StartMinute: hm(1, 30), EndMinute: hm(2, 0)}

	start, end := SlotInstant(models.LocalDate{Year: 2024, Month: time.November, Day: 3}, slot, 30*time.Minute, ny)

	assert.Equal(t, 30*time.Minute, end.Sub(start))
}

func TestPresentRendersInInviteeZone(t *testing.T) {
	tokyo := mustLoc(t, "Asia/Tokyo")
	instant := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)

	got := Present(instant, tokyo)

	assert.Equal(t, 22, got.Hour())
	assert.True(t, got.Equal(instant))
	assert.Equal(t, time.UTC, Present(instant, nil).Location())
}

func TestLoadLocationFallback(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	loc, err := LoadLocation("", ny)
	require.NoError(t, err)
	assert.Equal(t, ny, loc)

	_, err = LoadLocation("Mars/Olympus", ny)
	assert.Error(t, err)
}
