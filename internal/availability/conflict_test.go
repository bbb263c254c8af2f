package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/slotbook-api/internal/models"
)

func at(h, m int) time.Time {
	return time.Date(2024, 6, 3, h, m, 0, 0, time.UTC)
}

func TestConflictsAppliesSlotBuffers(t *testing.T) {
	busy := models.BusyInterval{Start: at(10, 0), End: at(10, 30)}
	before, after := 10*time.Minute, 5*time.Minute

	assert.True(t, Conflicts(at(9, 55), at(10, 25), busy, before, after))
	assert.False(t, Conflicts(at(10, 36), at(11, 0), busy, before, after))
	// Ends exactly at busy.Start-before: touching is allowed.
	assert.False(t, Conflicts(at(9, 20), at(9, 50), busy, before, after))
	// Starts exactly at busy.End+after.
	assert.False(t, Conflicts(at(10, 35), at(11, 0), busy, before, after))
	assert.True(t, Conflicts(at(10, 34), at(11, 0), busy, before, after))
}

func TestConflictsWithoutBuffersIsHalfOpen(t *testing.T) {
	busy := models.BusyInterval{Start: at(10, 0), End: at(10, 30)}

	assert.False(t, Conflicts(at(9, 30), at(10, 0), busy, 0, 0))
	assert.False(t, Conflicts(at(10, 30), at(11, 0), busy, 0, 0))
	assert.True(t, Conflicts(at(10, 15), at(10, 45), busy, 0, 0))
}

func TestFilterFreeKeepsOrder(t *testing.T) {
	slots := []Slot{
		{Start: at(9, 0), End: at(9, 30)},
		{Start: at(9, 30), End: at(10, 0)},
		{Start: at(10, 0), End: at(10, 30)},
	}
	busy := []models.BusyInterval{{Start: at(9, 30), End: at(10, 0), Source: models.BusySourceExternal}}

	free := FilterFree(slots, busy, 0, 0)

	require.Len(t, free, 2)
	assert.Equal(t, at(9, 0), free[0].Start)
	assert.Equal(t, at(10, 0), free[1].Start)
}

func TestMergeBusyDropsEmptyAndSorts(t *testing.T) {
	internal := []models.BusyInterval{{Start: at(13, 0), End: at(13, 30), Source: models.BusySourceInternal}}
	external := []models.BusyInterval{
		{Start: at(9, 0), End: at(9, 0), Source: models.BusySourceExternal},
		{Start: at(8, 0), End: at(8, 30), Source: models.BusySourceExternal},
	}

	merged := MergeBusy(internal, external)

	require.Len(t, merged, 2)
	assert.Equal(t, at(8, 0), merged[0].Start)
	assert.Equal(t, models.BusySourceInternal, merged[1].Source)
}

func TestExcludeBookingOnlyDropsOwnInternalInterval(t *testing.T) {
	busy := []models.BusyInterval{
		{Start: at(9, 0), End: at(9, 30), Source: models.BusySourceInternal, BookingID: "b-1"},
		{Start: at(9, 0), End: at(9, 30), Source: models.BusySourceExternal},
		{Start: at(10, 0), End: at(10, 30), Source: models.BusySourceInternal, BookingID: "b-2"},
	}

	kept := ExcludeBooking(busy, "b-1")

	require.Len(t, kept, 2)
	assert.Equal(t, models.BusySourceExternal, kept[0].Source)
	assert.Equal(t, "b-2", kept[1].BookingID)
	assert.Len(t, ExcludeBooking(busy, ""), 3)
}

func TestBusyWindowCoversBuffers(t *testing.T) {
	from, to := BusyWindow(at(9, 0), at(17, 0), 15*time.Minute, 10*time.Minute)

	assert.Equal(t, at(8, 50), from)
	assert.Equal(t, at(17, 15), to)
}
