// Package availability holds the pure scheduling rules: slot generation,
// range and notice checks, wall-clock projection and conflict detection.
package availability

import (
	"sort"
	"time"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// GenerateSlots walks each range from its start in steps of interval and
// emits [s, s+duration) while the slot still fits inside the range.
// Ranges are processed independently; trailing remainders are dropped.
func GenerateSlots(ranges []models.DayRange, duration, interval time.Duration) []models.CandidateSlot {
	durMin := int(duration / time.Minute)
	stepMin := int(interval / time.Minute)
	if durMin <= 0 || stepMin <= 0 {
		return nil
	}

	ordered := append([]models.DayRange(nil), ranges...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartMinute < ordered[j].StartMinute })

	var slots []models.CandidateSlot
	for _, r := range ordered {
		if !r.Valid() {
			continue
		}
		for start := r.StartMinute; start+durMin <= r.EndMinute; start += stepMin {
			slots = append(slots, models.CandidateSlot{StartMinute: start, EndMinute: start + durMin})
		}
	}
	return slots
}
