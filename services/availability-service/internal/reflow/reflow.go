// Package reflow computes which slots of a day remain open once bookings that
// run past their own slot are taken into account.
//
// Slots and bookings are merged in start order. Every booking that starts at
// or before a slot pushes a shared cursor to its end time; the slot is then
// offered from max(slot start, cursor). Slots left with less than the minimum
// service duration are dropped. Slots that keep enough time but are booked
// themselves stay in the result as unavailable.
package reflow

import (
	"cmp"
	"slices"

	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/clock"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
)

// Slot is a retained slot with its shifted start time.
type Slot struct {
	model.TimeSlot
	DisplayTime string
	Available   bool
	// Remaining is the usable time in minutes from DisplayTime to the slot end.
	Remaining int
}

type outcome uint8

const (
	excluded outcome = iota
	includedUnavailable
	includedAvailable
)

type timedSlot struct {
	slot       model.TimeSlot
	start, end int
}

type span struct {
	start, end int
}

// Reflow returns the slots that can still host a service of
// minServiceDuration minutes, in ascending start order.
//
// The inputs are not modified. A booking that starts after the last slot's
// start is never folded into the cursor. A minServiceDuration of zero or less
// keeps every slot whose remaining time is at least that value.
func Reflow(slots []model.TimeSlot, bookings []model.Booking, minServiceDuration int) []Slot {
	ordered := make([]timedSlot, len(slots))
	for i, s := range slots {
		ordered[i] = timedSlot{slot: s, start: clock.ToMinutes(s.StartTime), end: clock.ToMinutes(s.EndTime)}
	}
	slices.SortStableFunc(ordered, func(a, b timedSlot) int { return cmp.Compare(a.start, b.start) })

	spans := make([]span, len(bookings))
	for i, b := range bookings {
		spans[i] = span{start: clock.ToMinutes(b.StartTime), end: clock.ToMinutes(b.EndTime)}
	}
	slices.SortStableFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })

	out := make([]Slot, 0, len(ordered))
	shift := 0
	next := 0
	for _, ts := range ordered {
		for next < len(spans) && spans[next].start <= ts.start {
			shift = max(shift, spans[next].end)
			next++
		}

		displayStart := max(ts.start, shift)
		remaining := ts.end - displayStart

		switch evaluate(ts.slot, remaining, minServiceDuration) {
		case excluded:
			continue
		case includedUnavailable:
			out = append(out, Slot{TimeSlot: ts.slot, DisplayTime: clock.FromMinutes(displayStart), Remaining: remaining})
		case includedAvailable:
			out = append(out, Slot{TimeSlot: ts.slot, DisplayTime: clock.FromMinutes(displayStart), Available: true, Remaining: remaining})
		}
	}
	return out
}

func evaluate(s model.TimeSlot, remaining, minServiceDuration int) outcome {
	if remaining < minServiceDuration {
		return excluded
	}
	if s.IsBooked {
		return includedUnavailable
	}
	return includedAvailable
}

// Summary counts a reflowed day.
type Summary struct {
	Retained  int
	Available int
}

// Summarize counts the retained slots of a reflowed day and how many of them
// are open for booking.
func Summarize(slots []Slot) Summary {
	var s Summary
	for _, slot := range slots {
		s.Retained++
		if slot.Available {
			s.Available++
		}
	}
	return s
}
