package schedule

import "time"

const (
	MinStepMinutes     = 15
	MaxStepMinutes     = 240
	DefaultStepMinutes = 60
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a derived, non-persisted candidate booking window. It is always
// recomputed from the tutor's weekly availability plus current sessions.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// DayWindow is one weekday's availability configuration: an open interval in
// minutes from midnight, tutor-local.
type DayWindow struct {
	Available   bool
	StartMinute int
	EndMinute   int
}

// ClampStep bounds a caller-supplied slot step to [15, 240] minutes,
// defaulting to 60 when unset.
func ClampStep(step int) int {
	if step == 0 {
		return DefaultStepMinutes
	}
	if step < MinStepMinutes {
		return MinStepMinutes
	}
	if step > MaxStepMinutes {
		return MaxStepMinutes
	}
	return step
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ResolveDaySlots expands a weekday window into the candidate slot grid for
// the calendar day of day in loc. A missing or closed window yields no slots;
// a closed day is policy, not an error. Slots are contiguous, non-overlapping
// step-minute windows fully contained in the configured interval, ordered by
// start time; a trailing partial window is dropped. The Available baseline is
// "starts after now"; MarkBusy applies conflict filtering on top.
func ResolveDaySlots(win DayWindow, day time.Time, loc *time.Location, stepMinutes int, now time.Time) []Slot {
	if !win.Available || win.StartMinute >= win.EndMinute || stepMinutes <= 0 {
		return nil
	}

	var slots []Slot
	for m := win.StartMinute; m+stepMinutes <= win.EndMinute; m += stepMinutes {
		start := MinuteOfDay(day, m, loc)
		end := MinuteOfDay(day, m+stepMinutes, loc)
		slots = append(slots, Slot{
			Start:     start,
			End:       end,
			Available: start.After(now),
		})
	}
	return slots
}

// MarkBusy clears Available on every slot whose window overlaps any busy
// interval. Busy intervals come from the tutor's confirmed or running
// sessions for the day; pending and cancelled sessions never block a slot.
func MarkBusy(slots []Slot, busy []Interval) []Slot {
	for i := range slots {
		if !slots[i].Available {
			continue
		}
		for _, b := range busy {
			if Overlaps(slots[i].Start, slots[i].End, b.Start, b.End) {
				slots[i].Available = false
				break
			}
		}
	}
	return slots
}

// WindowBounds returns the absolute [start, end) instants of a weekday window
// on the calendar day of day in loc.
func WindowBounds(win DayWindow, day time.Time, loc *time.Location) (time.Time, time.Time) {
	return MinuteOfDay(day, win.StartMinute, loc), MinuteOfDay(day, win.EndMinute, loc)
}

// WithinWindow reports whether [start, start+duration) is fully contained in
// the weekday window on start's calendar day in loc.
func WithinWindow(win DayWindow, start time.Time, duration time.Duration, loc *time.Location) bool {
	if !win.Available {
		return false
	}
	winStart, winEnd := WindowBounds(win, start, loc)
	end := start.Add(duration)
	return !start.Before(winStart) && !end.After(winEnd)
}
