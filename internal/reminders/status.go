package reminders

import "time"

// DefaultCurrentWindow is how close to its slot a reminder counts as current
const DefaultCurrentWindow = 15 * time.Minute

// rebind moves the wall clock of scheduled, read in the zone it was stored
// with, onto now's calendar day in loc. The stored date is ignored so a set
// generated on install keeps working, and a 07:00 slot stays at 07:00 after
// the tracker's zone changes.
func rebind(scheduled, now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), scheduled.Hour(), scheduled.Minute(), scheduled.Second(), scheduled.Nanosecond(), loc)
}

// DeriveStatus computes the display status of r at now. Both instants are
// read in loc. The window bound is inclusive on both sides.
func DeriveStatus(r Reminder, now time.Time, loc *time.Location, window time.Duration) Status {
	if r.Done {
		return StatusCompleted
	}
	if loc == nil {
		loc = time.Local
	}

	at := rebind(r.ScheduledTime, now, loc)
	diff := at.Sub(now)
	if diff >= -window && diff <= window {
		return StatusCurrent
	}
	if at.Before(now) {
		return StatusMissed
	}
	return StatusUpcoming
}

// dueAt reports whether r is scheduled for the hour and minute of now
func dueAt(r Reminder, now time.Time, loc *time.Location) bool {
	n := now.In(loc)
	return r.ScheduledTime.Hour() == n.Hour() && r.ScheduledTime.Minute() == n.Minute()
}

// FilterByCategory keeps reminders of category c in their original order.
// CategoryAll returns a copy of the whole list.
func FilterByCategory(list []Reminder, c Category) []Reminder {
	out := make([]Reminder, 0, len(list))
	for _, r := range list {
		if c == CategoryAll || r.Category == c {
			out = append(out, r)
		}
	}
	return out
}

// CountUnread counts reminders that are neither read nor done
func CountUnread(list []Reminder) int {
	n := 0
	for _, r := range list {
		if !r.Read && !r.Done {
			n++
		}
	}
	return n
}
