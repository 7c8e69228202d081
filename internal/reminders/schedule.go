package reminders

import (
	"fmt"
	"time"
)

// Slot is one entry of the fixed daily template
type Slot struct {
	Hour     int
	Minute   int
	Category Category
	Title    string
	Message  string
}

// DailyTemplate is the schedule every fresh install starts with
var DailyTemplate = []Slot{
	{Hour: 6, Minute: 0, Category: CategoryMeal, Title: "Breakfast Time", Message: "Time for your morning meal"},
	{Hour: 7, Minute: 0, Category: CategoryInsulin, Title: "Morning Insulin", Message: "Take your morning insulin dose"},
	{Hour: 8, Minute: 0, Category: CategoryActivity, Title: "Morning Walk", Message: "Time for your morning exercise"},
	{Hour: 12, Minute: 0, Category: CategoryMeal, Title: "Lunch Time", Message: "Time for your afternoon meal"},
	{Hour: 16, Minute: 0, Category: CategoryActivity, Title: "Afternoon Activity", Message: "Time for your afternoon exercise"},
	{Hour: 18, Minute: 0, Category: CategoryMeal, Title: "Dinner Time", Message: "Time for your evening meal"},
	{Hour: 19, Minute: 0, Category: CategoryInsulin, Title: "Evening Insulin", Message: "Take your evening insulin dose"},
}

const displayLayout = "03:04 PM"

// DisplayTime formats a scheduled time the way the reminder list shows it
func DisplayTime(t time.Time) string {
	return t.Format(displayLayout)
}

// anchor binds r's scheduled time to the wall clock its display time shows,
// in loc, keeping the calendar date. Device sets store the instant in UTC,
// so the display time is what fixes "07:00 AM" across zone changes. A
// reminder without a readable display time is read in loc and gets one.
func anchor(r Reminder, loc *time.Location) Reminder {
	d := r.ScheduledTime.In(loc)
	clock, err := time.Parse(displayLayout, r.Time)
	if err != nil {
		r.ScheduledTime = d
		r.Time = DisplayTime(d)
		return r
	}
	r.ScheduledTime = time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return r
}

// Generate binds the daily template to the calendar day of day in loc
func Generate(day time.Time, loc *time.Location) []Reminder {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)

	list := make([]Reminder, 0, len(DailyTemplate))
	for i, s := range DailyTemplate {
		at := time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, loc)
		list = append(list, Reminder{
			ID:            fmt.Sprintf("notif-%d", i),
			Category:      s.Category,
			Title:         s.Title,
			Message:       s.Message,
			Time:          DisplayTime(at),
			ScheduledTime: at,
		})
	}
	return list
}
