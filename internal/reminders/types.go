// Package reminders tracks the patient's daily meal, insulin and activity
// reminders: which are due, which were missed, and what the patient has
// already read or completed.
package reminders

import (
	"encoding/json"
	"fmt"
	"time"
)

// StorageKey is the device storage key holding the full reminder set.
const StorageKey = "@notifications"

// Category groups reminders by what the patient is asked to do
type Category string

const (
	CategoryMeal     Category = "meal"
	CategoryInsulin  Category = "insulin"
	CategoryActivity Category = "activity"

	// CategoryAll is a filter value, never stored on a reminder
	CategoryAll Category = "all"
)

// Valid reports whether c is a concrete reminder category
func (c Category) Valid() bool {
	switch c {
	case CategoryMeal, CategoryInsulin, CategoryActivity:
		return true
	}
	return false
}

// ParseCategory accepts a concrete category or "all". Empty means all.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if s == "" || c == CategoryAll {
		return CategoryAll, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("unknown reminder category %q", s)
	}
	return c, nil
}

// Status is derived on demand and never persisted
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCurrent   Status = "current"
	StatusMissed    Status = "missed"
	StatusUpcoming  Status = "upcoming"
)

// Reminder is one scheduled slot of the day. Field names on the wire match
// what devices already have in storage.
type Reminder struct {
	ID            string    `json:"id"`
	Category      Category  `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Time          string    `json:"time"`
	Read          bool      `json:"isRead"`
	Done          bool      `json:"isDone"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

// View is a reminder together with its status at a given instant
type View struct {
	Reminder
	Status Status `json:"status"`
}

// encodeReminders serializes the full set as stored on the device
func encodeReminders(list []Reminder) ([]byte, error) {
	if list == nil {
		list = []Reminder{}
	}
	return json.Marshal(list)
}

// decodeReminders parses and validates a persisted set. A record marked done
// but not read is coerced to read.
func decodeReminders(data []byte) ([]Reminder, error) {
	var list []Reminder
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}

	seen := make(map[string]struct{}, len(list))
	for i := range list {
		r := &list[i]
		if r.ID == "" {
			return nil, fmt.Errorf("reminder at index %d has no id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate reminder id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Category.Valid() {
			return nil, fmt.Errorf("reminder %q has unknown type %q", r.ID, r.Category)
		}
		if r.ScheduledTime.IsZero() {
			return nil, fmt.Errorf("reminder %q has no scheduled time", r.ID)
		}
		if r.Done {
			r.Read = true
		}
	}
	return list, nil
}
