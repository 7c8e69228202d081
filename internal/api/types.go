package api

import (
	"time"

	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gmsas95/glucotrack/internal/tracking"
)

// Version is reported by /api/health. Set at build time.
var Version = "dev"

type LoginRequest struct {
	PatientID string `json:"patient_id"`
	Password  string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReminderList struct {
	Reminders []reminders.View `json:"reminders"`
	Unread    int              `json:"unread"`
}

type SnoozeResponse struct {
	ReminderID string    `json:"reminder_id"`
	FireAt     time.Time `json:"fire_at"`
}

// NoteView is a doctor note with its readable text and checked state
type NoteView struct {
	tracking.DoctorNote
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type ProfileResponse struct {
	Profile *tracking.Patient `json:"profile"`
	BMI     *float64          `json:"bmi"`
}

type AvailableMealsResponse struct {
	Date  string              `json:"date"`
	Meals []tracking.MealType `json:"meals"`
}
