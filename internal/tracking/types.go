// Package tracking stores what the patient logs during the day and the
// doctor notes and profile that go with it.
package tracking

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsulinEntry is one logged insulin dose with optional blood glucose reads
type InsulinEntry struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PatientID   string    `gorm:"index" json:"patient_id"`
	Dosage      float64   `json:"dosage"`
	CBG         *int      `json:"cbg,omitempty"`
	CBGPreMeal  *int      `json:"cbg_pre_meal,omitempty"`
	CBGPostMeal *int      `json:"cbg_post_meal,omitempty"`
	Time        time.Time `json:"time"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

func (InsulinEntry) TableName() string { return "insulin" }

// MealType is one of the four meal slots
type MealType string

const (
	Breakfast MealType = "Breakfast"
	Lunch     MealType = "Lunch"
	Dinner    MealType = "Dinner"
	Snacks    MealType = "Snacks"
)

func (m MealType) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner, Snacks:
		return true
	}
	return false
}

type Meal struct {
	ID                      string    `gorm:"primaryKey" json:"id"`
	PatientID               string    `gorm:"index" json:"patient_id"`
	MealType                MealType  `json:"meal_type"`
	Dish                    string    `json:"dish"`
	RiceType                string    `json:"rice_type"`
	RiceCups                float64   `json:"rice_cups"`
	CarbohydratesEstimation *float64  `json:"carbohydrates_estimation,omitempty"`
	Drinks                  string    `json:"drinks"`
	Time                    time.Time `json:"time"`
	Notes                   string    `json:"notes"`
	CreatedAt               time.Time `json:"created_at"`
}

func (Meal) TableName() string { return "meals" }

type Activity struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	PatientID    string    `gorm:"index" json:"patient_id"`
	ActivityType string    `json:"activity_type"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     int       `json:"duration"` // minutes
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Activity) TableName() string { return "activities" }

type SleepEntry struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	PatientID  string    `gorm:"index" json:"patient_id"`
	SleepHours float64   `json:"sleep_hours"`
	Notes      string    `json:"notes"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SleepEntry) TableName() string { return "patient_sleep" }

type StressEntry struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PatientID   string    `gorm:"index" json:"patient_id"`
	StressScore int       `json:"stress_score"`
	Notes       string    `json:"notes"`
	RecordedAt  time.Time `json:"recorded_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StressEntry) TableName() string { return "patient_stress" }

// DoctorNote is written by the care team and read-only for the patient.
// ReportData is either plain text or a JSON object with a "note" key.
type DoctorNote struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	PatientID  string    `gorm:"index" json:"patient_id"`
	ReportData string    `json:"report_data"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DoctorNote) TableName() string { return "doctor_reports" }

// Text returns the human readable body of the note
func (n DoctorNote) Text() string {
	raw := strings.TrimSpace(n.ReportData)
	if !strings.HasPrefix(raw, "{") {
		return n.ReportData
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return n.ReportData
	}
	if s, ok := obj["note"].(string); ok && s != "" {
		return s
	}
	return raw
}

type Patient struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Username    string    `json:"username"`
	PhoneNumber string    `json:"phone_number"`
	DateOfBirth string    `json:"date_of_birth"`
	Address     string    `json:"address"`
	Gender      string    `json:"gender"`
	Height      float64   `json:"height"` // cm
	Weight      float64   `json:"weight"` // kg
	Age         int       `json:"age"`
	Condition   string    `json:"condition"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// bcrypt hash set through SetPassword; never serialized
	PasswordHash string `json:"-"`
}

func (Patient) TableName() string { return "patients" }

// IssueReport is feedback the patient sends from settings
type IssueReport struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PatientID   string    `gorm:"index" json:"patient_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (IssueReport) TableName() string { return "reports" }

func newID() string {
	return uuid.NewString()
}

// Times are stored in UTC so SQLite orders them correctly as text.

func (e *InsulinEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = newID()
	}
	return nil
}

func (e *InsulinEntry) BeforeSave(tx *gorm.DB) error {
	e.Time = e.Time.UTC()
	return nil
}

func (m *Meal) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.RiceType == "" {
		m.RiceType = "None"
	}
	m.Time = m.Time.UTC()
	return nil
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	a.StartTime, a.EndTime = a.StartTime.UTC(), a.EndTime.UTC()
	return nil
}

func (s *SleepEntry) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	s.RecordedAt = s.RecordedAt.UTC()
	return nil
}

func (s *StressEntry) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	s.RecordedAt = s.RecordedAt.UTC()
	return nil
}

func (n *DoctorNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = newID()
	}
	return nil
}

func (r *IssueReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newID()
	}
	return nil
}
