package tracking

import (
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/security"
)

func invalid(format string, args ...interface{}) error {
	return apperrors.New(apperrors.ErrValidation.Code, fmt.Sprintf(format, args...))
}

func (e *InsulinEntry) Validate() error {
	if e.PatientID == "" {
		return invalid("patient id is required")
	}
	if e.Dosage <= 0 {
		return invalid("dosage must be greater than zero")
	}
	if e.Time.IsZero() {
		return invalid("time is required")
	}
	for name, v := range map[string]*int{"cbg": e.CBG, "cbg_pre_meal": e.CBGPreMeal, "cbg_post_meal": e.CBGPostMeal} {
		if v != nil && *v < 0 {
			return invalid("%s must not be negative", name)
		}
	}
	return security.ValidateText("notes", e.Notes)
}

func (m *Meal) Validate() error {
	if m.PatientID == "" {
		return invalid("patient id is required")
	}
	if !m.MealType.Valid() {
		return invalid("meal type must be Breakfast, Lunch, Dinner or Snacks")
	}
	if strings.TrimSpace(m.Dish) == "" || strings.TrimSpace(m.Drinks) == "" {
		return invalid("please fill in meal type, dish, and drinks")
	}
	if m.RiceCups < 0 {
		return invalid("rice cups must not be negative")
	}
	if m.CarbohydratesEstimation != nil && (math.IsNaN(*m.CarbohydratesEstimation) || *m.CarbohydratesEstimation < 0) {
		return invalid("carbohydrates estimation must be a non-negative number")
	}
	if m.Time.IsZero() {
		return invalid("time is required")
	}
	return security.ValidateFields("dish", m.Dish, "rice_type", m.RiceType, "drinks", m.Drinks, "notes", m.Notes)
}

// Validate checks the activity and fills in its duration
func (a *Activity) Validate() error {
	if a.PatientID == "" {
		return invalid("patient id is required")
	}
	if strings.TrimSpace(a.ActivityType) == "" {
		return invalid("activity type is required")
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return invalid("start and end time are required")
	}
	if !a.EndTime.After(a.StartTime) {
		return invalid("end time must be after start time")
	}
	if err := security.ValidateFields("activity_type", a.ActivityType, "notes", a.Notes); err != nil {
		return err
	}
	a.Duration = ActivityDuration(a.StartTime, a.EndTime)
	return nil
}

// ActivityDuration returns the span in whole minutes, rounded
func ActivityDuration(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

func (s *SleepEntry) Validate() error {
	if s.PatientID == "" {
		return invalid("patient id is required")
	}
	if s.SleepHours <= 0 || s.SleepHours > 24 {
		return invalid("please select a valid number of hours (0 - 24)")
	}
	return security.ValidateText("notes", s.Notes)
}

func (s *StressEntry) Validate() error {
	if s.PatientID == "" {
		return invalid("patient id is required")
	}
	if s.StressScore < 1 || s.StressScore > 10 {
		return invalid("please pick a stress level between 1 and 10")
	}
	return security.ValidateText("notes", s.Notes)
}

func (r *IssueReport) Validate() error {
	if r.PatientID == "" {
		return invalid("patient id is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return invalid("please describe the issue")
	}
	return security.ValidateFields("title", r.Title, "description", r.Description)
}

// ProfileErrors maps a profile field to what is wrong with it
type ProfileErrors map[string]string

func (p ProfileErrors) Error() string {
	fields := make([]string, 0, len(p))
	for _, f := range []string{"height", "weight", "age", "phone_number"} {
		if msg, ok := p[f]; ok {
			fields = append(fields, msg)
		}
	}
	return strings.Join(fields, "; ")
}

// ValidateProfile applies the bounds the profile screen enforces
func ValidateProfile(p *Patient) error {
	errs := ProfileErrors{}
	if p.Height < 50 || p.Height > 272 {
		errs["height"] = "height must be between 50 and 272 cm"
	}
	if p.Weight < 10 || p.Weight > 500 {
		errs["weight"] = "weight must be between 10 and 500 kg"
	}
	if p.Age < 1 || p.Age > 120 {
		errs["age"] = "age must be between 1 and 120"
	}
	if !isDigits(p.PhoneNumber, 11) {
		errs["phone_number"] = "phone number must be 11 digits"
	}
	if len(errs) == 0 {
		return nil
	}
	return apperrors.Wrap(errs, apperrors.ErrValidation.Code, "invalid profile")
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BMI returns weight / height(m)^2 rounded to one decimal. ok is false when
// either input is not positive.
func BMI(heightCM, weightKG float64) (float64, bool) {
	if heightCM <= 0 || weightKG <= 0 {
		return 0, false
	}
	m := heightCM / 100
	return math.Round(weightKG/(m*m)*10) / 10, true
}
