package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CheckedNotesKey prefixes the device storage key for a patient's ticked
// doctor notes
const CheckedNotesKey = "checkedNotes"

// MinPasswordLength is the shortest password SetPassword accepts
const MinPasswordLength = 8

func checkedNotesKey(patientID string) string {
	return CheckedNotesKey + ":" + patientID
}

// DeviceStorage is the JSON view of device key-value storage
type DeviceStorage interface {
	GetJSON(key string, v interface{}) (bool, error)
	SetJSON(key string, v interface{}) error
}

// Store persists tracking records for patients
type Store struct {
	db      *gorm.DB
	device  DeviceStorage
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu  sync.RWMutex
	loc *time.Location

	notesMu sync.Mutex
	mealsMu sync.Mutex
}

// NewStore migrates the tracking tables and returns a store over db
func NewStore(db *gorm.DB, device DeviceStorage, logger *zap.Logger, m *metrics.Metrics) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}

	if err := db.AutoMigrate(
		&InsulinEntry{},
		&Meal{},
		&Activity{},
		&SleepEntry{},
		&StressEntry{},
		&DoctorNote{},
		&Patient{},
		&IssueReport{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{
		db:      db,
		device:  device,
		logger:  logger,
		metrics: m,
		loc:     time.Local,
	}, nil
}

// SetLocation sets the zone calendar days are computed in
func (s *Store) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

func (s *Store) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

func (s *Store) create(ctx context.Context, table string, v interface{}) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	s.metrics.RecordCreated(table)
	return nil
}

func notFound(what, id string) error {
	return apperrors.New(apperrors.ErrNotFound.Code, fmt.Sprintf("%s %s not found", what, id))
}

// ==================== Insulin ====================

func (s *Store) CreateInsulin(ctx context.Context, e *InsulinEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.create(ctx, "insulin", e)
}

// ListInsulin returns the patient's doses oldest first
func (s *Store) ListInsulin(ctx context.Context, patientID string) ([]InsulinEntry, error) {
	var out []InsulinEntry
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// LatestInsulin returns the most recent dose by time, or nil
func (s *Store) LatestInsulin(ctx context.Context, patientID string) (*InsulinEntry, error) {
	var e InsulinEntry
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("time DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsulinUpdate carries the fields an edit may change. Nil means keep.
type InsulinUpdate struct {
	Dosage      *float64   `json:"dosage"`
	CBG         *int       `json:"cbg"`
	CBGPreMeal  *int       `json:"cbg_pre_meal"`
	CBGPostMeal *int       `json:"cbg_post_meal"`
	Time        *time.Time `json:"time"`
	Notes       *string    `json:"notes"`
}

func (u InsulinUpdate) empty() bool {
	return u.Dosage == nil && u.CBG == nil && u.CBGPreMeal == nil &&
		u.CBGPostMeal == nil && u.Time == nil && u.Notes == nil
}

// UpdateInsulin applies a partial edit to one of the patient's doses
func (s *Store) UpdateInsulin(ctx context.Context, patientID, id string, u InsulinUpdate) (*InsulinEntry, error) {
	if u.empty() {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "nothing to update")
	}

	var e InsulinEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND patient_id = ?", id, patientID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("insulin entry", id)
	}
	if err != nil {
		return nil, err
	}

	if u.Dosage != nil {
		e.Dosage = *u.Dosage
	}
	if u.CBG != nil {
		e.CBG = u.CBG
	}
	if u.CBGPreMeal != nil {
		e.CBGPreMeal = u.CBGPreMeal
	}
	if u.CBGPostMeal != nil {
		e.CBGPostMeal = u.CBGPostMeal
	}
	if u.Time != nil {
		e.Time = *u.Time
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(&e).Error; err != nil {
		return nil, fmt.Errorf("update insulin: %w", err)
	}
	return &e, nil
}

// ==================== Meals ====================

func (s *Store) dayBounds(t time.Time) (time.Time, time.Time) {
	loc := s.Location()
	d := t.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// MealTypesOn returns the meal types the patient logged on day's calendar
// date
func (s *Store) MealTypesOn(ctx context.Context, patientID string, day time.Time) ([]MealType, error) {
	return s.mealTypesOn(s.db.WithContext(ctx), patientID, day)
}

// mealTypesOn compares rows in Go since SQLite keeps times as text with the
// writer's offset
func (s *Store) mealTypesOn(db *gorm.DB, patientID string, day time.Time) ([]MealType, error) {
	start, end := s.dayBounds(day)

	var meals []Meal
	err := db.
		Select("meal_type", "time").
		Where("patient_id = ?", patientID).
		Find(&meals).Error
	if err != nil {
		return nil, err
	}

	out := make([]MealType, 0, len(meals))
	for _, m := range meals {
		if !m.Time.Before(start) && m.Time.Before(end) {
			out = append(out, m.MealType)
		}
	}
	return out, nil
}

// AvailableMealsOn returns what the patient may log next on day
func (s *Store) AvailableMealsOn(ctx context.Context, patientID string, day time.Time) ([]MealType, error) {
	existing, err := s.MealTypesOn(ctx, patientID, day)
	if err != nil {
		return nil, err
	}
	return AvailableMeals(existing), nil
}

// CreateMeal validates the meal and the daily meal order before saving. The
// order check and the insert run in one transaction under mealsMu so two
// concurrent requests cannot both log the same main meal.
func (s *Store) CreateMeal(ctx context.Context, m *Meal) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mealsMu.Lock()
	defer s.mealsMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.mealTypesOn(tx, m.PatientID, m.Time)
		if err != nil {
			return err
		}
		if err := CheckMealOrder(existing, m.MealType); err != nil {
			s.logger.Info("Meal order violation",
				zap.String("patient_id", m.PatientID),
				zap.String("meal_type", string(m.MealType)),
			)
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("create meals: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.RecordCreated("meals")
	return nil
}

func (s *Store) ListMeals(ctx context.Context, patientID string) ([]Meal, error) {
	var out []Meal
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("time DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) LatestMeal(ctx context.Context, patientID string) (*Meal, error) {
	var m Meal
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("time DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ==================== Activity, sleep, stress ====================

func (s *Store) CreateActivity(ctx context.Context, a *Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.create(ctx, "activities", a)
}

func (s *Store) ListActivities(ctx context.Context, patientID string) ([]Activity, error) {
	var out []Activity
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("start_time DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) CreateSleep(ctx context.Context, e *SleepEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	return s.create(ctx, "patient_sleep", e)
}

func (s *Store) ListSleep(ctx context.Context, patientID string) ([]SleepEntry, error) {
	var out []SleepEntry
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("recorded_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) CreateStress(ctx context.Context, e *StressEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	return s.create(ctx, "patient_stress", e)
}

func (s *Store) ListStress(ctx context.Context, patientID string) ([]StressEntry, error) {
	var out []StressEntry
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("recorded_at DESC").
		Find(&out).Error
	return out, err
}

// ==================== Doctor notes ====================

// CreateNote is used by the care team side and by tooling that seeds notes
func (s *Store) CreateNote(ctx context.Context, n *DoctorNote) error {
	if n.PatientID == "" || n.ReportData == "" {
		return invalid("patient id and report data are required")
	}
	return s.create(ctx, "doctor_reports", n)
}

// ListNotes returns the patient's notes newest first
func (s *Store) ListNotes(ctx context.Context, patientID string) ([]DoctorNote, error) {
	var out []DoctorNote
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// CheckedNotes returns the ids of the patient's notes ticked off on this
// device
func (s *Store) CheckedNotes(patientID string) ([]string, error) {
	var ids []string
	if _, err := s.device.GetJSON(checkedNotesKey(patientID), &ids); err != nil {
		s.metrics.RecordStorageError("get")
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ToggleNoteChecked flips the checked state of one of the patient's notes
// and returns the new state. Notes of other patients are not found.
func (s *Store) ToggleNoteChecked(ctx context.Context, patientID, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&DoctorNote{}).
		Where("id = ? AND patient_id = ?", id, patientID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, notFound("note", id)
	}

	s.notesMu.Lock()
	defer s.notesMu.Unlock()

	ids, err := s.CheckedNotes(patientID)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrStorage.Code, "failed to read checked notes")
	}

	checked := true
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v == id {
			checked = false
			continue
		}
		out = append(out, v)
	}
	if checked {
		out = append(out, id)
	}
	sort.Strings(out)

	if err := s.device.SetJSON(checkedNotesKey(patientID), out); err != nil {
		s.metrics.RecordStorageError("set")
		return false, apperrors.Wrap(err, apperrors.ErrStorage.Code, "failed to update checked notes")
	}
	return checked, nil
}

// ==================== Profile & reports ====================

func (s *Store) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("patient", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePatient validates the profile and creates or replaces it. A stored
// password hash is kept.
func (s *Store) SavePatient(ctx context.Context, p *Patient) error {
	if p.ID == "" {
		return invalid("patient id is required")
	}
	if err := ValidateProfile(p); err != nil {
		return err
	}

	var existing Patient
	err := s.db.WithContext(ctx).Select("password_hash").Where("id = ?", p.ID).First(&existing).Error
	switch {
	case err == nil:
		p.PasswordHash = existing.PasswordHash
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

// SetPassword stores a bcrypt hash of password for the patient, creating an
// empty profile when there is none yet
func (s *Store) SetPassword(ctx context.Context, patientID, password string) error {
	if patientID == "" {
		return invalid("patient id is required")
	}
	if len(password) < MinPasswordLength {
		return invalid("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&Patient{}).Where("id = ?", patientID).Update("password_hash", string(hash))
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := db.Create(&Patient{ID: patientID, PasswordHash: string(hash)}).Error; err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

var errBadCredentials = apperrors.New(apperrors.ErrUnauthorized.Code, "invalid patient id or password")

// Authenticate checks password against the patient's stored hash. Unknown
// patients and patients without a password fail the same way.
func (s *Store) Authenticate(ctx context.Context, patientID, password string) error {
	var p Patient
	err := s.db.WithContext(ctx).Select("id", "password_hash").Where("id = ?", patientID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errBadCredentials
	}
	if err != nil {
		return err
	}
	if p.PasswordHash == "" {
		return errBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return errBadCredentials
	}
	return nil
}

func (s *Store) CreateReport(ctx context.Context, r *IssueReport) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.create(ctx, "reports", r)
}
