package prediction

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/tracking"
)

// Request is the body of POST /predict
type Request struct {
	PatientID               string  `json:"patient_id"`
	Dosage                  float64 `json:"dosage"`
	CBG                     int     `json:"cbg"`
	CarbohydratesEstimation float64 `json:"carbohydrates_estimation"`
	MealType                string  `json:"meal_type"`
	RiceCups                float64 `json:"rice_cups"`
	Time                    string  `json:"time"`
}

// Response is what the service predicts
type Response struct {
	PatientID           string  `json:"patient_id"`
	PredictedGlucose    float64 `json:"predicted_glucose"`
	PredictionTimestamp string  `json:"prediction_timestamp"`
	ModelConfidence     Label   `json:"model_confidence"`
	ExpectedAccuracy    Label   `json:"expected_accuracy"`
}

// Health is the body of GET /health
type Health struct {
	Status string `json:"status"`
}

// ModelStatus describes a patient's personal model. Fields the service adds
// later are kept in Extra.
type ModelStatus struct {
	PatientID string                 `json:"patient_id"`
	Trained   bool                   `json:"trained"`
	Extra     map[string]interface{} `json:"-"`
}

func (s *ModelStatus) UnmarshalJSON(data []byte) error {
	type plain ModelStatus
	if err := json.Unmarshal(data, (*plain)(s)); err != nil {
		return err
	}
	return json.Unmarshal(data, &s.Extra)
}

func (s ModelStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["patient_id"] = s.PatientID
	out["trained"] = s.Trained
	return json.Marshal(out)
}

// TrainResult is the body returned by POST /train/{patient_id}
type TrainResult map[string]interface{}

// Label is a display value the service sends as either a string or a number
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*l = Label(str)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*l = Label(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// BuildRequest assembles a prediction request from the latest logged dose and
// meal. A dose is required. The glucose reading prefers cbg and falls back to
// the pre-meal reading.
func BuildRequest(patientID string, dose *tracking.InsulinEntry, meal *tracking.Meal, now time.Time) (*Request, error) {
	if dose == nil {
		return nil, apperrors.New(apperrors.ErrValidation.Code, "log an insulin dose before requesting a prediction")
	}

	req := &Request{
		PatientID: patientID,
		Dosage:    dose.Dosage,
		Time:      now.UTC().Format(time.RFC3339),
	}
	switch {
	case dose.CBG != nil:
		req.CBG = *dose.CBG
	case dose.CBGPreMeal != nil:
		req.CBG = *dose.CBGPreMeal
	default:
		return nil, apperrors.New(apperrors.ErrValidation.Code, "the latest insulin entry has no blood glucose reading")
	}

	if meal != nil {
		req.MealType = strings.ToLower(string(meal.MealType))
		req.RiceCups = meal.RiceCups
		if meal.CarbohydratesEstimation != nil {
			req.CarbohydratesEstimation = *meal.CarbohydratesEstimation
		}
	}
	return req, nil
}
