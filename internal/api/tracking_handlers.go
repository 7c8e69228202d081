package api

import (
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/tracking"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) query(c *fiber.Ctx) (tracking.Query, error) {
	return tracking.ParseQuery(c.Query("q"), c.Query("date"), s.tracking.Location())
}

// listFiltered fetches the patient's records and applies the q and date filters
func listFiltered[T tracking.Searchable](s *Server, c *fiber.Ctx, fetch func(patientID string) ([]T, error)) error {
	q, err := s.query(c)
	if err != nil {
		return s.respondError(c, err)
	}
	records, err := fetch(patientID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(tracking.Filter(records, q))
}

func (s *Server) orNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// ==================== Insulin ====================

func (s *Server) handleListInsulin(c *fiber.Ctx) error {
	return listFiltered(s, c, func(pid string) ([]tracking.InsulinEntry, error) {
		return s.tracking.ListInsulin(c.UserContext(), pid)
	})
}

func (s *Server) handleCreateInsulin(c *fiber.Ctx) error {
	var e tracking.InsulinEntry
	if err := c.BodyParser(&e); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	e.ID = ""
	e.PatientID = patientID(c)
	e.Time = s.orNow(e.Time)

	if err := s.tracking.CreateInsulin(c.UserContext(), &e); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (s *Server) handleUpdateInsulin(c *fiber.Ctx) error {
	var u tracking.InsulinUpdate
	if err := c.BodyParser(&u); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	e, err := s.tracking.UpdateInsulin(c.UserContext(), patientID(c), c.Params("id"), u)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(e)
}

// ==================== Meals ====================

func (s *Server) handleListMeals(c *fiber.Ctx) error {
	return listFiltered(s, c, func(pid string) ([]tracking.Meal, error) {
		return s.tracking.ListMeals(c.UserContext(), pid)
	})
}

func (s *Server) handleAvailableMeals(c *fiber.Ctx) error {
	loc := s.tracking.Location()
	day := s.now().In(loc)
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			return s.respondError(c, apperrors.New(apperrors.ErrValidation.Code, "date must be YYYY-MM-DD"))
		}
		day = parsed
	}

	meals, err := s.tracking.AvailableMealsOn(c.UserContext(), patientID(c), day)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(AvailableMealsResponse{Date: day.Format("2006-01-02"), Meals: meals})
}

func (s *Server) handleCreateMeal(c *fiber.Ctx) error {
	var m tracking.Meal
	if err := c.BodyParser(&m); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	m.ID = ""
	m.PatientID = patientID(c)
	m.Time = s.orNow(m.Time)

	if err := s.tracking.CreateMeal(c.UserContext(), &m); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// ==================== Activity, sleep, stress ====================

func (s *Server) handleListActivities(c *fiber.Ctx) error {
	return listFiltered(s, c, func(pid string) ([]tracking.Activity, error) {
		return s.tracking.ListActivities(c.UserContext(), pid)
	})
}

func (s *Server) handleCreateActivity(c *fiber.Ctx) error {
	var a tracking.Activity
	if err := c.BodyParser(&a); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	a.ID = ""
	a.PatientID = patientID(c)

	if err := s.tracking.CreateActivity(c.UserContext(), &a); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (s *Server) handleListSleep(c *fiber.Ctx) error {
	return listFiltered(s, c, func(pid string) ([]tracking.SleepEntry, error) {
		return s.tracking.ListSleep(c.UserContext(), pid)
	})
}

func (s *Server) handleCreateSleep(c *fiber.Ctx) error {
	var e tracking.SleepEntry
	if err := c.BodyParser(&e); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	e.ID = ""
	e.PatientID = patientID(c)
	e.RecordedAt = s.orNow(e.RecordedAt)

	if err := s.tracking.CreateSleep(c.UserContext(), &e); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (s *Server) handleListStress(c *fiber.Ctx) error {
	return listFiltered(s, c, func(pid string) ([]tracking.StressEntry, error) {
		return s.tracking.ListStress(c.UserContext(), pid)
	})
}

func (s *Server) handleCreateStress(c *fiber.Ctx) error {
	var e tracking.StressEntry
	if err := c.BodyParser(&e); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	e.ID = ""
	e.PatientID = patientID(c)
	e.RecordedAt = s.orNow(e.RecordedAt)

	if err := s.tracking.CreateStress(c.UserContext(), &e); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// ==================== Doctor notes ====================

func (s *Server) handleListNotes(c *fiber.Ctx) error {
	notes, err := s.tracking.ListNotes(c.UserContext(), patientID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	checked, err := s.tracking.CheckedNotes(patientID(c))
	if err != nil {
		return s.respondError(c, apperrors.Wrap(err, apperrors.ErrStorage.Code, "failed to read checked notes"))
	}

	ticked := make(map[string]bool, len(checked))
	for _, id := range checked {
		ticked[id] = true
	}

	out := make([]NoteView, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteView{DoctorNote: n, Text: n.Text(), Checked: ticked[n.ID]})
	}
	return c.JSON(out)
}

func (s *Server) handleCheckNote(c *fiber.Ctx) error {
	checked, err := s.tracking.ToggleNoteChecked(c.UserContext(), patientID(c), c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"id": c.Params("id"), "checked": checked})
}

// ==================== Profile & reports ====================

func profileResponse(p *tracking.Patient) ProfileResponse {
	resp := ProfileResponse{Profile: p}
	if bmi, ok := tracking.BMI(p.Height, p.Weight); ok {
		resp.BMI = &bmi
	}
	return resp
}

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	p, err := s.tracking.GetPatient(c.UserContext(), patientID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(profileResponse(p))
}

func (s *Server) handlePutProfile(c *fiber.Ctx) error {
	var p tracking.Patient
	if err := c.BodyParser(&p); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	p.ID = patientID(c)

	if err := s.tracking.SavePatient(c.UserContext(), &p); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(profileResponse(&p))
}

func (s *Server) handleCreateReport(c *fiber.Ctx) error {
	var r tracking.IssueReport
	if err := c.BodyParser(&r); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	r.ID = ""
	r.PatientID = patientID(c)

	if err := s.tracking.CreateReport(c.UserContext(), &r); err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}
