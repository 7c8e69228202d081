package api

import (
	"strings"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/prediction"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var errInvalidBody = apperrors.New(apperrors.ErrBadRequest.Code, "invalid request")

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   Version,
		"timestamp": s.now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

// ==================== Auth ====================

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, errInvalidBody)
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.PatientID == "" || req.Password == "" {
		return s.respondError(c, apperrors.New(apperrors.ErrValidation.Code, "patient_id and password are required"))
	}
	if req.PatientID != s.owner {
		s.logger.Warn("Login refused for patient not bound to this install", zap.String("patient_id", req.PatientID))
		return s.respondError(c, apperrors.New(apperrors.ErrForbidden.Code, "this install belongs to another patient"))
	}
	if err := s.tracking.Authenticate(c.UserContext(), req.PatientID, req.Password); err != nil {
		s.logger.Warn("Login failed", zap.String("patient_id", req.PatientID))
		return s.respondError(c, err)
	}

	token, exp, err := s.issueToken(req.PatientID)
	if err != nil {
		return s.respondError(c, apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to generate token"))
	}

	s.logger.Info("Patient logged in", zap.String("patient_id", req.PatientID))
	return c.JSON(LoginResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	if s.sessions != nil && jti != "" {
		if err := s.sessions.DeleteSession(jti); err != nil {
			return s.respondError(c, apperrors.Wrap(err, apperrors.ErrStorage.Code, "failed to end session"))
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ==================== Reminders ====================

func (s *Server) view(r reminders.Reminder) reminders.View {
	return reminders.View{Reminder: r, Status: s.tracker.Status(r)}
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	cat, err := reminders.ParseCategory(c.Query("category"))
	if err != nil {
		return s.respondError(c, apperrors.New(apperrors.ErrValidation.Code, err.Error()))
	}
	return c.JSON(ReminderList{
		Reminders: s.tracker.Views(cat, s.tracker.Now()),
		Unread:    s.tracker.UnreadCount(),
	})
}

func (s *Server) handleGetReminder(c *fiber.Ctx) error {
	r, err := s.tracker.Get(c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(s.view(r))
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	r, err := s.tracker.MarkRead(c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(s.view(r))
}

func (s *Server) handleMarkDone(c *fiber.Ctx) error {
	r, err := s.tracker.MarkDone(c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(s.view(r))
}

func (s *Server) handleSnooze(c *fiber.Ctx) error {
	h, err := s.tracker.Snooze(c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(SnoozeResponse{
		ReminderID: h.ReminderID,
		FireAt:     h.FireAt,
	})
}

func (s *Server) handleCancelSnooze(c *fiber.Ctx) error {
	canceled, err := s.tracker.CancelSnooze(c.Params("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"canceled": canceled})
}

// ==================== Prediction ====================

func (s *Server) requirePredictor() error {
	if s.predictor == nil {
		return apperrors.New(apperrors.ErrPredictionUnavailable.Code, "prediction service is disabled")
	}
	return nil
}

func (s *Server) handlePrediction(c *fiber.Ctx) error {
	if err := s.requirePredictor(); err != nil {
		return s.respondError(c, err)
	}
	ctx := c.UserContext()
	pid := patientID(c)

	dose, err := s.tracking.LatestInsulin(ctx, pid)
	if err != nil {
		return s.respondError(c, err)
	}
	meal, err := s.tracking.LatestMeal(ctx, pid)
	if err != nil {
		return s.respondError(c, err)
	}

	req, err := prediction.BuildRequest(pid, dose, meal, s.now())
	if err != nil {
		return s.respondError(c, err)
	}
	resp, err := s.predictor.Predict(ctx, req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handlePredictionStatus(c *fiber.Ctx) error {
	if err := s.requirePredictor(); err != nil {
		return s.respondError(c, err)
	}
	st, err := s.predictor.Status(c.UserContext(), patientID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handlePredictionTrain(c *fiber.Ctx) error {
	if err := s.requirePredictor(); err != nil {
		return s.respondError(c, err)
	}
	res, err := s.predictor.Train(c.UserContext(), patientID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(res)
}
