package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/login", s.handleLogin)

	protected := api.Group("", s.authMiddleware())
	protected.Post("/auth/logout", s.handleLogout)
	protected.Get("/metrics", s.handleMetricsJSON)

	// Reminders
	protected.Get("/reminders", s.handleListReminders)
	protected.Get("/reminders/:id", s.handleGetReminder)
	protected.Post("/reminders/:id/read", s.handleMarkRead)
	protected.Post("/reminders/:id/done", s.handleMarkDone)
	protected.Post("/reminders/:id/snooze", s.handleSnooze)
	protected.Delete("/reminders/:id/snooze", s.handleCancelSnooze)

	// Tracking
	protected.Get("/insulin", s.handleListInsulin)
	protected.Post("/insulin", s.handleCreateInsulin)
	protected.Patch("/insulin/:id", s.handleUpdateInsulin)
	protected.Get("/meals/available", s.handleAvailableMeals)
	protected.Get("/meals", s.handleListMeals)
	protected.Post("/meals", s.handleCreateMeal)
	protected.Get("/activities", s.handleListActivities)
	protected.Post("/activities", s.handleCreateActivity)
	protected.Get("/sleep", s.handleListSleep)
	protected.Post("/sleep", s.handleCreateSleep)
	protected.Get("/stress", s.handleListStress)
	protected.Post("/stress", s.handleCreateStress)

	// Doctor notes, profile, reports
	protected.Get("/notes", s.handleListNotes)
	protected.Post("/notes/:id/check", s.handleCheckNote)
	protected.Get("/profile", s.handleGetProfile)
	protected.Put("/profile", s.handlePutProfile)
	protected.Post("/reports", s.handleCreateReport)

	// Prediction
	protected.Get("/prediction", s.handlePrediction)
	protected.Get("/prediction/status", s.handlePredictionStatus)
	protected.Post("/prediction/train", s.handlePredictionTrain)

	// WebSocket
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	s.app.Get("/ws", s.wsAuth(), websocket.New(func(conn *websocket.Conn) {
		id, _ := conn.Locals(patientKey).(string)
		s.hub.serve(conn, id)
	}))
}
