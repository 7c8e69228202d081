package api

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/security"
	"github.com/gmsas95/glucotrack/internal/tracking"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const patientKey = "patient_id"

// issueToken signs a token for patientID and records its session
func (s *Server) issueToken(patientID string) (string, time.Time, error) {
	ttl := time.Duration(s.config.Security.TokenTTL) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   patientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	if s.sessions != nil {
		if err := s.sessions.SetSession(claims.ID, []byte(patientID), ttl); err != nil {
			return "", time.Time{}, err
		}
	}
	return signed, exp, nil
}

// parseToken verifies signature, expiry and that the session was not revoked
func (s *Server) parseToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Security.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, apperrors.New(apperrors.ErrUnauthorized.Code, "invalid token")
	}
	if claims.Subject == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized.Code, "token has no subject")
	}
	if claims.Subject != s.owner {
		return nil, apperrors.New(apperrors.ErrUnauthorized.Code, "token is for another patient")
	}

	if s.sessions != nil {
		v, err := s.sessions.GetSession(claims.ID)
		if err != nil {
			return nil, err
		}
		if v == nil || string(v) != claims.Subject {
			return nil, apperrors.New(apperrors.ErrUnauthorized.Code, "session expired")
		}
	}
	return claims, nil
}

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return s.respondError(c, apperrors.New(apperrors.ErrUnauthorized.Code, "missing authorization header"))
		}

		claims, err := s.parseToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return s.respondError(c, err)
		}

		c.Locals(patientKey, claims.Subject)
		c.Locals("jti", claims.ID)
		return c.Next()
	}
}

// wsAuth accepts the token as ?token= since browsers cannot set headers on
// a websocket handshake
func (s *Server) wsAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Query("token")
		if tok == "" {
			tok = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		claims, err := s.parseToken(tok)
		if err != nil {
			return s.respondError(c, err)
		}
		c.Locals(patientKey, claims.Subject)
		return c.Next()
	}
}

func patientID(c *fiber.Ctx) string {
	id, _ := c.Locals(patientKey).(string)
	return id
}

// requestLogger logs and counts every request
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		s.metrics.RecordHTTPRequest(c.Method(), status)
		s.logger.Debug("HTTP request",
			zap.String("method", c.Method()),
			zap.String("url", security.RedactSecrets(c.OriginalURL())),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperrors.HTTPStatus(err)
}

// respondError writes {"error", "code"} with the status mapped from err
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error(), "code": apperrors.GetCode(err)}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body["error"] = appErr.Message
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		body["error"] = fe.Message
		body["code"] = "GEN_002"
		if fe.Code == fiber.StatusNotFound {
			body["code"] = apperrors.ErrNotFound.Code
		}
	}
	var fields tracking.ProfileErrors
	if errors.As(err, &fields) {
		body["fields"] = fields
	}

	if status >= 500 {
		s.logger.Error("Request failed",
			zap.String("url", security.RedactSecrets(c.OriginalURL())),
			zap.Error(err),
		)
		if !apperrors.IsAppError(err) {
			body["error"] = "internal error"
			body["code"] = apperrors.ErrInternal.Code
		}
	}
	return c.Status(status).JSON(body)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	return s.respondError(c, err)
}
