package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/middleware"
	"github.com/docsight/docsight/internal/session"
)

// SessionHandler exposes sign-in, sign-out and session inspection.
type SessionHandler struct {
	sessions *session.Manager
	jwtCfg   middleware.JWTConfig
	audit    middleware.AuditWriter
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *session.Manager, jwtCfg middleware.JWTConfig, audit middleware.AuditWriter) *SessionHandler {
	return &SessionHandler{sessions: sessions, jwtCfg: jwtCfg, audit: audit}
}

// Register sets up session routes on the public app.
func (h *SessionHandler) Register(app *fiber.App) {
	auth := app.Group("/api/v1/auth")
	auth.Post("/login", h.Login)
	auth.Post("/logout", h.Logout)
	auth.Get("/session", h.Session)
}

// Login runs the interactive sign-in flow and returns a bearer token for
// the API alongside the identity.
func (h *SessionHandler) Login(c fiber.Ctx) error {
	identity, err := h.sessions.SignIn(c.Context())
	if err != nil && identity == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": h.sessions.LastError(),
		})
	}

	token, tokenErr := middleware.GenerateJWT(identity, h.jwtCfg)
	if tokenErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token generation failed"})
	}

	h.writeAudit(domain.AuditLog{
		UserID:   identity.UID,
		Action:   domain.AuditActionLogin,
		Resource: "session",
		IP:       c.IP(),
	})

	resp := fiber.Map{"token": token, "identity": identity}
	if err != nil {
		// Sign-in succeeded but the secondary profile write did not.
		resp["warning"] = err.Error()
	}
	return c.JSON(resp)
}

// Logout clears the provider session and the current identity.
func (h *SessionHandler) Logout(c fiber.Ctx) error {
	userID := "anonymous"
	if identity := h.sessions.CurrentIdentity(); identity != nil {
		userID = identity.UID
	}

	if err := h.sessions.SignOut(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": h.sessions.LastError(),
		})
	}

	h.writeAudit(domain.AuditLog{
		UserID:   userID,
		Action:   domain.AuditActionLogout,
		Resource: "session",
		IP:       c.IP(),
	})
	return c.JSON(fiber.Map{"ok": true})
}

// Session reports the current session state for the presentation layer.
func (h *SessionHandler) Session(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"identity": h.sessions.CurrentIdentity(),
		"loading":  h.sessions.IsLoading(),
		"error":    h.sessions.LastError(),
	})
}

func (h *SessionHandler) writeAudit(entry domain.AuditLog) {
	go func() {
		if err := h.audit.WriteAudit(entry); err != nil {
			slog.Error("failed to write audit log", "action", entry.Action, "error", err)
		}
	}()
}
