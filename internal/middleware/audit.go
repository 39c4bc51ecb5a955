package middleware

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(entry domain.AuditLog) error
}

// AuditMiddleware records every API request. Live streams are skipped: an
// SSE connection stays open for minutes and its duration says nothing
// useful.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Capture request data before the handler runs; Fiber reuses
		// context objects.
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		if strings.HasSuffix(path, "/stream") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		userID := "anonymous"
		if uc := GetUserContext(c); uc != nil {
			userID = uc.UserID
		}

		details, _ := json.Marshal(map[string]any{
			"method":      method,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		entry := domain.AuditLog{
			UserID:     userID,
			Action:     domain.AuditActionRequest,
			Resource:   "api",
			ResourceID: path,
			Details:    string(details),
			IP:         ip,
			UserAgent:  userAgent,
		}

		// Persist off the request path; every value is already captured.
		go func() {
			if writeErr := writer.WriteAudit(entry); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// LogAuditWriter writes audit records to the structured log. Used when no
// database is configured.
type LogAuditWriter struct{}

func (LogAuditWriter) WriteAudit(entry domain.AuditLog) error {
	slog.Info("audit", "user_id", entry.UserID, "action", entry.Action,
		"resource", entry.Resource, "resource_id", entry.ResourceID,
		"details", entry.Details, "ip", entry.IP)
	return nil
}
