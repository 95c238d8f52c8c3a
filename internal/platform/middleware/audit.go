package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lbecken/smiles/internal/platform/auth"
)

const appointmentsPrefix = "/api/v1/appointments"

// AuditEntry records who changed which appointment, when and from where.
type AuditEntry struct {
	UserID        string    `json:"user_id"`
	UserRoles     []string  `json:"user_roles"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Action        string    `json:"action"` // create, update, cancel, delete
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Path          string    `json:"path"`
	Method        string    `json:"method"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	StatusCode    int       `json:"status_code"`
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every appointment mutation after it has been handled. Reads are
// not audited. Entries are also handed to the optional recorders.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			action := auditAction(req.Method, path)
			if action == "" {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:     time.Now().UTC(),
				Path:          path,
				Method:        req.Method,
				Action:        action,
				AppointmentID: appointmentIDFromPath(path),
				IPAddress:     c.RealIP(),
				UserAgent:     req.UserAgent(),
				StatusCode:    c.Response().Status,
				UserID:        auth.UserIDFromContext(req.Context()),
				UserRoles:     auth.RolesFromContext(req.Context()),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, rec := range recorders {
				if rec == nil {
					continue
				}
				if recErr := rec.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("appointment_id", entry.AppointmentID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("appointment_change")

			return err
		}
	}
}

// auditAction names the mutation a request performs on the appointment
// routes, or returns "" for reads and other paths.
func auditAction(method, path string) string {
	if path != appointmentsPrefix && !strings.HasPrefix(path, appointmentsPrefix+"/") {
		return ""
	}
	switch method {
	case http.MethodPost:
		if strings.HasSuffix(path, "/cancel") {
			return "cancel"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// appointmentIDFromPath returns the id in /api/v1/appointments/<id>[/...].
func appointmentIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, appointmentsPrefix+"/")
	if rest == path {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}
