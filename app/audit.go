package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// AuditEvent identifies a security-relevant pipeline event.
type AuditEvent string

const (
	AuditSessionCreated   AuditEvent = "session_created"
	AuditSessionDestroyed AuditEvent = "session_destroyed"
	AuditCSRFRejected     AuditEvent = "csrf_rejected"
	AuditUploadAccepted   AuditEvent = "upload_accepted"
	AuditUploadRejected   AuditEvent = "upload_rejected"
	AuditUploadDiscarded  AuditEvent = "upload_discarded"
	AuditUserMissing      AuditEvent = "user_missing"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes one audit entry. Session ids are never logged; they are bearer
// credentials.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		baseAttrs = append(baseAttrs, slog.String("request_id", reqID))
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}
