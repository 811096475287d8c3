package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jmcleod/storefront/csrf"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	msgNotFound      = "not found"
	msgInternalError = "internal server error"
	msgInvalidCSRF   = "invalid csrf token"
)

// HandlerFunc is a route handler that reports failures instead of writing
// error responses itself.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn so that a returned error reaches the error boundary.
func (a *App) Handle(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			a.fail(w, r, err)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// notFound is the terminal handler for requests no route matched.
func (a *App) notFound(w http.ResponseWriter, r *http.Request) {
	a.metrics.outcome(outcomeNotFound)
	writeError(w, http.StatusNotFound, msgNotFound)
}

// fail is the error boundary. It logs err with request context and writes
// one of the fixed failure responses. Nothing is written if a response has
// already been committed.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, csrf.ErrInvalidToken) {
		a.metrics.outcome(outcomeCSRFRejected)
		a.audit.log(AuditCSRFRejected, r, slog.String("method", r.Method), slog.String("path", r.URL.Path))
		if !written(w) {
			writeError(w, http.StatusForbidden, msgInvalidCSRF)
		}
		return
	}

	a.metrics.outcome(outcomeError)
	a.logger.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	if written(w) {
		a.logger.WarnContext(r.Context(), "response already committed, dropping error response",
			slog.String("path", r.URL.Path))
		return
	}
	writeError(w, http.StatusInternalServerError, msgInternalError)
}

// recoverer turns panics anywhere downstream into the internal error
// response. It also installs the responseWriter the boundary inspects and
// runs the rollbacks stages registered if the request failed.
func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w}
		defer rw.rollbackIfFailed()
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.logger.ErrorContext(r.Context(), "panic recovered",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			a.fail(rw, r, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(rw, r)
	})
}

// responseWriter records whether the response header has been sent, and
// holds the side effects to undo when the request ends in an internal error.
type responseWriter struct {
	http.ResponseWriter
	status    int
	rollbacks []func()
}

// onFailure registers fn to run if the final status is 500 or above.
func (rw *responseWriter) onFailure(fn func()) {
	rw.rollbacks = append(rw.rollbacks, fn)
}

func (rw *responseWriter) rollbackIfFailed() {
	if rw.status < http.StatusInternalServerError {
		return
	}
	for i := len(rw.rollbacks) - 1; i >= 0; i-- {
		rw.rollbacks[i]()
	}
	rw.rollbacks = nil
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.status != 0 {
		return
	}
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Written() bool { return rw.status != 0 }

func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// boundaryWriter finds the recoverer's responseWriter beneath any wrappers.
func boundaryWriter(w http.ResponseWriter) *responseWriter {
	for {
		switch v := w.(type) {
		case *responseWriter:
			return v
		case interface{ Unwrap() http.ResponseWriter }:
			w = v.Unwrap()
		default:
			return nil
		}
	}
}

type writtenReporter interface {
	Written() bool
}

func written(w http.ResponseWriter) bool {
	wr, ok := w.(writtenReporter)
	return ok && wr.Written()
}
