package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/storefront/session"
)

const sessionCookieName = "storefront_session"

// resolveSession binds exactly one session to the request. A missing or
// unknown cookie yields a new session; any other store error ends the
// request at the error boundary.
func (a *App) resolveSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := a.loadSession(r)
		if err != nil {
			a.metrics.storeFailure("session")
			a.fail(w, r, err)
			return
		}

		sw := &sessionWriter{ResponseWriter: w, app: a, req: r, handle: h, baseHeader: w.Header().Clone()}
		rc := requestContextFrom(r.Context()).withSession(h)
		next.ServeHTTP(sw, r.WithContext(rc.into(r.Context())))
		if !sw.Written() && !sw.failed {
			sw.WriteHeader(http.StatusOK)
		}
	})
}

func (a *App) loadSession(r *http.Request) (*sessionHandle, error) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
		defer cancel()
		sess, err := a.sessions.Load(ctx, cookie.Value)
		switch {
		case err == nil:
			snapshot, err := json.Marshal(sess)
			if err != nil {
				return nil, fmt.Errorf("encoding session snapshot: %w", err)
			}
			return &sessionHandle{sess: sess, snapshot: snapshot}, nil
		case !errors.Is(err, session.ErrNotFound):
			return nil, fmt.Errorf("loading session: %w", err)
		}
	}

	sess, err := session.New(a.sessionTTL)
	if err != nil {
		return nil, err
	}
	return &sessionHandle{sess: sess, isNew: true}, nil
}

// sessionWriter persists the session just before the response header is
// sent, so the stored session and the cookie are never out of step with
// the response. If the save fails and nothing has been sent yet, the
// response becomes the internal error response instead.
type sessionWriter struct {
	http.ResponseWriter
	app       *App
	req       *http.Request
	handle    *sessionHandle
	committed bool
	failed    bool
	// baseHeader is the header set before any stage or handler ran, e.g.
	// the security headers. A failed save restores it so that handler
	// headers such as Location never reach the error response.
	baseHeader http.Header
}

func (sw *sessionWriter) WriteHeader(status int) {
	if sw.committed {
		if !sw.failed {
			sw.ResponseWriter.WriteHeader(status)
		}
		return
	}
	sw.committed = true
	if status >= http.StatusInternalServerError {
		// Failed requests leave no session state behind.
		sw.ResponseWriter.WriteHeader(status)
		return
	}
	if err := sw.app.commitSession(sw.ResponseWriter, sw.req, sw.handle); err != nil {
		sw.failed = true
		sw.resetHeader()
		sw.app.metrics.storeFailure("session")
		sw.app.fail(sw.ResponseWriter, sw.req, err)
		return
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *sessionWriter) resetHeader() {
	h := sw.ResponseWriter.Header()
	for k := range h {
		delete(h, k)
	}
	for k, v := range sw.baseHeader {
		h[k] = v
	}
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	if !sw.committed {
		sw.WriteHeader(http.StatusOK)
	}
	if sw.failed {
		// The handler's body is discarded in favour of the error response.
		return len(b), nil
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *sessionWriter) Written() bool { return sw.committed }

func (sw *sessionWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func (a *App) commitSession(w http.ResponseWriter, r *http.Request, h *sessionHandle) error {
	if h.destroyed {
		return nil
	}
	if !h.isNew {
		current, err := json.Marshal(h.sess)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		if bytes.Equal(current, h.snapshot) {
			return nil
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
	defer cancel()
	if err := a.sessions.Save(ctx, h.sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if h.isNew {
		a.metrics.sessionCreated()
		a.audit.log(AuditSessionCreated, r)
		a.writeSessionCookie(w, r, h.sess.ID, h.sess.ExpiresAt)
	}
	return nil
}

// DestroySession deletes the request's session from the store and clears
// the cookie. Later stages see no session.
func (a *App) DestroySession(w http.ResponseWriter, r *http.Request) error {
	h := requestContextFrom(r.Context()).handle
	if h == nil || h.destroyed {
		return nil
	}
	if !h.isNew {
		ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
		defer cancel()
		if err := a.sessions.Delete(ctx, h.sess.ID); err != nil {
			a.metrics.storeFailure("session")
			return fmt.Errorf("deleting session: %w", err)
		}
	}
	h.destroyed = true
	a.audit.log(AuditSessionDestroyed, r, slog.String("user_id", h.sess.UserID))
	a.clearSessionCookie(w, r)
	return nil
}

func (a *App) writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookieSecure || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func (a *App) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookieSecure || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
