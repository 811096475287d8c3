package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmcleod/storefront/user"
)

// attachUser resolves Session.UserID to a user and attaches it to the
// request. It never requires authentication: no id, or an id whose user no
// longer exists, leaves the request anonymous. The stale reference is left
// on the session.
func (a *App) attachUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestContextFrom(r.Context())
		sess := rc.handle.sess
		if sess.UserID == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
		u, err := a.users.FindByID(ctx, sess.UserID)
		cancel()
		switch {
		case errors.Is(err, user.ErrNotFound):
			a.audit.log(AuditUserMissing, r, slog.String("user_id", sess.UserID))
			next.ServeHTTP(w, r)
			return
		case err != nil:
			a.metrics.storeFailure("user")
			a.fail(w, r, fmt.Errorf("looking up user %s: %w", sess.UserID, err))
			return
		}

		rc = rc.withUser(u)
		next.ServeHTTP(w, r.WithContext(rc.into(r.Context())))
	})
}
