package app

import (
	"fmt"
	"net/http"

	"github.com/jmcleod/storefront/csrf"
)

// csrfGuard derives the session's expected token, exposes it to downstream
// handlers, and rejects state-changing requests that do not echo it back.
func (a *App) csrfGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestContextFrom(r.Context())
		sess := rc.handle.sess

		// Sessions written by older deployments may lack secret material.
		if len(sess.Secret) == 0 {
			if err := sess.RotateSecret(); err != nil {
				a.fail(w, r, err)
				return
			}
		}
		token, err := csrf.Token(sess)
		if err != nil {
			a.fail(w, r, fmt.Errorf("csrf token: %w", err))
			return
		}

		if csrf.Safe(r.Method) {
			w.Header().Set(csrf.HeaderName, token)
		} else if err := csrf.Verify(sess, csrf.Submitted(r)); err != nil {
			a.fail(w, r, err)
			return
		}

		rc = rc.withCSRFToken(token)
		next.ServeHTTP(w, r.WithContext(rc.into(r.Context())))
	})
}
