package app

import (
	"context"

	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/upload"
	"github.com/jmcleod/storefront/user"
)

type contextKey int

const requestContextKey contextKey = iota

// RequestContext is the per-request state built up by the pipeline. Each
// stage derives a new value from the one it received and hands it
// downstream; a stored value is never modified in place.
type RequestContext struct {
	handle    *sessionHandle
	csrfToken string
	upload    upload.Result
	user      *user.User
}

// sessionHandle is the single session object bound to one request.
type sessionHandle struct {
	sess      *session.Session
	isNew     bool
	destroyed bool
	snapshot  []byte
}

func requestContextFrom(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey).(RequestContext)
	return rc
}

func (rc RequestContext) into(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

func (rc RequestContext) withSession(h *sessionHandle) RequestContext {
	rc.handle = h
	return rc
}

func (rc RequestContext) withCSRFToken(token string) RequestContext {
	rc.csrfToken = token
	return rc
}

func (rc RequestContext) withUpload(res upload.Result) RequestContext {
	rc.upload = res
	return rc
}

func (rc RequestContext) withUser(u *user.User) RequestContext {
	rc.user = u
	return rc
}

// SessionFromContext returns the session bound to the request, or nil
// outside the pipeline. Handlers may mutate it; changes are saved before the
// response is committed.
func SessionFromContext(ctx context.Context) *session.Session {
	rc := requestContextFrom(ctx)
	if rc.handle == nil || rc.handle.destroyed {
		return nil
	}
	return rc.handle.sess
}

// CSRFTokenFromContext returns the token forms must embed.
func CSRFTokenFromContext(ctx context.Context) string {
	return requestContextFrom(ctx).csrfToken
}

// UploadFromContext returns the outcome of the upload filter.
func UploadFromContext(ctx context.Context) upload.Result {
	return requestContextFrom(ctx).upload
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *user.User {
	return requestContextFrom(ctx).user
}

// IsAuthenticated reports the session's logged-in flag. A session whose user
// no longer exists still reports true; check UserFromContext for identity.
func IsAuthenticated(ctx context.Context) bool {
	sess := SessionFromContext(ctx)
	return sess != nil && sess.IsLoggedIn
}
