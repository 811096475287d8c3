package app

import (
	"errors"
	"net/http"

	"github.com/jmcleod/storefront/upload"
	"github.com/jmcleod/storefront/user"
)

// errDeliberate backs the explicit /500 route.
var errDeliberate = errors.New("internal error page requested")

// SessionInfo is what a renderer needs about the current request.
type SessionInfo struct {
	IsAuthenticated bool         `json:"is_authenticated"`
	CSRFToken       string       `json:"csrf_token"`
	User            *user.User   `json:"user,omitempty"`
	Upload          *upload.File `json:"upload,omitempty"`
	Flash           []string     `json:"flash,omitempty"`
}

func (a *App) apiTest(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"hello": "world"})
	return nil
}

func (a *App) internalError(w http.ResponseWriter, r *http.Request) error {
	return errDeliberate
}

// sessionInfo reports the pipeline state for the request, consuming any
// queued "error" flash messages.
func (a *App) sessionInfo(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	info := SessionInfo{
		IsAuthenticated: IsAuthenticated(ctx),
		CSRFToken:       CSRFTokenFromContext(ctx),
		User:            UserFromContext(ctx),
		Upload:          UploadFromContext(ctx).File,
	}
	if sess := SessionFromContext(ctx); sess != nil {
		info.Flash = sess.Flashes("error")
	}
	writeJSON(w, http.StatusOK, info)
	return nil
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) error {
	if err := a.DestroySession(w, r); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
