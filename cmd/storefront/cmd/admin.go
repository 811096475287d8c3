package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/storefront/app"
)

// adminRouter is mounted at /admin behind the pipeline. It only exposes the
// current administrator; non-admins get 403.
func adminRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requireAdmin)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(app.UserFromContext(r.Context()))
	})
	return r
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := app.UserFromContext(r.Context())
		if u == nil || !u.IsAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(app.ErrorResponse{Error: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
