// Package app implements the storefront request pipeline: session
// resolution, CSRF protection, image upload filtering and user attachment,
// ending in a single error boundary for 404 and 500 responses.
package app

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/upload"
	"github.com/jmcleod/storefront/user"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// App holds the collaborators of the request pipeline.
type App struct {
	sessions     session.Store
	users        user.Store
	uploads      *upload.Filter
	logger       *slog.Logger
	audit        *auditLogger
	metrics      *metrics
	registerer   prometheus.Registerer
	sessionTTL   time.Duration
	storeTimeout time.Duration
	maxBodyBytes int64
	cookieSecure bool
	imagesDir    string
	mounts       []mount
	routes       []func(a *App, r chi.Router)
}

type mount struct {
	pattern string
	handler http.Handler
}

// Option configures the App.
type Option func(*App)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithUploads enables the upload filter.
func WithUploads(f *upload.Filter) Option {
	return func(a *App) { a.uploads = f }
}

// WithImagesDir serves files from dir under /images/.
func WithImagesDir(dir string) Option {
	return func(a *App) { a.imagesDir = dir }
}

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *App) { a.sessionTTL = ttl }
}

// WithStoreTimeout bounds every session and user store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(a *App) { a.storeTimeout = d }
}

// WithMaxBodyBytes caps the size of form and multipart bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *App) { a.maxBodyBytes = n }
}

// WithSecureCookies forces the Secure attribute on the session cookie even
// for plain HTTP requests.
func WithSecureCookies(secure bool) Option {
	return func(a *App) { a.cookieSecure = secure }
}

// WithRegisterer registers pipeline metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithMount mounts h under pattern behind the full pipeline, e.g. the admin
// route group at "/admin".
func WithMount(pattern string, h http.Handler) Option {
	return func(a *App) { a.mounts = append(a.mounts, mount{pattern: pattern, handler: h}) }
}

// WithRoutes registers route handlers behind the full pipeline.
func WithRoutes(fn func(a *App, r chi.Router)) Option {
	return func(a *App) { a.routes = append(a.routes, fn) }
}

// New creates an App over the given session and user stores.
func New(sessions session.Store, users user.Store, opts ...Option) *App {
	a := &App{
		sessions:     sessions,
		users:        users,
		sessionTTL:   session.DefaultTTL,
		storeTimeout: defaultStoreTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "pipeline")
	a.audit = newAuditLogger(a.logger)
	a.metrics = newMetrics(a.registerer)
	return a
}

// Router returns the storefront handler. Stored images are served ahead of
// the pipeline; every other request passes through it in order: session,
// CSRF, upload, user, then the matching route or the Not-Found response.
func (a *App) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.recoverer)
	r.Use(a.metrics.instrument)
	r.Use(SecurityHeaders)

	if a.imagesDir != "" {
		r.Handle("/images/*", a.imagesHandler("/images/", a.imagesDir))
	}

	r.Group(func(r chi.Router) {
		r.Use(a.parseBody)
		r.Use(a.resolveSession)
		r.Use(a.csrfGuard)
		r.Use(a.filterUpload)
		r.Use(a.attachUser)

		// Registered before any Mount so chi does not copy the
		// middleware-wrapped handler into mounted routers, which would run
		// the pipeline a second time.
		r.NotFound(a.notFound)
		r.MethodNotAllowed(a.notFound)

		r.Method(http.MethodGet, "/api/test", a.Handle(a.apiTest))
		r.Method(http.MethodGet, "/api/session", a.Handle(a.sessionInfo))
		r.Method(http.MethodGet, "/500", a.Handle(a.internalError))
		r.Method(http.MethodPost, "/logout", a.Handle(a.logout))

		for _, m := range a.mounts {
			if sub, ok := m.handler.(chi.Router); ok {
				sub.NotFound(a.notFound)
				sub.MethodNotAllowed(a.notFound)
			}
			r.Mount(m.pattern, m.handler)
		}
		for _, fn := range a.routes {
			fn(a, r)
		}
	})

	return r
}
