package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jmcleod/storefront/app"
	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/upload"
)

var (
	addr         string
	dataDir      string
	sessionStore string
	userStore    string
	logLevel     string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the storefront server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg.LogLevel)

		b, err := openBackends(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		handler, err := newHandler(cfg, b, logger)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("starting server",
			slog.String("addr", cfg.Addr),
			slog.String("data_dir", cfg.DataDir),
			slog.String("session_store", cfg.Session.Store),
			slog.String("user_store", cfg.Users.Store),
			slog.String("upload_backend", cfg.Upload.Backend),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// loadConfig reads the config file and environment, then applies any flags
// set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = addr
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("session-store") {
		cfg.Session.Store = sessionStore
	}
	if flags.Changed("user-store") {
		cfg.Users.Store = userStore
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newHandler builds the full server handler: request logging, health and
// metrics endpoints, and the storefront pipeline, wrapped for tracing.
func newHandler(cfg config.Config, b *backends, logger *slog.Logger) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithRegisterer(reg),
		app.WithSessionTTL(cfg.Session.TTL),
		app.WithStoreTimeout(cfg.Users.LookupTimeout),
		app.WithMaxBodyBytes(cfg.Upload.MaxBytes),
		app.WithSecureCookies(cfg.Session.CookieSecure),
		app.WithUploads(upload.NewFilter(b.storage, upload.WithField(cfg.Upload.Field))),
		app.WithMount("/admin", adminRouter()),
	}
	if b.imagesDir != "" {
		if err := os.MkdirAll(b.imagesDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create images directory: %w", err)
		}
		opts = append(opts, app.WithImagesDir(b.imagesDir))
	}
	a := app.New(b.sessions, b.users, opts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", a.Router())

	return otelhttp.NewHandler(r, "storefront"), nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&addr, "addr", "a", ":3000", "Address to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&sessionStore, "session-store", config.BackendBolt, "Session store: memory, bbolt, redis or mongo")
	serverCmd.Flags().StringVar(&userStore, "user-store", config.BackendBolt, "User store: memory, bbolt or mongo")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}
