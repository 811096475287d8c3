package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/session"
	sessionbolt "github.com/jmcleod/storefront/session/bbolt"
	sessionmemory "github.com/jmcleod/storefront/session/memory"
	sessionmongo "github.com/jmcleod/storefront/session/mongo"
	sessionredis "github.com/jmcleod/storefront/session/redis"
	"github.com/jmcleod/storefront/upload"
	uploads3 "github.com/jmcleod/storefront/upload/s3"
	"github.com/jmcleod/storefront/user"
	userbolt "github.com/jmcleod/storefront/user/bbolt"
	usermemory "github.com/jmcleod/storefront/user/memory"
	usermongo "github.com/jmcleod/storefront/user/mongo"
)

// userBackend is what the server and the user command need from a backend.
type userBackend interface {
	user.Store
	user.Writer
}

// backends holds the opened stores. Close releases them in reverse order.
type backends struct {
	sessions  session.Store
	users     userBackend
	storage   upload.Storage
	imagesDir string

	mongoDB *mongo.Database
	closers []func() error
}

func (b *backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openBackends opens the session store, user store and upload storage named
// by cfg. On error everything opened so far is closed.
func openBackends(ctx context.Context, cfg config.Config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cfg.Session.Store == config.BackendMongo || cfg.Users.Store == config.BackendMongo {
		if err := b.connectMongo(ctx, cfg.Mongo); err != nil {
			return nil, err
		}
	}
	if err := b.openSessions(ctx, cfg); err != nil {
		return nil, err
	}
	if err := b.openUsers(ctx, cfg); err != nil {
		return nil, err
	}
	if err := b.openStorage(ctx, cfg); err != nil {
		return nil, err
	}
	return b, nil
}

// openUserBackend opens only the user store, for tools that must not touch
// a running server's session database.
func openUserBackend(ctx context.Context, cfg config.Config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cfg.Users.Store == config.BackendMongo {
		if err := b.connectMongo(ctx, cfg.Mongo); err != nil {
			return nil, err
		}
	}
	if err := b.openUsers(ctx, cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *backends) connectMongo(ctx context.Context, cfg config.Mongo) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return fmt.Errorf("connecting to mongo: %w", err)
	}
	b.onClose(func() error { return client.Disconnect(context.Background()) })
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("pinging mongo: %w", err)
	}
	b.mongoDB = client.Database(cfg.Database)
	return nil
}

func (b *backends) openSessions(ctx context.Context, cfg config.Config) error {
	switch cfg.Session.Store {
	case config.BackendMemory:
		b.sessions = sessionmemory.New()
	case config.BackendBolt:
		key, err := cfg.SealingKeyBytes()
		if err != nil {
			return err
		}
		s, err := sessionbolt.NewFromFile(filepath.Join(cfg.DataDir, "sessions.db"), sessionbolt.Options{SealingKey: key})
		if err != nil {
			return fmt.Errorf("failed to open session storage: %w", err)
		}
		b.onClose(s.Close)
		b.sessions = s
	case config.BackendRedis:
		client, err := sessionredis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		b.onClose(client.Close)
		b.sessions = sessionredis.New(client, cfg.Redis.Prefix)
	case config.BackendMongo:
		s, err := sessionmongo.New(ctx, b.mongoDB, "")
		if err != nil {
			return err
		}
		b.sessions = s
	default:
		return fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	return nil
}

func (b *backends) openUsers(_ context.Context, cfg config.Config) error {
	switch cfg.Users.Store {
	case config.BackendMemory:
		b.users = usermemory.New()
	case config.BackendBolt:
		s, err := userbolt.NewFromFile(filepath.Join(cfg.DataDir, "users.db"))
		if err != nil {
			return fmt.Errorf("failed to open user storage: %w", err)
		}
		b.onClose(s.Close)
		b.users = s
	case config.BackendMongo:
		b.users = usermongo.New(b.mongoDB, "")
	default:
		return fmt.Errorf("unknown user store %q", cfg.Users.Store)
	}
	return nil
}

func (b *backends) openStorage(ctx context.Context, cfg config.Config) error {
	switch cfg.Upload.Backend {
	case config.BackendDisk:
		b.imagesDir = cfg.Upload.Dir
		b.storage = upload.NewDiskStorage(cfg.Upload.Dir)
	case config.BackendS3:
		s, err := uploads3.NewFromConfig(ctx, uploads3.Config{
			Endpoint:       cfg.Upload.S3.Endpoint,
			Region:         cfg.Upload.S3.Region,
			Bucket:         cfg.Upload.S3.Bucket,
			Prefix:         cfg.Upload.S3.Prefix,
			AccessKey:      cfg.Upload.S3.AccessKey,
			SecretKey:      cfg.Upload.S3.SecretKey,
			ForcePathStyle: cfg.Upload.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		b.storage = s
	default:
		return fmt.Errorf("unknown upload backend %q", cfg.Upload.Backend)
	}
	return nil
}

// newLogger returns a JSON logger at the named level. Unknown levels fall
// back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
