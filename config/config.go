// Package config loads storefront server settings from defaults, an
// optional YAML file and STOREFRONT_* environment variables, in that order.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by SessionStore and UserStore.
const (
	BackendMemory = "memory"
	BackendBolt   = "bbolt"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendDisk   = "disk"
	BackendS3     = "s3"
)

type Config struct {
	Addr     string `yaml:"addr"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Session Session `yaml:"session"`
	Users   Users   `yaml:"users"`
	Upload  Upload  `yaml:"upload"`
	Redis   Redis   `yaml:"redis"`
	Mongo   Mongo   `yaml:"mongo"`
}

type Session struct {
	Store string        `yaml:"store"`
	TTL   time.Duration `yaml:"ttl"`
	// SealingKey is a hex encoded 32-byte key used by the bbolt store.
	SealingKey   string `yaml:"sealing_key"`
	CookieSecure bool   `yaml:"cookie_secure"`
}

type Users struct {
	Store         string        `yaml:"store"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

type Upload struct {
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	Field    string `yaml:"field"`
	MaxBytes int64  `yaml:"max_bytes"`
	S3       S3     `yaml:"s3"`
}

type S3 struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:     ":3000",
		DataDir:  "./data",
		LogLevel: "info",
		Session: Session{
			Store: BackendBolt,
			TTL:   24 * time.Hour,
		},
		Users: Users{
			Store:         BackendBolt,
			LookupTimeout: 5 * time.Second,
		},
		Upload: Upload{
			Backend:  BackendDisk,
			Dir:      "images",
			Field:    "image",
			MaxBytes: 10 << 20,
		},
		Redis: Redis{Addr: "localhost:6379"},
		Mongo: Mongo{Database: "shop"},
	}
}

// Load returns Default overlaid with the YAML file at path (if path is not
// empty) and then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Addr = ":" + v
	}
	str("STOREFRONT_ADDR", &c.Addr)
	str("STOREFRONT_DATA_DIR", &c.DataDir)
	str("STOREFRONT_LOG_LEVEL", &c.LogLevel)
	str("STOREFRONT_SESSION_STORE", &c.Session.Store)
	str("STOREFRONT_SESSION_KEY", &c.Session.SealingKey)
	str("STOREFRONT_USER_STORE", &c.Users.Store)
	str("STOREFRONT_UPLOAD_BACKEND", &c.Upload.Backend)
	str("STOREFRONT_UPLOAD_DIR", &c.Upload.Dir)
	str("STOREFRONT_REDIS_ADDR", &c.Redis.Addr)
	str("STOREFRONT_REDIS_PASSWORD", &c.Redis.Password)
	str("STOREFRONT_MONGO_URI", &c.Mongo.URI)
	str("STOREFRONT_MONGO_DATABASE", &c.Mongo.Database)
	str("STOREFRONT_S3_BUCKET", &c.Upload.S3.Bucket)
	str("STOREFRONT_S3_ENDPOINT", &c.Upload.S3.Endpoint)
	str("STOREFRONT_S3_ACCESS_KEY", &c.Upload.S3.AccessKey)
	str("STOREFRONT_S3_SECRET_KEY", &c.Upload.S3.SecretKey)
	if v, ok := lookup("STOREFRONT_SESSION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STOREFRONT_SESSION_TTL: %w", err)
		}
		c.Session.TTL = d
	}
	if v, ok := lookup("STOREFRONT_COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STOREFRONT_COOKIE_SECURE: %w", err)
		}
		c.Session.CookieSecure = b
	}
	return nil
}

// SealingKeyBytes decodes Session.SealingKey. An empty key yields nil.
func (c Config) SealingKeyBytes() ([]byte, error) {
	if c.Session.SealingKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Session.SealingKey)
	if err != nil {
		return nil, fmt.Errorf("session sealing key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session sealing key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch c.Session.Store {
	case BackendMemory, BackendBolt, BackendRedis, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q", c.Session.Store))
	}
	switch c.Users.Store {
	case BackendMemory, BackendBolt, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown user store %q", c.Users.Store))
	}
	switch c.Upload.Backend {
	case BackendDisk:
		if c.Upload.Dir == "" {
			errs = append(errs, errors.New("upload dir is required for the disk backend"))
		}
	case BackendS3:
		if c.Upload.S3.Bucket == "" {
			errs = append(errs, errors.New("upload s3 bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Upload.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Users.LookupTimeout <= 0 {
		errs = append(errs, errors.New("user lookup timeout must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload max bytes must be positive"))
	}
	if c.Upload.Field == "" {
		errs = append(errs, errors.New("upload field is required"))
	}
	if (c.Session.Store == BackendMongo || c.Users.Store == BackendMongo) && c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo uri is required for the mongo backend"))
	}
	if _, err := c.SealingKeyBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
