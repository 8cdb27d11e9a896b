// Package config loads Gatehouse server settings from defaults, an
// optional YAML file, a .env file, and GATEHOUSE_* environment variables,
// in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the Gatehouse server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8000")
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	LogFile   string `yaml:"log_file"`   // Append logs here as well as stderr

	Users     UsersConfig     `yaml:"users"`
	Password  PasswordConfig  `yaml:"password"`
	Session   SessionConfig   `yaml:"session"`
	Upload    UploadConfig    `yaml:"upload"`
	StaticDir string          `yaml:"static_dir"`
	LoginRate LoginRateConfig `yaml:"login_rate"`
	CORS      CORSConfig      `yaml:"cors"`
}

// UsersConfig selects the user table backend.
type UsersConfig struct {
	Backend    string `yaml:"backend"` // csv or sqlite
	CSVPath    string `yaml:"csv_path"`
	SQLitePath string `yaml:"sqlite_path"` // ":memory:" for testing
}

// PasswordConfig controls how new passwords are hashed.
type PasswordConfig struct {
	Scheme     string `yaml:"scheme"` // sha256 or bcrypt
	BcryptCost int    `yaml:"bcrypt_cost"`
}

// SessionConfig controls the session table.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	Backend       string        `yaml:"backend"` // memory or redis
	RedisAddr     string        `yaml:"redis_addr"`
	RedisDB       int           `yaml:"redis_db"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 disables the janitor
	SecureCookies bool          `yaml:"secure_cookies"`
}

// UploadConfig controls avatar uploads.
type UploadConfig struct {
	Dir     string `yaml:"dir"`
	MaxSize string `yaml:"max_size"` // e.g. "8 MiB"
}

// LoginRateConfig throttles POST /login per client address.
type LoginRateConfig struct {
	PerMinute int `yaml:"per_minute"` // 0 disables
	Burst     int `yaml:"burst"`
}

// CORSConfig enables CORS on the JSON API when origins are listed.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8000",
		LogLevel:  "info",
		LogFormat: "text",
		Users: UsersConfig{
			Backend:    "csv",
			CSVPath:    "users.csv",
			SQLitePath: "gatehouse.db",
		},
		Password: PasswordConfig{
			Scheme: "sha256",
		},
		Session: SessionConfig{
			TTL:       3 * time.Minute,
			Backend:   "memory",
			RedisAddr: "localhost:6379",
		},
		Upload: UploadConfig{
			Dir:     "uploads",
			MaxSize: "8 MiB",
		},
		StaticDir: "static",
	}
}

// MaxUploadBytes parses Upload.MaxSize.
func (c ServerConfig) MaxUploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Upload.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("upload.max_size %q: %w", c.Upload.MaxSize, err)
	}
	return int64(n), nil
}

// Load builds a ServerConfig. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	// A missing .env is not an error.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c ServerConfig) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch c.Users.Backend {
	case "csv":
		if c.Users.CSVPath == "" {
			errs = append(errs, errors.New("users.csv_path is required for the csv backend"))
		}
	case "sqlite":
		if c.Users.SQLitePath == "" {
			errs = append(errs, errors.New("users.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("users.backend %q: want csv or sqlite", c.Users.Backend))
	}
	switch c.Password.Scheme {
	case "", "sha256", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("password.scheme %q: want sha256 or bcrypt", c.Password.Scheme))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q: want memory or redis", c.Session.Backend))
	}
	if c.Session.SweepInterval < 0 {
		errs = append(errs, errors.New("session.sweep_interval must not be negative"))
	}
	if c.Upload.Dir == "" {
		errs = append(errs, errors.New("upload.dir is required"))
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.LoginRate.PerMinute < 0 || c.LoginRate.Burst < 0 {
		errs = append(errs, errors.New("login_rate values must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnv(c *ServerConfig) error {
	setString("GATEHOUSE_ADDR", &c.Addr)
	setString("GATEHOUSE_LOG_LEVEL", &c.LogLevel)
	setString("GATEHOUSE_LOG_FORMAT", &c.LogFormat)
	setString("GATEHOUSE_LOG_FILE", &c.LogFile)
	setString("GATEHOUSE_USERS_BACKEND", &c.Users.Backend)
	setString("GATEHOUSE_USERS_CSV", &c.Users.CSVPath)
	setString("GATEHOUSE_USERS_SQLITE", &c.Users.SQLitePath)
	setString("GATEHOUSE_PASSWORD_SCHEME", &c.Password.Scheme)
	setString("GATEHOUSE_SESSION_BACKEND", &c.Session.Backend)
	setString("GATEHOUSE_REDIS_ADDR", &c.Session.RedisAddr)
	setString("GATEHOUSE_UPLOAD_DIR", &c.Upload.Dir)
	setString("GATEHOUSE_UPLOAD_MAX_SIZE", &c.Upload.MaxSize)
	setString("GATEHOUSE_STATIC_DIR", &c.StaticDir)

	if v, ok := os.LookupEnv("GATEHOUSE_CORS_ORIGINS"); ok {
		c.CORS.AllowedOrigins = splitList(v)
	}

	var err error
	if err = setInt("GATEHOUSE_BCRYPT_COST", &c.Password.BcryptCost); err != nil {
		return err
	}
	if err = setInt("GATEHOUSE_REDIS_DB", &c.Session.RedisDB); err != nil {
		return err
	}
	if err = setInt("GATEHOUSE_LOGIN_RATE", &c.LoginRate.PerMinute); err != nil {
		return err
	}
	if err = setInt("GATEHOUSE_LOGIN_BURST", &c.LoginRate.Burst); err != nil {
		return err
	}
	if err = setDuration("GATEHOUSE_SESSION_TTL", &c.Session.TTL); err != nil {
		return err
	}
	if err = setDuration("GATEHOUSE_SESSION_SWEEP", &c.Session.SweepInterval); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("GATEHOUSE_SECURE_COOKIES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GATEHOUSE_SECURE_COOKIES: %w", err)
		}
		c.Session.SecureCookies = b
	}
	return nil
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
