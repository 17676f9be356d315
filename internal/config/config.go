package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the daemon process.
// All values must come from env (or env-file loaded by the process runner).
// No call logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Push      PushConfig
	Signaling SignalingConfig
	Provider  ProviderConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional: without DB_HOST the daemon keeps call history
// in memory only.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional: without REDIS_HOST the token registration and
// the call cap fall back to in-process state.
type RedisConfig struct {
	Host string
	Port int
}

type PushConfig struct {
	// Secret verifies push payload signatures.
	Secret string

	// HoldingTimeout bounds how long a cancellation that arrived before its
	// invite is parked. Optional; default applied in Validate().
	HoldingTimeout time.Duration
}

type SignalingConfig struct {
	// URL of the signaling edge, ws:// or wss://.
	URL string

	// AccessToken presented on the signaling handshake.
	AccessToken string
}

type ProviderConfig struct {
	// MaxConcurrentCalls caps simultaneous system-UI call entries.
	// Optional; default applied in Validate().
	MaxConcurrentCalls int

	// CapTTL expires abandoned cap slots. Optional.
	CapTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Push.Secret = os.Getenv("PUSH_SECRET")
	c.Push.HoldingTimeout = mustDuration("PUSH_HOLDING_TIMEOUT")

	c.Signaling.URL = strings.TrimSpace(os.Getenv("SIGNALING_URL"))
	c.Signaling.AccessToken = os.Getenv("SIGNALING_TOKEN")

	c.Provider.MaxConcurrentCalls = optInt("PROVIDER_MAX_CALLS")
	c.Provider.CapTTL = mustDuration("PROVIDER_CAP_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host != "" {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("DB_HOST is required in production"))
	}

	if c.Redis.Host != "" {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("REDIS_HOST is required in production"))
	}

	if c.Push.Secret == "" {
		errs = append(errs, errors.New("PUSH_SECRET is required"))
	}
	if c.Push.HoldingTimeout <= 0 {
		// Default: outlive push transport reordering, not much more.
		c.Push.HoldingTimeout = 5 * time.Second
	}

	if c.Signaling.URL == "" {
		errs = append(errs, errors.New("SIGNALING_URL is required"))
	} else if !strings.HasPrefix(c.Signaling.URL, "ws://") && !strings.HasPrefix(c.Signaling.URL, "wss://") {
		errs = append(errs, fmt.Errorf("SIGNALING_URL must be a ws:// or wss:// URL, got %q", c.Signaling.URL))
	}
	if c.IsProduction() && c.Signaling.AccessToken == "" {
		errs = append(errs, errors.New("SIGNALING_TOKEN is required in production"))
	}

	if c.Provider.MaxConcurrentCalls <= 0 {
		// Default: one active call plus one held or incoming call.
		c.Provider.MaxConcurrentCalls = 2
	}
	if c.Provider.CapTTL <= 0 {
		c.Provider.CapTTL = time.Minute
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HasDB() bool    { return c.DB.Host != "" }
func (c *Config) HasRedis() bool { return c.Redis.Host != "" }

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optInt returns 0 for unset or unparsable values; defaults are applied in
// Validate().
func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
