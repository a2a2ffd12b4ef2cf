package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds process-wide settings for the fetch-service control plane.
// Values come from the environment; see Load for the variable names.
type Config struct {
	ServiceName string

	// ServiceBinary is the fetch-service executable launched by the supervisor.
	ServiceBinary string `validate:"required"`
	// ServiceBaseDir holds the daemon's config and spool directories.
	// Empty means "ask the fetch-service snap for $SNAP_USER_COMMON".
	ServiceBaseDir string

	Host        string `validate:"required,hostname|ip"`
	ProxyPort   int    `validate:"min=1,max=65535,nefield=ControlPort"`
	ControlPort int    `validate:"min=1,max=65535"`
	Username    string `validate:"required,excludes=:"`
	Password    string `validate:"required"`

	ControlTimeout time.Duration `validate:"gt=0"`
	StartupWait    time.Duration `validate:"gte=0"`
	ProbeAttempts  int           `validate:"min=1,max=120"`
	ProbeInterval  time.Duration `validate:"gt=0"`
	StopTimeout    time.Duration `validate:"gt=0"`

	// AppName selects the per-application data directory the CA lives in.
	AppName       string `validate:"required"`
	CertDir       string
	CertGenerator string `validate:"oneof=openssl native"`

	ArchiveKeyring string `validate:"required"`
	ArchiveKeyID   string `validate:"required,hexadecimal"`

	LXCBinary   string `validate:"required"`
	LogLevel    string
	MetricsAddr string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:    getEnv("SERVICE_NAME", "fetchctl"),
		ServiceBinary:  getEnv("FETCH_SERVICE_BINARY", "/snap/bin/fetch-service"),
		ServiceBaseDir: getEnv("FETCH_SERVICE_BASE_DIR", ""),
		Host:           getEnv("FETCH_HOST", "localhost"),
		Username:       getEnv("FETCH_USERNAME", "craft"),
		Password:       getEnv("FETCH_PASSWORD", "craft"),
		AppName:        getEnv("FETCH_APP_NAME", "craft-application"),
		CertDir:        getEnv("FETCH_CERT_DIR", ""),
		CertGenerator:  getEnv("FETCH_CERT_GENERATOR", "openssl"),
		ArchiveKeyring: getEnv("FETCH_ARCHIVE_KEYRING", "/snap/fetch-service/current/usr/share/keyrings/ubuntu-archive-keyring.gpg"),
		ArchiveKeyID:   getEnv("FETCH_ARCHIVE_KEY_ID", "F6ECB3762474EDA9D21B7022871920D1991BC93C"),
		LXCBinary:      getEnv("LXC_BINARY", "lxc"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
	}

	var err error
	if cfg.ProxyPort, err = getEnvInt("FETCH_PROXY_PORT", 13444); err != nil {
		return nil, err
	}
	if cfg.ControlPort, err = getEnvInt("FETCH_CONTROL_PORT", 13555); err != nil {
		return nil, err
	}
	if cfg.ProbeAttempts, err = getEnvInt("FETCH_PROBE_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.ControlTimeout, err = getEnvDuration("FETCH_CONTROL_TIMEOUT", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.StartupWait, err = getEnvDuration("FETCH_STARTUP_WAIT", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getEnvDuration("FETCH_PROBE_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = getEnvDuration("FETCH_STOP_TIMEOUT", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
