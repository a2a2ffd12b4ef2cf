package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchEnvVars = []string{
	"FETCH_SERVICE_BINARY", "FETCH_SERVICE_BASE_DIR", "FETCH_HOST",
	"FETCH_PROXY_PORT", "FETCH_CONTROL_PORT", "FETCH_USERNAME", "FETCH_PASSWORD",
	"FETCH_CONTROL_TIMEOUT", "FETCH_STARTUP_WAIT", "FETCH_PROBE_ATTEMPTS",
	"FETCH_PROBE_INTERVAL", "FETCH_STOP_TIMEOUT", "FETCH_APP_NAME", "FETCH_CERT_DIR",
	"FETCH_CERT_GENERATOR", "FETCH_ARCHIVE_KEYRING", "FETCH_ARCHIVE_KEY_ID",
	"LXC_BINARY", "LOG_LEVEL", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range fetchEnvVars {
		// t.Setenv registers the restore; Unsetenv then clears it for the test.
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/snap/bin/fetch-service", cfg.ServiceBinary)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 13444, cfg.ProxyPort)
	assert.Equal(t, 13555, cfg.ControlPort)
	assert.Equal(t, "craft", cfg.Username)
	assert.Equal(t, "craft", cfg.Password)
	assert.Equal(t, 100*time.Millisecond, cfg.ControlTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.StartupWait)
	assert.Equal(t, 10, cfg.ProbeAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ProbeInterval)
	assert.Equal(t, time.Second, cfg.StopTimeout)
	assert.Equal(t, "craft-application", cfg.AppName)
	assert.Equal(t, "openssl", cfg.CertGenerator)
	assert.Equal(t, "F6ECB3762474EDA9D21B7022871920D1991BC93C", cfg.ArchiveKeyID)
	assert.Equal(t, "lxc", cfg.LXCBinary)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.ServiceBaseDir)
	assert.Equal(t, "", cfg.MetricsAddr)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_SERVICE_BINARY", "/opt/fetch/bin/fetch-service")
	t.Setenv("FETCH_SERVICE_BASE_DIR", "/var/lib/fetch")
	t.Setenv("FETCH_HOST", "127.0.0.1")
	t.Setenv("FETCH_PROXY_PORT", "23444")
	t.Setenv("FETCH_CONTROL_PORT", "23555")
	t.Setenv("FETCH_USERNAME", "builder")
	t.Setenv("FETCH_PASSWORD", "s3cret")
	t.Setenv("FETCH_CONTROL_TIMEOUT", "50ms")
	t.Setenv("FETCH_PROBE_ATTEMPTS", "3")
	t.Setenv("FETCH_PROBE_INTERVAL", "250ms")
	t.Setenv("FETCH_CERT_GENERATOR", "native")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/fetch/bin/fetch-service", cfg.ServiceBinary)
	assert.Equal(t, "/var/lib/fetch", cfg.ServiceBaseDir)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 23444, cfg.ProxyPort)
	assert.Equal(t, 23555, cfg.ControlPort)
	assert.Equal(t, "builder", cfg.Username)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, 50*time.Millisecond, cfg.ControlTimeout)
	assert.Equal(t, 3, cfg.ProbeAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeInterval)
	assert.Equal(t, "native", cfg.CertGenerator)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_PROXY_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_PROXY_PORT")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_CONTROL_TIMEOUT", "fast")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_CONTROL_TIMEOUT")
}

func TestValidate_SamePorts(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_PROXY_PORT", "13555")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidate_UsernameWithColon(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_USERNAME", "craft:admin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownGenerator(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_CERT_GENERATOR", "cfssl")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CertGenerator")
}
