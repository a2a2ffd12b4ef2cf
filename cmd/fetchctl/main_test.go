package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/fetchctl/internal/fetch"
	"github.com/edvin/fetchctl/internal/fetchtest"
)

// pointAt configures the environment so fetchctl talks to d.
func pointAt(t *testing.T, d *fetchtest.Daemon) {
	t.Helper()
	ep := d.Endpoint(13444)
	t.Setenv("FETCH_HOST", ep.Host)
	t.Setenv("FETCH_CONTROL_PORT", strconv.Itoa(ep.ControlPort))
	t.Setenv("FETCH_USERNAME", ep.Username)
	t.Setenv("FETCH_PASSWORD", ep.Password)
	t.Setenv("FETCH_CONTROL_TIMEOUT", "1s")
	t.Setenv("FETCH_CERT_DIR", filepath.Join(t.TempDir(), "certs"))
	t.Setenv("FETCH_SERVICE_BASE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"status", "cert", "serve", "session", "configure", "run"} {
		assert.Contains(t, names, want)
	}
}

func TestStatus_Online(t *testing.T) {
	d := fetchtest.NewDaemon(t)
	pointAt(t, d)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "fetch-service: online")
	assert.Contains(t, out, `"uptime"`)
}

func TestStatus_Offline(t *testing.T) {
	d := fetchtest.NewDaemon(t)
	d.SetOnline(false)
	pointAt(t, d)

	out, err := execute(t, "status")
	require.ErrorIs(t, err, fetch.ErrControlRequest)
	assert.Contains(t, out, "fetch-service: offline")
}

func TestSessionCreateAndTeardown(t *testing.T) {
	d := fetchtest.NewDaemon(t)
	pointAt(t, d)

	out, err := execute(t, "session", "create")
	require.NoError(t, err)

	var s fetch.Session
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, d.Sessions())

	out, err = execute(t, "session", "teardown", "--id", s.ID, "--token", s.Token)
	require.NoError(t, err)
	assert.Contains(t, out, s.ID)
	assert.Equal(t, 0, d.Sessions())
}

func TestSessionTeardown_RequiresFlags(t *testing.T) {
	d := fetchtest.NewDaemon(t)
	pointAt(t, d)

	_, err := execute(t, "session", "teardown", "--id", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
	assert.Empty(t, d.Calls())
}

func TestInvalidConfig(t *testing.T) {
	d := fetchtest.NewDaemon(t)
	pointAt(t, d)
	t.Setenv("FETCH_CERT_GENERATOR", "magic")

	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Empty(t, d.Calls())
}

func TestCert(t *testing.T) {
	if testing.Short() {
		t.Skip("generates a 4096-bit key")
	}
	d := fetchtest.NewDaemon(t)
	pointAt(t, d)
	t.Setenv("FETCH_CERT_GENERATOR", "native")

	out, err := execute(t, "cert")
	require.NoError(t, err)

	dir := os.Getenv("FETCH_CERT_DIR")
	assert.Contains(t, out, filepath.Join(dir, "local-ca.pem"))
	assert.FileExists(t, filepath.Join(dir, "local-ca.pem"))
	assert.FileExists(t, filepath.Join(dir, "local-ca.key.pem"))
}

func TestWriteEnv(t *testing.T) {
	var buf bytes.Buffer
	writeEnv(&buf, map[string]string{"https_proxy": "b", "REQUESTS_CA_BUNDLE": "c", "http_proxy": "a"})

	assert.Equal(t, []string{"REQUESTS_CA_BUNDLE=c", "http_proxy=a", "https_proxy=b"},
		strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &fetch.Error{
		Kind:       fetch.ErrPortsInUse,
		Message:    "fetch-service ports 13444 and 13555 are already in use",
		Details:    "bind: address already in use",
		Resolution: "Stop the other process.",
	})

	out := buf.String()
	assert.Contains(t, out, "error: fetch-service ports 13444 and 13555 are already in use")
	assert.Contains(t, out, "details: bind: address already in use")
	assert.Contains(t, out, "resolution: Stop the other process.")

	buf.Reset()
	printError(&buf, errors.New("plain"))
	assert.Equal(t, "error: plain\n", buf.String())
}
