package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/fetchctl/internal/certauth"
	"github.com/edvin/fetchctl/internal/fetch"
	"github.com/edvin/fetchctl/internal/fetchtest"
)

const testProxyPort = 13444

type staticKey string

func (k staticKey) Export(context.Context) (string, error) { return string(k), nil }

var testBundle = fetchtest.StaticCerts(certauth.Bundle{
	CertificatePath: "/data/fetch-certificate/local-ca.pem",
	KeyPath:         "/data/fetch-certificate/local-ca.key.pem",
})

func newClient(d *fetchtest.Daemon) *fetch.Client {
	return fetch.NewClient(zerolog.Nop(), d.Endpoint(testProxyPort), time.Second)
}

// supervisorOptions returns fast timings and in-memory collaborators.
func supervisorOptions(t *testing.T, l *fetchtest.Launcher) fetch.SupervisorOptions {
	t.Helper()
	return fetch.SupervisorOptions{
		Launcher:      l,
		Certificates:  testBundle,
		ArchiveKey:    staticKey("ARMORED KEY"),
		BaseDir:       fetch.StaticBaseDir(t.TempDir()),
		Binary:        "/snap/bin/fetch-service",
		StartupWait:   time.Millisecond,
		ProbeAttempts: 5,
		ProbeInterval: 5 * time.Millisecond,
		StopTimeout:   50 * time.Millisecond,
		PortCheck:     func(fetch.ServiceEndpoint) error { return nil },
	}
}

type failingKey struct{ err error }

func (k failingKey) Export(context.Context) (string, error) { return "", k.err }
