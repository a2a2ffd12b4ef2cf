package certauth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/fetchctl/internal/platform"
)

const (
	// DirName is the subdirectory of the application data directory holding the CA.
	DirName      = "fetch-certificate"
	CertFileName = "local-ca.pem"
	KeyFileName  = "local-ca.key.pem"

	lockFileName = ".lock"
)

// Bundle locates a CA certificate and its private key on disk.
type Bundle struct {
	CertificatePath string
	KeyPath         string
}

// Generator writes a fresh self-signed CA certificate and matching unencrypted
// private key to the given paths, replacing anything already there.
type Generator interface {
	Generate(ctx context.Context, certPath, keyPath string) error
}

// Authority owns the on-disk CA bundle shared by every session on the host.
type Authority struct {
	dir    string
	gen    Generator
	logger zerolog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// New creates an Authority storing its bundle in dir.
func New(logger zerolog.Logger, dir string, gen Generator) *Authority {
	return &Authority{
		dir:    dir,
		gen:    gen,
		logger: logger.With().Str("component", "certauth").Logger(),
		now:    time.Now,
	}
}

// DefaultDir returns the CA directory inside the application's data directory.
func DefaultDir(appName string) (string, error) {
	base, err := platform.UserDataDir(appName)
	if err != nil {
		return "", fmt.Errorf("certauth: %w", err)
	}
	return filepath.Join(base, DirName), nil
}

// Bundle returns the bundle paths without checking or creating them.
func (a *Authority) Bundle() Bundle {
	return Bundle{
		CertificatePath: filepath.Join(a.dir, CertFileName),
		KeyPath:         filepath.Join(a.dir, KeyFileName),
	}
}

// Obtain returns the CA bundle, generating it if the certificate or key is
// missing, unparseable or expired. Callers in the same process share one
// generation; other processes are serialized with an advisory file lock.
func (a *Authority) Obtain(ctx context.Context) (Bundle, error) {
	v, err, _ := a.group.Do("obtain", func() (any, error) {
		return a.obtain(ctx)
	})
	if err != nil {
		return Bundle{}, err
	}
	return v.(Bundle), nil
}

func (a *Authority) obtain(ctx context.Context) (Bundle, error) {
	b := a.Bundle()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Bundle{}, fmt.Errorf("certauth: create %s: %w", a.dir, err)
	}

	if a.usable(b) {
		return b, nil
	}

	unlock, err := lockDir(filepath.Join(a.dir, lockFileName))
	if err != nil {
		return Bundle{}, fmt.Errorf("certauth: lock %s: %w", a.dir, err)
	}
	defer unlock()

	// Another process may have finished generating while we waited.
	if a.usable(b) {
		return b, nil
	}

	a.logger.Info().Str("dir", a.dir).Msg("generating fetch-service certificate authority")
	if err := a.generate(ctx, b); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// usable reports whether both files exist and the certificate is still valid.
func (a *Authority) usable(b Bundle) bool {
	if !isFile(b.CertificatePath) || !isFile(b.KeyPath) {
		return false
	}

	cert, err := readCertificate(b.CertificatePath)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", b.CertificatePath).Msg("existing certificate unreadable, regenerating")
		return false
	}
	if a.now().After(cert.NotAfter) {
		a.logger.Warn().Time("not_after", cert.NotAfter).Msg("existing certificate expired, regenerating")
		return false
	}
	return true
}

func (a *Authority) generate(ctx context.Context, b Bundle) error {
	certTmp, err := tempPath(a.dir, "cert-*.pem")
	if err != nil {
		return err
	}
	defer os.Remove(certTmp)

	keyTmp, err := tempPath(a.dir, "key-*.pem")
	if err != nil {
		return err
	}
	defer os.Remove(keyTmp)

	if err := a.gen.Generate(ctx, certTmp, keyTmp); err != nil {
		return err
	}
	if err := os.Chmod(keyTmp, 0o600); err != nil {
		return fmt.Errorf("certauth: restrict key permissions: %w", err)
	}
	if err := os.Chmod(certTmp, 0o644); err != nil {
		return fmt.Errorf("certauth: set certificate permissions: %w", err)
	}

	// The key goes away first and comes back last, so the pair only looks
	// complete once both renames have landed.
	if err := os.Remove(b.KeyPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("certauth: remove stale key: %w", err)
	}
	if err := os.Rename(certTmp, b.CertificatePath); err != nil {
		return fmt.Errorf("certauth: install certificate: %w", err)
	}
	if err := os.Rename(keyTmp, b.KeyPath); err != nil {
		return fmt.Errorf("certauth: install key: %w", err)
	}
	return nil
}

func tempPath(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("certauth: create temporary file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("certauth: create temporary file: %w", err)
	}
	return name, nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}
