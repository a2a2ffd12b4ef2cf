package certauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/edvin/fetchctl/internal/cmdexec"
)

const (
	// Subject is the distinguished name of the generated CA.
	Subject     = "/CN=root@localhost"
	commonName  = "root@localhost"
	keyBits     = 4096
	validDays   = 7300
	passphrase  = "pass:1"
	opensslName = "openssl"
)

// OpenSSL generates the CA with the openssl command line tool. The key is
// written passphrase-protected first and then rewritten without the
// passphrase so the daemon can load it non-interactively.
type OpenSSL struct {
	Runner cmdexec.Runner
	// Binary overrides the openssl executable name.
	Binary string
}

func (o OpenSSL) Generate(ctx context.Context, certPath, keyPath string) error {
	bin := o.Binary
	if bin == "" {
		bin = opensslName
	}

	steps := [][]string{
		{"genrsa", "-aes256", "-passout", passphrase, "-out", keyPath, strconv.Itoa(keyBits)},
		{"rsa", "-passin", passphrase, "-in", keyPath, "-out", keyPath},
		{"req", "-subj", Subject, "-key", keyPath, "-new", "-x509",
			"-days", strconv.Itoa(validDays), "-sha256", "-extensions", "v3_ca", "-out", certPath},
	}
	for _, args := range steps {
		if _, err := o.Runner.Run(ctx, cmdexec.Command{Name: bin, Args: args}); err != nil {
			return err
		}
	}
	return nil
}

// Native generates the CA in-process with crypto/x509 using the same
// parameters as the openssl tool chain.
type Native struct {
	// Bits defaults to 4096.
	Bits int
	// Now defaults to time.Now.
	Now func() time.Time
}

func (n Native) Generate(ctx context.Context, certPath, keyPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bits := n.Bits
	if bits == 0 {
		bits = keyBits
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("certauth: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("certauth: generate serial: %w", err)
	}

	pubDER := x509.MarshalPKCS1PublicKey(&key.PublicKey)
	ski := sha1.Sum(pubDER)

	start := now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             start,
		NotAfter:              start.AddDate(0, 0, validDays),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		SubjectKeyId:          ski[:],
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("certauth: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("certauth: marshal key: %w", err)
	}

	if err := writePEM(keyPath, "PRIVATE KEY", keyDER, 0o600); err != nil {
		return err
	}
	return writePEM(certPath, "CERTIFICATE", certDER, 0o644)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("certauth: write %s: %w", path, err)
	}
	return nil
}
