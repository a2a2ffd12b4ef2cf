package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/edvin/fetchctl/internal/cmdexec"
)

// ArchiveKeyExporter exports the package archive signing key the daemon uses
// to verify apt repositories it proxies.
type ArchiveKeyExporter struct {
	Runner  cmdexec.Runner
	Keyring string
	KeyID   string
}

// Export returns the ASCII-armored public key.
func (x ArchiveKeyExporter) Export(ctx context.Context) (string, error) {
	out, err := x.Runner.Run(ctx, cmdexec.Command{
		Name: "gpg",
		Args: []string{
			"--export", "--armor", "--no-default-keyring",
			"--keyring", x.Keyring, x.KeyID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("export archive key %s: %w", x.KeyID, err)
	}
	key := string(out)
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("export archive key %s: key not found in %s", x.KeyID, x.Keyring)
	}
	return key, nil
}

// SnapBaseDir resolves the daemon's runtime directory as the fetch-service
// snap's $SNAP_USER_COMMON.
type SnapBaseDir struct {
	Runner cmdexec.Runner
}

func (s SnapBaseDir) BaseDir(ctx context.Context) (string, error) {
	out, err := s.Runner.Run(ctx, cmdexec.Command{
		Name:  "snap",
		Args:  []string{"run", "--shell", "fetch-service"},
		Stdin: strings.NewReader("sh -c 'echo $SNAP_USER_COMMON'"),
	})
	if err != nil {
		return "", fmt.Errorf("resolve fetch-service base directory: %w", err)
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" {
		return "", fmt.Errorf("resolve fetch-service base directory: snap reported an empty $SNAP_USER_COMMON")
	}
	return dir, nil
}

// StaticBaseDir is a base directory fixed by configuration.
type StaticBaseDir string

func (d StaticBaseDir) BaseDir(context.Context) (string, error) { return string(d), nil }
