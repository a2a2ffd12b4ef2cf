package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func homeDir(dir string) func() (string, error) {
	return func() (string, error) { return dir, nil }
}

func TestUserDataDir_LinuxDefault(t *testing.T) {
	dir, err := userDataDir("linux", "craft-application", env(nil), homeDir("/home/ubuntu"))
	require.NoError(t, err)
	assert.Equal(t, "/home/ubuntu/.local/share/craft-application", dir)
}

func TestUserDataDir_LinuxXDG(t *testing.T) {
	dir, err := userDataDir("linux", "craft-application",
		env(map[string]string{"XDG_DATA_HOME": "/data"}), homeDir("/home/ubuntu"))
	require.NoError(t, err)
	assert.Equal(t, "/data/craft-application", dir)
}

func TestUserDataDir_LinuxRelativeXDGIgnored(t *testing.T) {
	dir, err := userDataDir("linux", "craft-application",
		env(map[string]string{"XDG_DATA_HOME": "relative/data"}), homeDir("/home/ubuntu"))
	require.NoError(t, err)
	assert.Equal(t, "/home/ubuntu/.local/share/craft-application", dir)
}

func TestUserDataDir_Darwin(t *testing.T) {
	dir, err := userDataDir("darwin", "craft-application", env(nil), homeDir("/Users/dev"))
	require.NoError(t, err)
	assert.Equal(t, "/Users/dev/Library/Application Support/craft-application", dir)
}

func TestUserDataDir_EmptyAppName(t *testing.T) {
	_, err := userDataDir("linux", "", env(nil), homeDir("/home/ubuntu"))
	assert.Error(t, err)
}

func TestUserDataDir_NoHome(t *testing.T) {
	_, err := userDataDir("linux", "app", env(nil), func() (string, error) {
		return "", errors.New("no home")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home directory")
}
