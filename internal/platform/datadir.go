package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// UserDataDir returns the per-user data directory for an application,
// following the XDG base directory layout on Linux and the platform's
// conventional location elsewhere.
// Example: ~/.local/share/craft-application
func UserDataDir(appName string) (string, error) {
	return userDataDir(runtime.GOOS, appName, os.Getenv, os.UserHomeDir)
}

func userDataDir(goos, appName string, getenv func(string) string, home func() (string, error)) (string, error) {
	if appName == "" {
		return "", fmt.Errorf("application name is required")
	}

	switch goos {
	case "windows":
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName, appName), nil
		}
	case "darwin":
		h, err := home()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(h, "Library", "Application Support", appName), nil
	default:
		if dir := getenv("XDG_DATA_HOME"); filepath.IsAbs(dir) {
			return filepath.Join(dir, appName), nil
		}
	}

	h, err := home()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(h, ".local", "share", appName), nil
}
