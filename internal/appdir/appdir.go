// Package appdir locates the hermes data directory and the configuration
// file. The data directory holds artifacts written by display handlers
// (figures, sanitized HTML) and the default log file.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// HermesDirEnv overrides the hermes data directory.
	HermesDirEnv = "HERMES_DIR"

	// HermesRCEnv overrides the configuration file path.
	HermesRCEnv = "HERMESRC"

	// RCFileName is the name of the configuration file in the home directory.
	RCFileName = ".hermesrc"

	// ArtifactsDirName is the name of the artifacts subdirectory.
	ArtifactsDirName = "artifacts"

	// LogFileName is the name of the default log file.
	LogFileName = "hermes.log"
)

// Dir returns the hermes data directory: $HERMES_DIR when set, otherwise
// a "hermes" directory under the platform's per-user data location
// (~/Library/Application Support on macOS, %APPDATA% on Windows,
// $XDG_DATA_HOME or ~/.local/share elsewhere).
//
// Dir does not create the directory; see EnsureDir.
func Dir() (string, error) {
	if dir := os.Getenv(HermesDirEnv); dir != "" {
		return dir, nil
	}
	base, name, err := dataHome(runtime.GOOS)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}

// dataHome returns the per-user data location for goos and the name of the
// hermes directory inside it.
func dataHome(goos string) (base, name string, err error) {
	home := func(elem ...string) (string, error) {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(append([]string{h}, elem...)...), nil
	}
	switch goos {
	case "darwin":
		base, err = home("Library", "Application Support")
		return base, "Hermes", err
	case "windows":
		if base = os.Getenv("APPDATA"); base == "" {
			base, err = home("AppData", "Roaming")
		}
		return base, "Hermes", err
	default:
		if base = os.Getenv("XDG_DATA_HOME"); base == "" {
			base, err = home(".local", "share")
		}
		return base, "hermes", err
	}
}

// EnsureDir creates the data directory and its artifacts subdirectory.
func EnsureDir() error {
	artifacts, err := ArtifactsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(artifacts, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", artifacts, err)
	}
	return nil
}

// in joins elem onto the data directory.
func in(elem string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, elem), nil
}

// ArtifactsDir returns the default directory for display artifacts.
func ArtifactsDir() (string, error) { return in(ArtifactsDirName) }

// LogPath returns the default log file path.
func LogPath() (string, error) { return in(LogFileName) }

// RCPath returns the configuration file path: $HERMESRC if set, else
// $XDG_CONFIG_HOME/hermes/hermesrc when that file exists, else ~/.hermesrc.
// The file may not exist.
func RCPath() (string, error) {
	if p := os.Getenv(HermesRCEnv); p != "" {
		return p, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "hermes", "hermesrc")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, RCFileName), nil
}
