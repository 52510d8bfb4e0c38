package config

import (
	"os"
	"path/filepath"
)

// LocalConfigName is picked up from the working directory when --config is
// not given.
const LocalConfigName = "imagegen.toml"

const appDir = "imagegen"

// ConfigDir returns the imagegen config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/imagegen/.
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CredentialsPath returns the path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.toml"), nil
}

// DataDir returns the imagegen data directory, respecting XDG_DATA_HOME.
// Defaults to ~/.local/share/imagegen/.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns the imagegen state directory, respecting XDG_STATE_HOME.
// Defaults to ~/.local/state/imagegen/.
func StateDir() (string, error) {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ResolvePath picks the config file to load.
// Priority: explicit > ./imagegen.toml > ~/.config/imagegen/config.toml.
// An empty result means no file exists and defaults apply.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(LocalConfigName); err == nil {
		return LocalConfigName
	}
	if global, err := GlobalConfigPath(); err == nil {
		if _, err := os.Stat(global); err == nil {
			return global
		}
	}
	return ""
}

func xdgDir(envVar, homeFallback string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeFallback)
	}
	return filepath.Join(base, appDir), nil
}
