// Package config resolves the connector's file paths and loads the optional
// yaml configuration carrying operator-identity overrides and extract
// defaults. Flags always win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// File is the on-disk yaml configuration.
type File struct {
	Me      MeConfig      `yaml:"me"`
	Extract ExtractConfig `yaml:"extract"`
}

// MeConfig holds operator identity overrides. Any value set here bypasses
// the corresponding address book / account store lookup.
type MeConfig struct {
	PhoneNumber       string `yaml:"phone_number"`
	Name              string `yaml:"name"`
	ICloudAccountID   string `yaml:"icloud_account_id"`
	ICloudAccountDSID string `yaml:"icloud_account_dsid"`
	ICloudDisplayName string `yaml:"icloud_display_name"`
}

// ExtractConfig holds default extract options.
type ExtractConfig struct {
	DBPath          string `yaml:"db_path"`
	AddressBookDir  string `yaml:"address_book_dir"`
	LoadAttachments bool   `yaml:"load_attachments"`
	Lenient         bool   `yaml:"lenient"`
	Workers         int    `yaml:"workers"`
}

// ConfigDir returns the configuration directory for the current OS.
func ConfigDir() string {
	if override := os.Getenv("CHRONICLE_IMESSAGE_CONFIG_DIR"); override != "" {
		return override
	}
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "chronicle-imessage")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "chronicle-imessage")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "chronicle-imessage")
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the config file at path. A missing file is not an error; it
// yields a zero-valued File so every setting falls back to its default.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &f, nil
}
