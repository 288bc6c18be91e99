package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the target file exists and
// force is not set.
var ErrConfigExists = errors.New("config file already exists")

const fileHeader = `# dailybrief configuration
#
# Credentials are read from the environment (or a .env file):
#   WECHAT_TOKEN, WECHAT_COOKIE, GEMINI_API_KEY
# Any other key can be overridden with DAILYBRIEF_<SECTION>_<KEY>.

`

// Marshal renders cfg as YAML. Credentials are never included.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the built-in configuration to path. An existing file is
// only replaced when force is true.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
