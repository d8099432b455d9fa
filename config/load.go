package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML settings file, expands environment variables, and
// unmarshals into Settings. Unknown keys are rejected to catch typos early.
// Missing values fall back to process defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var settings Settings
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	settings.applyDefaults()
	return &settings, nil
}

// Default returns Settings with all process defaults applied, for callers
// running without a config file.
func Default() *Settings {
	var settings Settings
	settings.applyDefaults()
	return &settings
}
