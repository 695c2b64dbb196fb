package utils

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults holds flag defaults read from the optional config file. Zero
// values mean "not set" and leave the built-in defaults untouched.
type Defaults struct {
	Workers    int    `yaml:"workers"`
	SplitMB    int    `yaml:"split"`
	Region     string `yaml:"region"`
	Profile    string `yaml:"profile"`
	MaxRetries int    `yaml:"max_retries"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "s3par.yaml")
}

func LoadDefaults(path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, err
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, err
	}
	return d, nil
}
