package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Credentials are the broker API credentials, loadable from the
// environment (APCA_API_KEY_ID / APCA_API_SECRET_KEY) independently of the
// config file so secrets stay out of YAML.
type Credentials struct {
	KeyID     string `envconfig:"KEY_ID"`
	SecretKey string `envconfig:"SECRET_KEY"`
}

// LoadCredentials reads credentials from the environment.
func LoadCredentials() (Credentials, error) {
	var creds Credentials
	if err := envconfig.Process("APCA_API", &creds); err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg FeedConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values. Environment
// credentials fill in api.key_id / api.secret when the file leaves them
// empty.
func LoadWithDefaults(path string) (*FeedConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if cfg.API.KeyID == "" || cfg.API.Secret == "" {
		creds, err := LoadCredentials()
		if err != nil {
			return nil, err
		}
		if cfg.API.KeyID == "" {
			cfg.API.KeyID = creds.KeyID
		}
		if cfg.API.Secret == "" {
			cfg.API.Secret = creds.SecretKey
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*FeedConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
