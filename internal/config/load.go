package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TEAMPULSE_"

	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "TEAMPULSE_CONFIG"
)

// legacyEnv maps bare environment variables to config paths. They only fill empty values.
var legacyEnv = map[string]string{
	"GITHUB_TOKEN":      "github.token",
	"JIRA_URL":          "jira.base_url",
	"JIRA_USER_EMAIL":   "jira.user",
	"JIRA_PAT":          "jira.token",
	"BONUSLY_API_TOKEN": "bonusly.token",
}

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Load reads configuration from defaults, the optional file at path (or the default
// search locations when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" && k.String(key) == "" {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps TEAMPULSE_GITHUB__PAGE_SIZE to github.page_size.
// TEAMPULSE_CONFIG itself is not a setting.
func envTransform(s string) string {
	if s == ConfigPathEnvVar {
		return ""
	}
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func resolvePath(path string) (string, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}

	candidates := []string{"teampulse.yaml", "teampulse.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".teampulse", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return err
	}

	if c.Jira.Token != "" && c.Jira.BaseURL == "" {
		return &ConfigError{Field: "Config.Jira.BaseURL", Message: "required when a Jira token is set"}
	}
	if c.Jira.Token != "" && c.Jira.User == "" {
		return &ConfigError{Field: "Config.Jira.User", Message: "required when a Jira token is set"}
	}
	if c.Cache.PRFreshness > c.Cache.TTL {
		return &ConfigError{Field: "Config.Cache.PRFreshness", Message: "must not exceed cache ttl"}
	}
	return nil
}
