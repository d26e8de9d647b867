package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".kickscan"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Defaults holds request settings that apply to every run.
type Defaults struct {
	// BaseURL overrides the crowdfunding site root, mainly for mirrors and tests.
	BaseURL string `yaml:"baseURL,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is sent with every request. Format: "name=value; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Proxy is a SOCKS5 proxy address in "host:port" form.
	Proxy string `yaml:"proxy,omitempty"`

	// PageDelay and PageDelaySpread tune the pause between listing pages.
	PageDelay       time.Duration `yaml:"pageDelay,omitempty"`
	PageDelaySpread time.Duration `yaml:"pageDelaySpread,omitempty"`
}

// Snipe holds defaults for the snipe command.
type Snipe struct {
	// Email is the account login. The password is never read from the file.
	Email string `yaml:"email,omitempty"`

	// Interval is the pause between polls of the pledge page.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// File represents the structure of the .kickscan configuration file.
type File struct {
	Defaults Defaults `yaml:"defaults,omitempty"`
	Snipe    Snipe    `yaml:"snipe,omitempty"`
}

// LoadConfigFile loads settings from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .kickscan in the current directory
// 3. Look for config.yaml in the XDG config directory
// 4. Look for .kickscan in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
