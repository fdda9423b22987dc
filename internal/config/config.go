package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// BaseURL is the root of the Q&A REST backend (e.g. http://localhost:8000).
	BaseURL string `json:"base_url"`

	// TimeoutSeconds bounds each HTTP request to the backend.
	TimeoutSeconds int `json:"timeout_seconds"`

	// DebounceMS is the trailing quiet period before a filter or search
	// change triggers a reload. Each change restarts the window.
	DebounceMS int `json:"debounce_ms"`

	// PreviewChars is the collapsed answer preview length.
	PreviewChars int `json:"preview_chars"`

	// DarkMode is the initial theme for the shell and web UI.
	// nil means "not set" so that an overlay can turn it off.
	DarkMode *bool `json:"dark_mode,omitempty"`

	// ExportDir is where bulk exports are written. Empty means the working directory.
	ExportDir string `json:"export_dir,omitempty"`

	// AllowedOrigins lists browser origins permitted to call the web UI's JSON endpoints.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// SpeechCommand overrides the text-to-speech program. The answer text is
	// passed as the final argument.
	SpeechCommand []string `json:"speech_command,omitempty"`

	// ClipboardCommand overrides the clipboard program. Text is written to its stdin.
	ClipboardCommand []string `json:"clipboard_command,omitempty"`
}

// Environment variables that override file configuration.
const (
	EnvServer  = "QNADECK_SERVER"
	EnvTimeout = "QNADECK_TIMEOUT"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dark := true
	return &Config{
		BaseURL:        "http://localhost:8000",
		TimeoutSeconds: 30,
		DebounceMS:     1000,
		PreviewChars:   150,
		DarkMode:       &dark,
	}
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Debounce returns the filter debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Dark reports the configured initial theme (true when unset).
func (c *Config) Dark() bool {
	return c.DarkMode == nil || *c.DarkMode
}

// Validate checks values that would otherwise fail late, on first request.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url has no host: %q", c.BaseURL)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be non-negative, got %d", c.DebounceMS)
	}
	if c.PreviewChars < 0 {
		return fmt.Errorf("preview_chars must be non-negative, got %d", c.PreviewChars)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.qnadeck.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.qnadeck) and repo (.qnadeck) directories.
// Repo config is found by walking upward from startDir to find the nearest .qnadeck/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .qnadeck/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".qnadeck", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides file values with QNADECK_* environment variables.
// lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServer); ok && strings.TrimSpace(v) != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid seconds %q", EnvTimeout, v)
		}
		cfg.TimeoutSeconds = secs
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
// Command lines are replaced wholesale since argument order matters.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.BaseURL = overlay.BaseURL
	if result.BaseURL == "" {
		result.BaseURL = base.BaseURL
	}
	result.BaseURL = strings.TrimRight(result.BaseURL, "/")

	result.TimeoutSeconds = overlay.TimeoutSeconds
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = base.TimeoutSeconds
	}

	result.DebounceMS = overlay.DebounceMS
	if result.DebounceMS == 0 {
		result.DebounceMS = base.DebounceMS
	}

	result.PreviewChars = overlay.PreviewChars
	if result.PreviewChars == 0 {
		result.PreviewChars = base.PreviewChars
	}

	result.ExportDir = overlay.ExportDir
	if result.ExportDir == "" {
		result.ExportDir = base.ExportDir
	}

	// Pointer: overlay wins if set, so an overlay can switch dark mode off
	result.DarkMode = overlay.DarkMode
	if result.DarkMode == nil {
		result.DarkMode = base.DarkMode
	}

	result.SpeechCommand = overlay.SpeechCommand
	if len(result.SpeechCommand) == 0 {
		result.SpeechCommand = base.SpeechCommand
	}
	result.ClipboardCommand = overlay.ClipboardCommand
	if len(result.ClipboardCommand) == 0 {
		result.ClipboardCommand = base.ClipboardCommand
	}

	result.AllowedOrigins = mergeStringSlice(base.AllowedOrigins, overlay.AllowedOrigins)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
