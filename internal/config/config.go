package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all motorcortex configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Root directory for profiles, bindings, logs, screenshots, history
	DataDir string `yaml:"data_dir"`

	// Client OS the dispatcher drives: darwin, windows, linux.
	// Empty means the OS this process runs on.
	ClientOS string `yaml:"client_os"`

	// Local LLM interpreter
	LLM LLMConfig `yaml:"llm"`

	// Persistent web-execution browser
	Browser BrowserConfig `yaml:"browser"`

	// Headless URL resolver
	Resolver ResolverConfig `yaml:"resolver"`

	// Event queue and worker
	Controller ControllerConfig `yaml:"controller"`

	// Dispatch history store
	History HistoryConfig `yaml:"history"`

	// Localhost ingress
	API APIConfig `yaml:"api"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Ollama interpreter endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
}

// BrowserConfig configures the persistent web-execution context.
type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	ProfileDir    string `yaml:"profile_dir"` // relative to data_dir
	NavTimeout    string `yaml:"nav_timeout"`
	ActionTimeout string `yaml:"action_timeout"`

	// web_fill_form stays off unless explicitly enabled
	EnableFormFill bool `yaml:"enable_form_fill"`
}

// ResolverConfig configures the headless URL resolver and its cache.
type ResolverConfig struct {
	Headless               bool   `yaml:"headless"`
	ProfileDir             string `yaml:"profile_dir"` // relative to data_dir
	NavTimeout             string `yaml:"nav_timeout"`
	CacheTTL               string `yaml:"cache_ttl"`
	CacheSize              int    `yaml:"cache_size"`
	EnableSearchFallback   bool   `yaml:"enable_search_fallback"`
	EnableHomepageFallback bool   `yaml:"enable_homepage_fallback"`
	SearchTemplate         string `yaml:"search_template"` // {query} placeholder

	// Warmup launches the resolver browser eagerly on first web step to
	// amortize startup cost.
	Warmup bool `yaml:"warmup"`
}

// ControllerConfig configures the event queue and command worker.
type ControllerConfig struct {
	QueueSize int `yaml:"queue_size"`

	// Wall-clock budget per command. Zero or negative disables the limit.
	CommandTimeout string `yaml:"command_timeout"`
}

// HistoryConfig configures the SQLite dispatch log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // empty = <data_dir>/history.db
}

// APIConfig configures the localhost HTTP ingress.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "motorcortex",
		Version: "0.3.0",
		DataDir: "user_data",

		LLM: LLMConfig{
			BaseURL:     "http://127.0.0.1:11434",
			Model:       "llama3.1:8b",
			Timeout:     "30s",
			Temperature: 0.2,
		},

		Browser: BrowserConfig{
			Headless:       false,
			ProfileDir:     "browser_profile",
			NavTimeout:     "20s",
			ActionTimeout:  "5s",
			EnableFormFill: false,
		},

		Resolver: ResolverConfig{
			Headless:               true,
			ProfileDir:             "resolver_profile",
			NavTimeout:             "15s",
			CacheTTL:               "15m",
			CacheSize:              100,
			EnableSearchFallback:   true,
			EnableHomepageFallback: true,
			SearchTemplate:         "https://duckduckgo.com/?q={query}",
			Warmup:                 true,
		},

		Controller: ControllerConfig{
			QueueSize:      64,
			CommandTimeout: "12s",
		},

		History: HistoryConfig{
			Enabled: true,
		},

		API: APIConfig{
			Addr: "127.0.0.1:8765",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("MOTOR_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if osName := os.Getenv("MOTOR_CLIENT_OS"); osName != "" {
		c.ClientOS = osName
	}
	if addr := os.Getenv("MOTOR_API_ADDR"); addr != "" {
		c.API.Addr = addr
	}

	// Ollama endpoint overrides, kept compatible with the desktop client
	if url := os.Getenv("EASY_OLLAMA_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("EASY_OLLAMA_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

// ResolvedClientOS returns the configured client OS, or the runtime OS when unset.
func (c *Config) ResolvedClientOS() string {
	if c.ClientOS != "" {
		return c.ClientOS
	}
	return runtime.GOOS
}

// BrowserProfileDir returns the profile dir for the web executor.
func (c *Config) BrowserProfileDir() string {
	return filepath.Join(c.DataDir, c.Browser.ProfileDir)
}

// ResolverProfileDir returns the profile dir for the headless resolver.
func (c *Config) ResolverProfileDir() string {
	return filepath.Join(c.DataDir, c.Resolver.ProfileDir)
}

// ScreenshotDir returns the directory for web-error screenshots.
func (c *Config) ScreenshotDir() string {
	return filepath.Join(c.DataDir, "error_screenshots")
}

// BindingsPath returns the gesture-bindings JSON path.
func (c *Config) BindingsPath() string {
	return filepath.Join(c.DataDir, "gesture_bindings.json")
}

// HotkeysPath returns the gesture-hotkeys JSON path.
func (c *Config) HotkeysPath() string {
	return filepath.Join(c.DataDir, "gesture_hotkeys.json")
}

// HistoryPath returns the dispatch-history database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.DataDir, "history.db")
}

// LogDir returns the category-log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// GetLLMTimeout returns the interpreter timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBrowserNavTimeout returns the web-executor navigation timeout.
func (c *Config) GetBrowserNavTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavTimeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetBrowserActionTimeout returns the per-action timeout for element lookups.
func (c *Config) GetBrowserActionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.ActionTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetResolverNavTimeout returns the resolver navigation timeout.
func (c *Config) GetResolverNavTimeout() time.Duration {
	d, err := time.ParseDuration(c.Resolver.NavTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetCacheTTL returns the resolution-cache entry lifetime.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Resolver.CacheTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetCommandTimeout returns the per-command wall-clock budget.
// Zero disables the limit.
func (c *Config) GetCommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Controller.CommandTimeout)
	if err != nil {
		return 12 * time.Second
	}
	if d < 0 {
		return 0
	}
	return d
}
