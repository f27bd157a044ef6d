// Package config provides configuration loading for quicknav using TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"quicknav/prefetch"
)

// HTTP fetching settings
type Fetcher struct {
	UserAgent      string `toml:"userAgent"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	ChromePath     string `toml:"chromePath"`
	UseBrowser     bool   `toml:"useBrowser"` // render full loads in headless Chrome
}

// HTTP cache settings
type Cache struct {
	Store string `toml:"store"` // "memory" or "sqlite"
	Path  string `toml:"path"`  // sqlite file, empty = user cache dir
}

// Prefetch settings
type Prefetch struct {
	Enabled          bool     `toml:"enabled"`
	MaxConcurrent    int      `toml:"maxConcurrent"`
	ExcludedPrefixes []string `toml:"excludedPrefixes"`
	RescanDelayMs    int      `toml:"rescanDelayMs"`
	SweepDelayMs     int      `toml:"sweepDelayMs"`
}

// Hover preview settings
type Preview struct {
	Enabled     bool   `toml:"enabled"`
	HideDelayMs int    `toml:"hideDelayMs"`
	Margin      int    `toml:"margin"`
	Policy      string `toml:"policy"` // "" or "ugc"
}

// Partial navigation settings
type Router struct {
	Enabled       bool   `toml:"enabled"`
	PartialHeader string `toml:"partialHeader"`
	PartialValue  string `toml:"partialValue"`
}

// Page settings
type Page struct {
	ContentID      string `toml:"contentId"`
	ViewportWidth  int    `toml:"viewportWidth"` // 0 = terminal size
	ViewportHeight int    `toml:"viewportHeight"`
}

// Code highlighting settings
type Highlight struct {
	Enabled bool   `toml:"enabled"`
	Style   string `toml:"style"`
}

// Session settings
type Session struct {
	RestoreSession bool   `toml:"restoreSession"`
	Path           string `toml:"path"` // empty = user config dir
}

// Config is the main configuration struct
type Config struct {
	Fetcher   Fetcher   `toml:"fetcher"`
	Cache     Cache     `toml:"cache"`
	Prefetch  Prefetch  `toml:"prefetch"`
	Preview   Preview   `toml:"preview"`
	Router    Router    `toml:"router"`
	Page      Page      `toml:"page"`
	Highlight Highlight `toml:"highlight"`
	Session   Session   `toml:"session"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Fetcher: Fetcher{
			UserAgent:      "quicknav/1.0 (+https://github.com/quicknav)",
			TimeoutSeconds: 30,
		},
		Cache: Cache{
			Store: "memory",
		},
		Prefetch: Prefetch{
			Enabled:          true,
			MaxConcurrent:    4,
			ExcludedPrefixes: []string{"/admin/"},
			RescanDelayMs:    100,
			SweepDelayMs:     2000,
		},
		Preview: Preview{
			Enabled:     true,
			HideDelayMs: 120,
			Margin:      20,
		},
		Router: Router{
			Enabled:       true,
			PartialHeader: "X-Partial",
			PartialValue:  "1",
		},
		Page: Page{
			ContentID: "page-content",
		},
		Highlight: Highlight{
			Enabled: true,
			Style:   "monokai",
		},
		Session: Session{
			RestoreSession: false,
		},
	}
}

// configDir returns the configuration directory path.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "quicknav"), nil
}

// ConfigPath returns the path to the user's config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads configuration, layering user config on top of defaults.
// Returns the default config if no user config exists.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return Default(), nil // Return defaults if we can't determine path
	}
	return LoadFile(configPath)
}

// LoadFile layers the TOML file at path on top of the defaults. A missing
// file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	// Decoding onto the defaults keeps every key the file leaves out,
	// booleans included.
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("loading config from %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings no component can run with.
func (c *Config) Validate() error {
	switch c.Cache.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("cache.store must be \"memory\" or \"sqlite\", got %q", c.Cache.Store)
	}
	switch c.Preview.Policy {
	case "", "ugc":
	default:
		return fmt.Errorf("preview.policy must be \"\" or \"ugc\", got %q", c.Preview.Policy)
	}
	if c.Prefetch.MaxConcurrent < 1 || c.Prefetch.MaxConcurrent > prefetch.DefaultMaxConcurrent {
		return fmt.Errorf("prefetch.maxConcurrent must be between 1 and %d, got %d",
			prefetch.DefaultMaxConcurrent, c.Prefetch.MaxConcurrent)
	}
	if c.Page.ContentID == "" {
		return fmt.Errorf("page.contentId must not be empty")
	}
	if c.Router.PartialHeader == "" {
		return fmt.Errorf("router.partialHeader must not be empty")
	}
	return nil
}

// DefaultTOML returns the default configuration as a TOML string.
// Used for --init-config to generate a user config file.
func DefaultTOML() string {
	return `# quicknav configuration
# Save to ~/.config/quicknav/config.toml and customize
# Only include settings you want to change from defaults

# HTTP fetching settings
[fetcher]
userAgent = "quicknav/1.0 (+https://github.com/quicknav)"
timeoutSeconds = 30
chromePath = ""               # Path to Chrome/Chromium (empty = auto-detect)
useBrowser = false            # Render full page loads in headless Chrome

# HTTP cache
[cache]
store = "memory"              # "memory" or "sqlite"
path = ""                     # SQLite file (empty = user cache dir)

# Background link prefetching
[prefetch]
enabled = true
maxConcurrent = 4             # Prefetches in flight (1-4)
excludedPrefixes = ["/admin/"]
rescanDelayMs = 100           # Coalescing window for DOM mutations
sweepDelayMs = 2000           # Final idle sweep

# Hover previews
[preview]
enabled = true
hideDelayMs = 120
margin = 20
policy = ""                   # "" or "ugc" for an extra sanitising pass

# Partial navigation
[router]
enabled = true
partialHeader = "X-Partial"
partialValue = "1"

# Page contract
[page]
contentId = "page-content"
viewportWidth = 0             # 0 = terminal size
viewportHeight = 0

# Code highlighting
[highlight]
enabled = true
style = "monokai"

# Session settings
[session]
restoreSession = false        # Restore previous session on startup
path = ""                     # Session file (empty = user config dir)
`
}

// FormatError formats a configuration error for user display.
func FormatError(err error) string {
	return fmt.Sprintf("Configuration error:\n\n%s", err.Error())
}
