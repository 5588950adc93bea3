package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Local state layout
	StateDir string `json:"state_dir"`

	// Remote builder service
	APIBaseURL string `json:"api_base_url"`
	APIToken   string `json:"api_token"`
	UserID     string `json:"user_id"`

	// Transport behaviour
	RequestTimeoutSec int `json:"request_timeout_sec"`
	RetryMax          int `json:"retry_max"`
	RetryBaseDelayMS  int `json:"retry_base_delay_ms"`

	// Conversation sessions expire server-side after this window;
	// the client mirrors it when deciding whether a resume is worth trying.
	SessionTTLHours int `json:"session_ttl_hours"`

	Debug bool `json:"debug"`
}

func DefaultConfig() *Config {
	cfg := DefaultConfigWithRoot(defaultStateRoot())

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot builds defaults rooted at a specific state
// directory, without consulting the environment.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		StateDir: root,

		APIBaseURL: "https://api.sitewizard.io",
		APIToken:   "",
		UserID:     "",

		RequestTimeoutSec: 60,
		RetryMax:          3,
		RetryBaseDelayMS:  1000,

		SessionTTLHours: 24,

		Debug: false,
	}
}

func defaultStateRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".sitewizard")
	}
	currentDir, _ := os.Getwd()
	return filepath.Join(currentDir, ".sitewizard")
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("SITEWIZARD_STATE_DIR"); val != "" {
		c.StateDir = val
	}
	if val := os.Getenv("SITEWIZARD_API_URL"); val != "" {
		c.APIBaseURL = val
	}
	if val := os.Getenv("SITEWIZARD_API_TOKEN"); val != "" {
		c.APIToken = val
	}
	if val := os.Getenv("SITEWIZARD_USER_ID"); val != "" {
		c.UserID = val
	}

	if val := os.Getenv("SITEWIZARD_REQUEST_TIMEOUT_SEC"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RequestTimeoutSec = v
		}
	}
	if val := os.Getenv("SITEWIZARD_RETRY_MAX"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RetryMax = v
		}
	}
	if val := os.Getenv("SITEWIZARD_RETRY_BASE_DELAY_MS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RetryBaseDelayMS = v
		}
	}
	if val := os.Getenv("SITEWIZARD_SESSION_TTL_HOURS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.SessionTTLHours = v
		}
	}

	if val := os.Getenv("SITEWIZARD_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
}

// DurableDir is the long-lived state scope: completed wizard data and
// active job records survive across runs.
func (c *Config) DurableDir() string {
	return filepath.Join(c.StateDir, "durable")
}

// SessionDir is the short-lived state scope holding in-progress
// conversation identifiers.
func (c *Config) SessionDir() string {
	return filepath.Join(c.StateDir, "session")
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.StateDir, c.DurableDir(), c.SessionDir()}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api_base_url must not be empty")
	}
	if c.RetryMax < 1 {
		return fmt.Errorf("retry_max must be at least 1")
	}
	if c.RetryBaseDelayMS < 0 {
		return fmt.Errorf("retry_base_delay_ms must not be negative")
	}
	if c.SessionTTLHours < 1 {
		return fmt.Errorf("session_ttl_hours must be at least 1")
	}
	return nil
}
