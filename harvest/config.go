package harvest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/presse/harvest/internal/selcache"
)

// Config configures the harvest service. Every field has a working default;
// the zero Config runs.
type Config struct {
	// DBPath is the harvest SQLite database.
	DBPath string `yaml:"db_path"`

	// FetchTimeout bounds each fetch strategy attempt.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MinWords rejects final content below this count. MaxWords only
	// triggers a warning; over-long articles are kept.
	MinWords int `yaml:"min_words"`
	MaxWords int `yaml:"max_words"`

	// CompleteAt is the word count above which completeness validation is
	// skipped.
	CompleteAt int `yaml:"complete_at"`

	Sweep   SweepConfig   `yaml:"sweep"`
	Cookies CookiesConfig `yaml:"cookies"`
	Archive ArchiveConfig `yaml:"archive"`
	Browser BrowserConfig `yaml:"browser"`

	// DigestDir enables the Markdown digest buffer when set.
	DigestDir string `yaml:"digest_dir"`
}

// SweepConfig tunes selector-cache eviction.
type SweepConfig struct {
	MinRate     float64 `yaml:"min_rate"`
	MinAttempts int     `yaml:"min_attempts"`
}

// CookiesConfig tunes the cookie manager.
type CookiesConfig struct {
	// Secret derives the at-rest encryption key. Read from
	// PRESSE_COOKIE_SECRET when empty.
	Secret     string        `yaml:"secret"`
	RenewalAge time.Duration `yaml:"renewal_age"`
}

// ArchiveConfig tunes the archive-snapshot fetch strategy.
type ArchiveConfig struct {
	BaseURL string          `yaml:"base_url"`
	Retries int             `yaml:"retries"`
	Backoff []time.Duration `yaml:"backoff"`
}

// BrowserConfig locates headless Chrome.
type BrowserConfig struct {
	// RemoteURL attaches to an external Chrome; empty launches locally.
	RemoteURL string `yaml:"remote_url"`
	Bin       string `yaml:"bin"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/presse.db"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MinWords <= 0 {
		c.MinWords = 100
	}
	if c.MaxWords <= 0 {
		c.MaxWords = 10000
	}
	if c.CompleteAt <= 0 {
		c.CompleteAt = 500
	}
	if c.Sweep.MinRate <= 0 {
		c.Sweep.MinRate = selcache.DefaultMinRate
	}
	if c.Sweep.MinAttempts <= 0 {
		c.Sweep.MinAttempts = selcache.DefaultMinAttempts
	}
	if c.Cookies.Secret == "" {
		c.Cookies.Secret = os.Getenv("PRESSE_COOKIE_SECRET")
	}
	if c.Cookies.RenewalAge <= 0 {
		c.Cookies.RenewalAge = 7 * 24 * time.Hour
	}
	if c.Archive.BaseURL == "" {
		c.Archive.BaseURL = "https://archive.ph"
	}
	if c.Archive.Retries <= 0 {
		c.Archive.Retries = 2
	}
	if len(c.Archive.Backoff) == 0 {
		c.Archive.Backoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	}
}

// LoadConfig reads a YAML config file. A missing path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.defaults()
	return &cfg, nil
}
