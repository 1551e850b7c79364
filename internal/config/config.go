// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AccountSettings is the persisted per-account behavior, keyed by email in
// the account index.
type AccountSettings struct {
	FilterQuery    string `mapstructure:"filter_query" yaml:"filter_query"`
	MaxMessages    int    `mapstructure:"max_messages" yaml:"max_messages"`
	ShowSnippets   bool   `mapstructure:"show_snippets" yaml:"show_snippets"`
	AllowQuicklook bool   `mapstructure:"allow_quicklook" yaml:"allow_quicklook"`
}

// OAuthSettings holds the OAuth2 client identity used for all accounts.
type OAuthSettings struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// Config is the application configuration plus the persisted account index.
// The index tells startup which secret-store keys to restore.
type Config struct {
	OAuth           OAuthSettings              `mapstructure:"oauth" yaml:"oauth"`
	PollIntervalSec int                        `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PollLeewaySec   int                        `mapstructure:"poll_leeway_sec" yaml:"poll_leeway_sec"`
	RequestsPerSec  int                        `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	Accounts        map[string]AccountSettings `mapstructure:"accounts" yaml:"accounts"`

	path string
	mu   sync.Mutex
}

func defaultConfig() *Config {
	return &Config{
		PollIntervalSec: 20,
		PollLeewaySec:   5,
		RequestsPerSec:  4,
		Accounts:        map[string]AccountSettings{},
	}
}

// DefaultAccountSettings matches a freshly added account.
func DefaultAccountSettings() AccountSettings {
	return AccountSettings{
		FilterQuery:    "in:INBOX is:unread",
		MaxMessages:    5,
		ShowSnippets:   true,
		AllowQuicklook: true,
	}
}

// DefaultPath returns ~/.config/gmail-notifier/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "gmail-notifier", "config.yaml")
}

// newViper builds a viper instance with a key delimiter that cannot occur
// in an email address. The default "." delimiter would split account keys
// like "user@example.com" apart.
func newViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter("::"))
}

// Load reads the configuration at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("poll_interval_sec", 20)
	v.SetDefault("poll_leeway_sec", 5)
	v.SetDefault("requests_per_sec", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Accounts == nil {
		cfg.Accounts = map[string]AccountSettings{}
	}
	cfg.path = path
	return cfg, nil
}

// PollInterval returns the scheduler interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollLeeway returns the scheduler's firing tolerance.
func (c *Config) PollLeeway() time.Duration {
	return time.Duration(c.PollLeewaySec) * time.Second
}

// AccountEmails returns the indexed account emails in stable order.
func (c *Config) AccountEmails() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	emails := make([]string, 0, len(c.Accounts))
	for email := range c.Accounts {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails
}

// AccountSettingsFor returns the persisted settings for email, or defaults.
func (c *Config) AccountSettingsFor(email string) AccountSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.Accounts[email]; ok {
		return s
	}
	return DefaultAccountSettings()
}

// SetAccount records settings for email in the index and writes the file.
func (c *Config) SetAccount(email string, s AccountSettings) error {
	c.mu.Lock()
	c.Accounts[email] = s
	c.mu.Unlock()
	return c.write()
}

// RemoveAccount drops email from the index and writes the file.
func (c *Config) RemoveAccount(email string) error {
	c.mu.Lock()
	delete(c.Accounts, email)
	c.mu.Unlock()
	return c.write()
}

func (c *Config) write() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	v := newViper()
	v.SetConfigFile(c.path)
	v.SetConfigType("yaml")
	v.Set("oauth", map[string]string{
		"client_id":     c.OAuth.ClientID,
		"client_secret": c.OAuth.ClientSecret,
	})
	v.Set("poll_interval_sec", c.PollIntervalSec)
	v.Set("poll_leeway_sec", c.PollLeewaySec)
	v.Set("requests_per_sec", c.RequestsPerSec)
	accounts := make(map[string]map[string]any, len(c.Accounts))
	for email, s := range c.Accounts {
		accounts[email] = map[string]any{
			"filter_query":    s.FilterQuery,
			"max_messages":    s.MaxMessages,
			"show_snippets":   s.ShowSnippets,
			"allow_quicklook": s.AllowQuicklook,
		}
	}
	v.Set("accounts", accounts)
	if err := v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("writing config %s: %w", c.path, err)
	}
	return nil
}
