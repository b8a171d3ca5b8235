package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lotas/tabfeeds/internal/applog"
)

const (
	DefaultRefreshTimeout = 5 * 60 * 60 // seconds
	DefaultRulesURL       = "https://rsshub.js.org/build/radar-rules.json"
	DefaultRSSHubBaseURL  = "https://rsshub.app"
	DefaultPort           = 19191
)

// Config holds runtime settings.
type Config struct {
	RefreshTimeout int          `mapstructure:"refresh_timeout"` // seconds between rule refreshes
	Notice         NoticeConfig `mapstructure:"notice"`
	Rules          RulesConfig  `mapstructure:"rules"`
	RSSHub         RSSHubConfig `mapstructure:"rsshub"`
	Server         ServerConfig `mapstructure:"server"`
	Parser         ParserConfig `mapstructure:"parser"`
	Log            LogConfig    `mapstructure:"log"`
	DataDir        string       `mapstructure:"data_dir"`
}

type NoticeConfig struct {
	Badge bool `mapstructure:"badge"` // show the feed count on the badge
}

type RulesConfig struct {
	URL string `mapstructure:"url"`
}

type RSSHubConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ParserConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
}

type LogConfig struct {
	Dir string `mapstructure:"dir"`
}

// RefreshInterval returns RefreshTimeout as a duration.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshTimeout) * time.Second
}

// BadgeEnabled reports whether badge text is shown.
func (c Config) BadgeEnabled() bool {
	return c.Notice.Badge
}

func (c Config) Validate() error {
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh_timeout must be positive: %d", c.RefreshTimeout)
	}
	if c.Rules.URL == "" {
		return errors.New("rules.url is required")
	}
	if c.RSSHub.BaseURL == "" {
		return errors.New("rsshub.base_url is required")
	}
	if strings.HasSuffix(c.RSSHub.BaseURL, "/") {
		return fmt.Errorf("rsshub.base_url must not end with '/': %s", c.RSSHub.BaseURL)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	return nil
}

// DefaultDir returns ~/.config/tabfeeds.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tabfeeds")
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tabfeeds")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("refresh_timeout", DefaultRefreshTimeout)
	v.SetDefault("notice.badge", true)
	v.SetDefault("rules.url", DefaultRulesURL)
	v.SetDefault("rsshub.base_url", DefaultRSSHubBaseURL)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("parser.timeout", 15*time.Second)
	v.SetDefault("parser.cache_size", 256)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("log.dir", defaultDataDir())
}

// Store holds the current configuration and notifies listeners when the
// config file changes.
type Store struct {
	v *viper.Viper

	mu        sync.RWMutex
	cur       Config
	listeners []func(old, new Config)
}

// Load reads config.yaml from dir (if present) with TABFEEDS_* environment
// overrides. A missing file is not an error.
func Load(dir string) (*Store, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix("TABFEEDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Store{v: v, cur: cfg}, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Get returns the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// BadgeEnabled reports the current notice.badge value.
func (s *Store) BadgeEnabled() bool {
	return s.Get().BadgeEnabled()
}

// OnChange registers fn to receive the old and new configuration after
// each successful reload.
func (s *Store) OnChange(fn func(old, new Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Watch starts watching the config file. Invalid edits are logged and the
// previous configuration stays in effect.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		applog.Info("config.changed", "file", e.Name, "op", e.Op.String())
		if err := s.Reload(); err != nil {
			applog.Error("config.reload", err)
		}
	})
	s.v.WatchConfig()
}

// Reload re-reads the config file and notifies listeners.
func (s *Store) Reload() error {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	cfg, err := decode(s.v)
	if err != nil {
		return err
	}
	s.set(cfg)
	return nil
}

// Set replaces a single key in memory and notifies listeners. Used by the
// CLI and tests; the file is left untouched.
func (s *Store) Set(key string, value any) error {
	s.v.Set(key, value)
	cfg, err := decode(s.v)
	if err != nil {
		return err
	}
	s.set(cfg)
	return nil
}

func (s *Store) set(cfg Config) {
	s.mu.Lock()
	old := s.cur
	s.cur = cfg
	fns := append([]func(old, new Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(old, cfg)
	}
}
