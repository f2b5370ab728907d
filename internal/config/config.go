// Package config loads the duelmeta TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	App        AppConfig        `toml:"app"`
	Source     SourceConfig     `toml:"source"`
	YGOProDeck YGOProDeckConfig `toml:"ygoprodeck"`
	YugiohMeta YugiohMetaConfig `toml:"yugiohmeta"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Batch      BatchConfig      `toml:"batch"`
	Aggregate  AggregateConfig  `toml:"aggregate"`
	Storage    StorageConfig    `toml:"storage"`
	Report     ReportConfig     `toml:"report"`
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool   `toml:"debug_mode"` // Enable debug logging
	LogFormat string `toml:"log_format"` // "text" or "json"
}

// SourceConfig selects the tournament source adapter.
type SourceConfig struct {
	Name string `toml:"name"`
}

// TierConfig is one listing tier filter.
type TierConfig struct {
	Value string `toml:"value"`
	Label string `toml:"label"`
}

// YGOProDeckConfig contains the tournament listing adapter settings.
type YGOProDeckConfig struct {
	BaseURL        string       `toml:"base_url"`
	ListingPath    string       `toml:"listing_path"`
	Tiers          []TierConfig `toml:"tiers"`
	FormatValue    string       `toml:"format_value"`
	PageSize       string       `toml:"page_size"`
	ScrollAttempts int          `toml:"scroll_attempts"`
	Renderer       string       `toml:"renderer"`     // "chrome" or "static"
	WaitTimeout    string       `toml:"wait_timeout"` // e.g. "15s"
	RequestTimeout string       `toml:"request_timeout"`
	RateLimitMs    int          `toml:"rate_limit_ms"`
	Workers        int          `toml:"workers"`
	Cloudflare     *bool        `toml:"cloudflare"`
	ShowBrowser    bool         `toml:"show_browser"` // Run Chrome with a window
}

// YugiohMetaConfig contains the top-decks API adapter settings.
type YugiohMetaConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIPath        string   `toml:"api_path"`
	TierListPath   string   `toml:"tier_list_path"`
	RoundupURLs    []string `toml:"roundup_urls"`
	DeckURLs       []string `toml:"deck_urls"`
	EventLimit     int      `toml:"event_limit"`
	ScrollAttempts int      `toml:"scroll_attempts"`
	RequestTimeout string   `toml:"request_timeout"`
	RateLimitMs    int      `toml:"rate_limit_ms"`
	Workers        int      `toml:"workers"`
}

// DiscoveryConfig contains the tournament relevance rules.
type DiscoveryConfig struct {
	LookbackDays   int      `toml:"lookback_days"`
	MinPlayers     int      `toml:"min_players"`
	Exclude        []string `toml:"exclude"`
	UnknownPlayers string   `toml:"unknown_players"`
	DateLayout     string   `toml:"date_layout"`
}

// BatchConfig contains the batch engine and checkpoint settings.
type BatchConfig struct {
	CheckpointBackend string `toml:"checkpoint_backend"` // "file" or "redis"
	CheckpointPath    string `toml:"checkpoint_path"`
	RedisAddr         string `toml:"redis_addr"`
	RedisKey          string `toml:"redis_key"`
	YieldDelay        string `toml:"yield_delay"` // e.g. "500ms"
	BatchSize         int    `toml:"batch_size"`
}

// AggregateConfig contains the aggregate view settings.
type AggregateConfig struct {
	TopArchetypes  int      `toml:"top_archetypes"`
	TopCards       int      `toml:"top_cards"`
	WinnerPatterns []string `toml:"winner_patterns"`
}

// StorageConfig contains the dataset database settings.
type StorageConfig struct {
	DBPath      string `toml:"db_path"`
	AutoMigrate *bool  `toml:"auto_migrate"`
}

// ReportConfig contains the HTML report settings.
type ReportConfig struct {
	OutputDir  string `toml:"output_dir"`
	ChartTheme string `toml:"chart_theme"`
}

const (
	RendererChrome = "chrome"
	RendererStatic = "static"

	BackendFile  = "file"
	BackendRedis = "redis"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// KnownSources lists the adapter names accepted in [source].
var KnownSources = []string{"ygoprodeck", "yugiohmeta"}

func boolPtr(b bool) *bool {
	return &b
}

// DataDir returns the directory holding configuration and run data.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".duelmeta"
	}
	return filepath.Join(home, ".duelmeta")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		App: AppConfig{
			LogFormat: LogFormatText,
		},
		Source: SourceConfig{
			Name: "ygoprodeck",
		},
		YGOProDeck: YGOProDeckConfig{
			BaseURL:     "https://ygoprodeck.com",
			ListingPath: "/tournaments/",
			Tiers: []TierConfig{
				{Value: "2", Label: "Competitive"},
				{Value: "3", Label: "Premier"},
			},
			FormatValue:    "TCG",
			PageSize:       "100",
			ScrollAttempts: 5,
			Renderer:       RendererChrome,
			WaitTimeout:    "15s",
			RequestTimeout: "10s",
			RateLimitMs:    500,
			Workers:        2,
			Cloudflare:     boolPtr(true),
		},
		YugiohMeta: YugiohMetaConfig{
			BaseURL:        "https://www.yugiohmeta.com",
			APIPath:        "/api/v1/top-decks",
			TierListPath:   "/tier-list",
			EventLimit:     50,
			ScrollAttempts: 5,
			RequestTimeout: "10s",
			RateLimitMs:    250,
			Workers:        4,
		},
		Discovery: DiscoveryConfig{
			LookbackDays: 60,
			MinPlayers:   80,
			Exclude: []string{
				"Master Duel", "Speed Duel", "Duel Links", "Rush Duel", "Time Wizard", "Edison", "Goat",
				"Japan", "Korea", "China", "Philippines", "Thailand", "Singapore", "Malaysia", "Taiwan", "Vietnam",
			},
			UnknownPlayers: "Unknown",
			DateLayout:     "Jan 2, 2006",
		},
		Batch: BatchConfig{
			CheckpointBackend: BackendFile,
			CheckpointPath:    filepath.Join(dir, "checkpoint.json"),
			RedisKey:          "duelmeta:checkpoint",
			YieldDelay:        "500ms",
			BatchSize:         1,
		},
		Aggregate: AggregateConfig{
			TopArchetypes:  6,
			TopCards:       10,
			WinnerPatterns: []string{"winner", "1st"},
		},
		Storage: StorageConfig{
			DBPath:      filepath.Join(dir, "duelmeta.db"),
			AutoMigrate: boolPtr(true),
		},
		Report: ReportConfig{
			OutputDir:  filepath.Join(dir, "reports"),
			ChartTheme: "light",
		},
	}
}

// localPath returns the override file that sits next to path.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func readFile(path string, into *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return true, nil
}

// Load reads the configuration at path, or DefaultPath when empty. A
// missing file yields the defaults. Unset fields are filled from the
// defaults and a sibling config.local.toml, when present, overrides the
// result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	var cfg Config
	if _, err := readFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	var local Config
	found, err := readFile(localPath(path), &local)
	if err != nil {
		return nil, err
	}
	if found {
		if err := mergo.Merge(&cfg, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("apply local config: %w", err)
		}
	}

	return &cfg, nil
}

// Save writes the configuration to path, or DefaultPath when empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ConfigurationError reports an invalid setting. It is fatal before a run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	durations := []struct {
		field string
		value string
	}{
		{"ygoprodeck.wait_timeout", c.YGOProDeck.WaitTimeout},
		{"ygoprodeck.request_timeout", c.YGOProDeck.RequestTimeout},
		{"yugiohmeta.request_timeout", c.YugiohMeta.RequestTimeout},
		{"batch.yield_delay", c.Batch.YieldDelay},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return invalid(d.field, "bad duration %q", d.value)
		}
		if v < 0 {
			return invalid(d.field, "cannot be negative")
		}
	}

	counts := []struct {
		field string
		value int
	}{
		{"discovery.lookback_days", c.Discovery.LookbackDays},
		{"discovery.min_players", c.Discovery.MinPlayers},
		{"ygoprodeck.scroll_attempts", c.YGOProDeck.ScrollAttempts},
		{"ygoprodeck.rate_limit_ms", c.YGOProDeck.RateLimitMs},
		{"ygoprodeck.workers", c.YGOProDeck.Workers},
		{"yugiohmeta.event_limit", c.YugiohMeta.EventLimit},
		{"yugiohmeta.scroll_attempts", c.YugiohMeta.ScrollAttempts},
		{"yugiohmeta.rate_limit_ms", c.YugiohMeta.RateLimitMs},
		{"yugiohmeta.workers", c.YugiohMeta.Workers},
		{"batch.batch_size", c.Batch.BatchSize},
		{"aggregate.top_archetypes", c.Aggregate.TopArchetypes},
		{"aggregate.top_cards", c.Aggregate.TopCards},
	}
	for _, n := range counts {
		if n.value < 0 {
			return invalid(n.field, "cannot be negative: %d", n.value)
		}
	}

	if !slices.Contains(KnownSources, strings.ToLower(c.Source.Name)) {
		return invalid("source.name", "unknown source %q (available: %s)", c.Source.Name, strings.Join(KnownSources, ", "))
	}
	switch c.YGOProDeck.Renderer {
	case RendererChrome, RendererStatic:
	default:
		return invalid("ygoprodeck.renderer", "unknown renderer %q", c.YGOProDeck.Renderer)
	}
	switch c.Batch.CheckpointBackend {
	case BackendFile:
		if c.Batch.CheckpointPath == "" {
			return invalid("batch.checkpoint_path", "required for the file backend")
		}
	case BackendRedis:
		if c.Batch.RedisAddr == "" {
			return invalid("batch.redis_addr", "required for the redis backend")
		}
	default:
		return invalid("batch.checkpoint_backend", "unknown backend %q", c.Batch.CheckpointBackend)
	}
	switch c.App.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return invalid("app.log_format", "unknown format %q", c.App.LogFormat)
	}

	if strings.EqualFold(c.Source.Name, "yugiohmeta") &&
		len(c.YugiohMeta.RoundupURLs) == 0 && len(c.YugiohMeta.DeckURLs) == 0 {
		return invalid("yugiohmeta", "roundup_urls or deck_urls must list at least one page")
	}

	return nil
}

// Duration parses a validated duration setting. Invalid input yields 0.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
