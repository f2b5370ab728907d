package config

import (
	"log/slog"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/render"
	"github.com/ramonehamilton/duelmeta/internal/storage"
)

// SourceOptions builds the adapter settings. The browser is attached by
// the caller.
func (c *Config) SourceOptions(logger *slog.Logger) *meta.SourceOptions {
	ypd := meta.DefaultYGOProDeckConfig()
	ypd.BaseURL = c.YGOProDeck.BaseURL
	ypd.ListingPath = c.YGOProDeck.ListingPath
	ypd.Tiers = make([]meta.TierFilter, 0, len(c.YGOProDeck.Tiers))
	for _, t := range c.YGOProDeck.Tiers {
		ypd.Tiers = append(ypd.Tiers, meta.TierFilter{Value: t.Value, Label: t.Label})
	}
	ypd.FormatValue = c.YGOProDeck.FormatValue
	ypd.PageSize = c.YGOProDeck.PageSize
	ypd.ScrollAttempts = c.YGOProDeck.ScrollAttempts
	ypd.WaitTimeout = Duration(c.YGOProDeck.WaitTimeout)
	ypd.RequestTimeout = Duration(c.YGOProDeck.RequestTimeout)
	ypd.RateLimitMs = c.YGOProDeck.RateLimitMs
	ypd.Workers = c.YGOProDeck.Workers
	ypd.Cloudflare = c.YGOProDeck.Cloudflare == nil || *c.YGOProDeck.Cloudflare
	ypd.Logger = logger

	ym := meta.DefaultYugiohMetaConfig()
	ym.BaseURL = c.YugiohMeta.BaseURL
	ym.APIPath = c.YugiohMeta.APIPath
	if c.YugiohMeta.TierListPath != "" {
		ym.TierListPath = c.YugiohMeta.TierListPath
	}
	ym.RoundupURLs = c.YugiohMeta.RoundupURLs
	ym.DeckURLs = c.YugiohMeta.DeckURLs
	ym.EventLimit = c.YugiohMeta.EventLimit
	ym.ScrollAttempts = c.YugiohMeta.ScrollAttempts
	ym.RequestTimeout = Duration(c.YugiohMeta.RequestTimeout)
	ym.RateLimitMs = c.YugiohMeta.RateLimitMs
	ym.Workers = c.YugiohMeta.Workers
	ym.Logger = logger

	return &meta.SourceOptions{YGOProDeck: ypd, YugiohMeta: ym, Logger: logger}
}

// DiscoverOptions builds the discovery pass options.
func (c *Config) DiscoverOptions(logger *slog.Logger) meta.DiscoverOptions {
	opts := meta.DefaultDiscoverOptions()
	opts.LookbackDays = c.Discovery.LookbackDays
	opts.Policy = meta.DiscoveryPolicy{
		Exclude:         c.Discovery.Exclude,
		MinPlayers:      c.Discovery.MinPlayers,
		UnknownSentinel: c.Discovery.UnknownPlayers,
		DateLayout:      c.Discovery.DateLayout,
	}
	opts.Logger = logger
	return opts
}

// AggregateOptions builds the aggregate view options.
func (c *Config) AggregateOptions() aggregate.Options {
	return aggregate.Options{
		TopArchetypes: c.Aggregate.TopArchetypes,
		TopCards:      c.Aggregate.TopCards,
		Winner:        meta.NewWinnerMatcher(c.Aggregate.WinnerPatterns),
	}
}

// StorageConfig builds the dataset database settings.
func (c *Config) StorageConfig() *storage.Config {
	sc := storage.DefaultConfig(c.Storage.DBPath)
	sc.AutoMigrate = c.Storage.AutoMigrate == nil || *c.Storage.AutoMigrate
	return sc
}

// Browser creates the configured page renderer.
func (c *Config) Browser() render.Browser {
	if c.YGOProDeck.Renderer == RendererStatic {
		sc := render.DefaultStaticConfig()
		sc.Timeout = Duration(c.YGOProDeck.RequestTimeout)
		return render.NewStatic(sc)
	}
	cc := render.DefaultChromeConfig()
	cc.Headless = !c.YGOProDeck.ShowBrowser
	return render.NewChrome(cc)
}
