package meta

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ramonehamilton/duelmeta/internal/render"
)

const (
	SourceYGOProDeck = "ygoprodeck"
	SourceYugiohMeta = "yugiohmeta"
)

// SourceOptions carries the per-adapter configuration used by NewSource.
type SourceOptions struct {
	YGOProDeck *YGOProDeckConfig
	YugiohMeta *YugiohMetaConfig

	// Browser renders listing and roundup pages.
	Browser render.Browser

	Logger *slog.Logger
}

type sourceFactory func(opts *SourceOptions) Source

var sources = map[string]sourceFactory{
	SourceYGOProDeck: func(opts *SourceOptions) Source {
		config := opts.YGOProDeck
		if config == nil {
			config = DefaultYGOProDeckConfig()
		}
		if config.Logger == nil {
			config.Logger = opts.Logger
		}
		return NewYGOProDeck(config, opts.Browser)
	},
	SourceYugiohMeta: func(opts *SourceOptions) Source {
		config := opts.YugiohMeta
		if config == nil {
			config = DefaultYugiohMetaConfig()
		}
		if config.Logger == nil {
			config.Logger = opts.Logger
		}
		return NewYugiohMeta(config, opts.Browser)
	},
}

// SourceNames lists the registered adapter names in sorted order.
func SourceNames() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSource creates the adapter registered under name.
func NewSource(name string, opts *SourceOptions) (Source, error) {
	if opts == nil {
		opts = &SourceOptions{}
	}
	factory, ok := sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (available: %s)", name, strings.Join(SourceNames(), ", "))
	}
	return factory(opts), nil
}
