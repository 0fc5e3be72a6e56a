package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/infrastructure/fetch"
)

// BuildSources creates the configured sources. Local-only mode ignores
// collector.sources.
func BuildSources(cfg *config.Config) ([]Source, error) {
	client := fetch.NewClient(cfg.Network.HTTP.UserAgent, time.Duration(cfg.Network.HTTP.TimeoutSec)*time.Second)
	validator := NewValidator(cfg, client)

	if cfg.Collector.LocalOnly {
		return []Source{NewLocalSource(cfg.Collector.StartDir, validator)}, nil
	}

	keywords := ""
	if cfg.Collector.Keywords.Enabled {
		keywords = cfg.Collector.Keywords.Keywords
	}

	var sources []Source
	for _, name := range cfg.Collector.Sources {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "local":
			sources = append(sources, NewLocalSource(cfg.Collector.StartDir, validator))
		case "reddit":
			sources = append(sources, NewJSONListingSource(RedditListing(), client, validator, keywords))
		default:
			tmpl, ok := PagePreset(name, keywords != "")
			if !ok {
				return nil, fmt.Errorf("collector.sources: unknown source %q", name)
			}
			sources = append(sources, NewPageSource(tmpl, client, validator, keywords))
		}
	}
	return sources, nil
}

// NewWorkers wraps each source in a worker staging into the pool directory.
func NewWorkers(cfg *config.Config, sources []Source) []*Worker {
	opts := []WorkerOption{
		WithInterval(time.Duration(cfg.Collector.IntervalMs) * time.Millisecond),
		WithCooldown(time.Duration(cfg.Collector.CooldownSec) * time.Second),
	}
	workers := make([]*Worker, 0, len(sources))
	for _, s := range sources {
		workers = append(workers, NewWorker(s, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, opts...))
	}
	return workers
}
