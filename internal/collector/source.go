package collector

import (
	"context"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
)

// Pacing tells the worker how to schedule discovery against fetching.
type Pacing struct {
	// LowWater triggers a discovery when fewer locators are tracked.
	LowWater int
	// MaxTracked caps the tracked locator list.
	MaxTracked int
	// Alternate makes discovery and fetch take turns instead of both
	// running in one step.
	Alternate bool

	DiscoverPhase command.Phase
	FetchPhase    command.Phase
}

// Source finds image locators (URLs or paths) and turns one into a candidate.
type Source interface {
	Name() string
	Pacing() Pacing
	Discover(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, locator string) *domain.Candidate
}

var networkPacing = Pacing{
	LowWater:      100,
	MaxTracked:    2000,
	Alternate:     true,
	DiscoverPhase: command.PhaseQuerying,
	FetchPhase:    command.PhaseDownloading,
}
