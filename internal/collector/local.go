package collector

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	localDirsPerDiscovery = 5
	localMaxTracked       = 2000
)

var localExcludedPrefixes = []string{"/mnt/", "/proc/", "/dev/", "/sys/"}

// LocalSource walks the local filesystem in random order, a few directories
// per discovery, starting over from the start directory once exhausted.
type LocalSource struct {
	startDir  string
	validator *Validator
	pending   []string
}

func NewLocalSource(startDir string, validator *Validator) *LocalSource {
	return &LocalSource{
		startDir:  startDir,
		validator: validator,
		pending:   []string{startDir},
	}
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) Pacing() Pacing {
	return Pacing{
		LowWater:      localMaxTracked,
		MaxTracked:    localMaxTracked,
		DiscoverPhase: command.PhaseReadingDir,
		FetchPhase:    command.PhaseCopying,
	}
}

func (s *LocalSource) Discover(ctx context.Context) ([]string, error) {
	var found []string
	for i := 0; i < localDirsPerDiscovery && len(s.pending) > 0; i++ {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		idx := rand.IntN(len(s.pending))
		dir := s.pending[idx]
		s.pending[idx] = s.pending[len(s.pending)-1]
		s.pending = s.pending[:len(s.pending)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			// unreadable directories are skipped
			continue
		}
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			switch {
			case e.IsDir():
				if !excludedDir(p) {
					s.pending = append(s.pending, p)
				}
			case e.Type().IsRegular():
				if domain.IsImageExt(filepath.Ext(p)) {
					found = append(found, p)
				}
			}
		}
	}
	if len(s.pending) == 0 {
		s.pending = []string{s.startDir}
	}
	return found, nil
}

func (s *LocalSource) Fetch(_ context.Context, path string) *domain.Candidate {
	return s.validator.FromFile(path)
}

func excludedDir(p string) bool {
	p = filepath.ToSlash(p) + "/"
	for _, prefix := range localExcludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
