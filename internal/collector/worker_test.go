package collector

import (
	"context"
	"errors"
	"image/color"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func TestLocalCollectorStagesOnlyImages(t *testing.T) {
	cfg := testConfig(t)
	v := testValidator(t, cfg)

	src := t.TempDir()
	writeFile(t, src, "a.png", pngBytes(t, color.RGBA{255, 0, 0, 255}))
	writeFile(t, src, "sub/b.jpg", jpegBytes(t, color.RGBA{0, 255, 0, 255}))
	writeFile(t, src, "sub/deeper/c.gif", gifBytes(t, color.RGBA{0, 0, 255, 255}))
	writeFile(t, src, "notes.txt", []byte("not an image"))
	writeFile(t, src, "broken.png", []byte("definitely not a png"))

	w := NewWorker(NewLocalSource(src, v), cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark,
		WithInterval(tick))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectContinuously()

	require.Eventually(t, func() bool {
		return len(stagedFiles(t, cfg.Pool.ImagePoolDirectory)) == 3
	}, waitFor, tick)

	// give the walker time to revisit everything; the count must not grow
	time.Sleep(20 * tick)
	assert.Len(t, stagedFiles(t, cfg.Pool.ImagePoolDirectory), 3)
}

func TestCollectAndStopReturnsToIdle(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", images: 10, t: t}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, WithInterval(tick))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectAndStop(2)

	require.Eventually(t, func() bool { return w.State() == StateIdle && src.fetched() >= 2 }, waitFor, tick)
	assert.Len(t, stagedFiles(t, cfg.Pool.ImagePoolDirectory), 2)
	assert.Equal(t, command.PhaseStopped, w.Status().Phase)
}

func TestStopCollecting(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", images: 1000, t: t}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, WithInterval(tick))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectContinuously()
	require.Eventually(t, func() bool { return src.fetched() > 0 }, waitFor, tick)

	w.StopCollecting()
	require.Eventually(t, func() bool { return w.State() == StateIdle }, waitFor, tick)

	n := src.fetched()
	time.Sleep(10 * tick)
	assert.Equal(t, n, src.fetched())
}

func TestShutdownBlocksUntilExit(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", images: 1000, t: t, delay: 50 * time.Millisecond}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, WithInterval(tick))
	w.Start(context.Background())
	w.CollectContinuously()
	require.Eventually(t, func() bool { return src.fetched() > 0 }, waitFor, tick)

	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, StateShuttingDown, w.State())
	assert.Equal(t, command.PhaseShuttingDown, w.Status().Phase)
}

func TestShutdownWithoutStart(t *testing.T) {
	cfg := testConfig(t)
	w := NewWorker(&stubSource{name: "stub", t: t}, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark)
	w.Shutdown()
	assert.Equal(t, command.PhaseShuttingDown, w.Status().Phase)
}

func TestLayoutChangeStopsCollecting(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", t: t, discoverErr: domain.ErrLayoutChanged}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, WithInterval(tick))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectContinuously()
	require.Eventually(t, func() bool {
		return src.discovered() >= 1 && w.State() == StateIdle
	}, waitFor, tick)
	assert.Empty(t, stagedFiles(t, cfg.Pool.ImagePoolDirectory))
}

func TestDiscoverFailureCoolsDown(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", t: t, discoverErr: errors.New("connection refused")}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark,
		WithInterval(tick), WithCooldown(time.Hour))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectContinuously()
	require.Eventually(t, func() bool { return src.discovered() == 1 }, waitFor, tick)

	time.Sleep(10 * tick)
	assert.Equal(t, 1, src.discovered())
	assert.Equal(t, StateCollectingForever, w.State())
	assert.Equal(t, command.PhaseError, w.Status().Phase)
	assert.Contains(t, w.Status().Detail, "Waiting 3600 seconds")
}

func TestPanicInAttemptIsRecovered(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", images: 5, t: t, panicOnce: true}

	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark, WithInterval(tick))
	w.Start(context.Background())
	defer w.Shutdown()

	w.CollectAndStop(1)
	require.Eventually(t, func() bool {
		return len(stagedFiles(t, cfg.Pool.ImagePoolDirectory)) == 1
	}, waitFor, tick)
}

func TestAlternatePacingFetchesWhenListIsFull(t *testing.T) {
	cfg := testConfig(t)
	src := &stubSource{name: "stub", images: 5, t: t, pacing: &Pacing{
		LowWater: 2, MaxTracked: 50, Alternate: true,
		DiscoverPhase: command.PhaseQuerying, FetchPhase: command.PhaseDownloading,
	}}
	w := NewWorker(src, cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark)

	ctx := context.Background()
	w.step(ctx)
	require.Equal(t, 1, src.discovered())
	require.Equal(t, 0, src.fetched())
	require.Len(t, w.tracked, 5)

	// discover turns with at least LowWater locators tracked fetch instead
	for i := 0; i < 5; i++ {
		w.step(ctx)
	}
	assert.Equal(t, 1, src.discovered())
	assert.Equal(t, 5, src.fetched())
	assert.Empty(t, w.tracked)
	assert.Len(t, stagedFiles(t, cfg.Pool.ImagePoolDirectory), 5)

	// list drained: the next discover turn queries again
	w.step(ctx)
	w.step(ctx)
	assert.Equal(t, 2, src.discovered())
}

// stubSource hands out distinct generated PNGs.
type stubSource struct {
	name        string
	images      int
	t           *testing.T
	delay       time.Duration
	discoverErr error
	panicOnce   bool
	pacing      *Pacing

	mu        sync.Mutex
	nfetch    int
	ndiscover int
	served    int
	panicked  bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Pacing() Pacing {
	if s.pacing != nil {
		return *s.pacing
	}
	return Pacing{LowWater: 5, MaxTracked: 50, DiscoverPhase: command.PhaseQuerying, FetchPhase: command.PhaseDownloading}
}

func (s *stubSource) Discover(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ndiscover++
	if s.panicOnce && !s.panicked {
		s.panicked = true
		panic("boom")
	}
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}
	var out []string
	for i := 0; i < 5 && s.served < s.images; i++ {
		s.served++
		out = append(out, "stub://image/"+strconv.Itoa(s.served))
	}
	return out, nil
}

func (s *stubSource) Fetch(ctx context.Context, locator string) *domain.Candidate {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.Rejected(locator, "cancelled")
		}
	}
	s.mu.Lock()
	s.nfetch++
	n := s.nfetch
	s.mu.Unlock()
	return domain.NewCandidate(locator, pngBytes(s.t, color.RGBA{uint8(n), uint8(n >> 8), 7, 255}), ".png")
}

func (s *stubSource) fetched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nfetch
}

func (s *stubSource) discovered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ndiscover
}
