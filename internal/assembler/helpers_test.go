package assembler

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

// fakeSource hands out queued images in order.
type fakeSource struct {
	mu       sync.Mutex
	queue    []*domain.PoolImage
	taken    int
	started  atomic.Bool
	stopped  atomic.Bool
	shutdown chan struct{}
	once     sync.Once
}

func newFakeSource(imgs ...image.Image) *fakeSource {
	f := &fakeSource{shutdown: make(chan struct{})}
	f.push(imgs...)
	return f
}

func (f *fakeSource) push(imgs ...image.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range imgs {
		f.queue = append(f.queue, &domain.PoolImage{Image: img, Filename: "WGfake.png", Source: "test"})
	}
}

func (f *fakeSource) Start(ctx context.Context) { f.started.Store(true) }

func (f *fakeSource) Image() *domain.PoolImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	img := f.queue[0]
	f.queue = f.queue[1:]
	f.taken++
	return img
}

func (f *fakeSource) ImageBlocking(ctx context.Context) (*domain.PoolImage, error) {
	if img := f.Image(); img != nil {
		return img, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.shutdown:
		return nil, domain.ErrShutdown
	}
}

func (f *fakeSource) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *fakeSource) Shutdown() {
	f.stopped.Store(true)
	f.once.Do(func() { close(f.shutdown) })
}

func (f *fakeSource) Taken() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taken
}

func (f *fakeSource) Remaining() int { return f.Size() }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.ImagePoolDirectory = t.TempDir()
	cfg.Persistence = t.TempDir()
	cfg.Assembler.SizeX = 64
	cfg.Assembler.SizeY = 48
	cfg.Assembler.Mirror = false
	cfg.Assembler.Emboss = false
	cfg.Assembler.Invert = false
	cfg.Assembler.Resuperpose = false
	cfg.Assembler.Superpose.NbImages = 3
	cfg.Assembler.Superpose.BorderSmooth = 4
	cfg.Assembler.Mosaic.NbX = 2
	cfg.Assembler.Mosaic.NbY = 2
	require.NoError(t, cfg.Finalize())
	return cfg
}

// noisy is a gradient image so that autocontrast and masks have something
// to work with.
func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}
