package pool

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func TestThrottle(t *testing.T) {
	assert.Equal(t, command.CollectContinuously, Throttle(0, 50))
	assert.Equal(t, command.CollectContinuously, Throttle(49, 50))
	assert.Equal(t, command.StopCollecting, Throttle(50, 50))
	assert.Equal(t, command.StopCollecting, Throttle(80, 50))
}

func TestNewFailsOnUnusableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plainfile")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := testConfig(t, filepath.Join(file, "pool"))
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrPoolDirectory)
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := New(testConfig(t, dir), nil)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestLevelTriggeredThrottle(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Pool.NbImages = 3
	cfg.Pool.KeepImages = true

	fc := &fakeCollector{name: "fake"}
	p, err := New(cfg, []Collector{fc}, WithInterval(tick), WithCheckEvery(2*tick))
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Shutdown()

	require.Eventually(t, func() bool { return fc.count(command.CollectContinuously) >= 2 }, waitFor, tick)

	for i := 0; i < 3; i++ {
		stage(t, cfg, pngData(t, uint8(i)), "file:///img"+string(rune('0'+i)))
	}
	require.Eventually(t, func() bool { return fc.count(command.StopCollecting) >= 2 }, waitFor, tick)
	assert.Equal(t, 3, p.Size())
	assert.True(t, fc.started())
}

func TestImageHandoff(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	data := pngData(t, 42)
	name := stage(t, cfg, data, "http://example.org/cat.png")

	p, err := New(cfg, nil, WithInterval(tick), WithCheckEvery(tick))
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	img, err := p.ImageBlocking(ctx)
	require.NoError(t, err)

	assert.Equal(t, name, img.Filename)
	assert.Equal(t, "http://example.org/cat.png", img.Source)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return os.IsNotExist(err)
	}, waitFor, tick, "consumed file is deleted")

	audit, err := os.ReadFile(p.AuditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(audit), name+`:&nbsp;<a href="http://example.org/cat.png">`)

	assert.Nil(t, p.Image(), "nothing else to hand out")
}

func TestKeepImages(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Pool.KeepImages = true
	name := stage(t, cfg, pngData(t, 1), "x")

	p, err := New(cfg, nil, WithInterval(tick), WithCheckEvery(tick))
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err = p.ImageBlocking(ctx)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, name))
}

func TestBlacklistedImageNeverHandedOut(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"short source", "http://bad.example.org/x.png"},
		{"long redirect source", "http://search.example.org/url?q=" + strings.Repeat("x", 1200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			data := pngData(t, 7)
			sum := sha1.Sum(data)

			cfg := config.Default()
			cfg.Pool.ImagePoolDirectory = dir
			cfg.Blacklist.ImageSHA1 = []string{hex.EncodeToString(sum[:])}
			require.NoError(t, cfg.Finalize())
			name := stage(t, cfg, data, tt.source)

			p, err := New(cfg, nil, WithInterval(tick), WithCheckEvery(tick))
			require.NoError(t, err)
			p.Start(context.Background())
			defer p.Shutdown()

			require.Eventually(t, func() bool {
				_, err := os.Stat(filepath.Join(dir, name))
				return os.IsNotExist(err)
			}, waitFor, tick)
			time.Sleep(10 * tick)
			assert.Nil(t, p.Image())
		})
	}
}

func TestLongSourceRecovered(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	source := "http://search.example.org/url?q=" + strings.Repeat("y", 1200)
	data := pngData(t, 9)
	stage(t, cfg, data, source)

	p, err := New(cfg, nil, WithInterval(tick), WithCheckEvery(tick))
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	img, err := p.ImageBlocking(ctx)
	require.NoError(t, err)

	sum := sha1.Sum(data)
	assert.Equal(t, source, img.Source)
	assert.Equal(t, hex.EncodeToString(sum[:]), img.SHA1)
}

func TestUndecodableFileDropped(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WGbroken.jpg"), []byte("garbage"), 0o644))

	p, err := New(cfg, nil, WithInterval(tick), WithCheckEvery(tick))
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Shutdown()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "WGbroken.jpg"))
		return os.IsNotExist(err)
	}, waitFor, tick)
	assert.Nil(t, p.Image())
}

func TestShutdownCascadesToCollectors(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	fcs := []*fakeCollector{{name: "a"}, {name: "b"}}
	p, err := New(cfg, []Collector{fcs[0], fcs[1]}, WithInterval(tick))
	require.NoError(t, err)
	p.Start(context.Background())

	p.Shutdown()
	for _, fc := range fcs {
		assert.True(t, fc.isShutdown(), fc.name)
	}

	_, err = p.ImageBlocking(context.Background())
	assert.ErrorIs(t, err, domain.ErrShutdown)

	statuses := p.Collectors()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Name)
}

func TestShutdownWithoutStart(t *testing.T) {
	fc := &fakeCollector{name: "a"}
	p, err := New(testConfig(t, t.TempDir()), []Collector{fc})
	require.NoError(t, err)
	p.Shutdown()
	assert.True(t, fc.isShutdown())
}

func TestAuditLogTruncation(t *testing.T) {
	a := NewAuditLog(t.TempDir())
	line := AuditLine("WGabc.jpg", "http://example.org/"+strings.Repeat("x", 200))
	for i := 0; i < 1000000/len(line)+10; i++ {
		require.NoError(t, a.Append(line))
	}

	data, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 1000000)
	assert.Greater(t, len(data), 700000)
	assert.True(t, strings.HasPrefix(string(data), "<code>"), "starts on a whole line")
	assert.True(t, strings.HasSuffix(string(data), line+"\n"))
}

func TestAuditLineUnknownSource(t *testing.T) {
	assert.Equal(t, `<code>WG1.png:&nbsp;<a href="&lt;url unknown&gt;">&lt;url unknown&gt;</a></code><br>`,
		AuditLine("WG1.png", ""))
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.ImagePoolDirectory = dir
	require.NoError(t, cfg.Finalize())
	return cfg
}

func pngData(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.Set(0, 0, color.NRGBA{shade, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func stage(t *testing.T, cfg *config.Config, data []byte, source string) string {
	t.Helper()
	c := domain.NewCandidate(source, data, ".png")
	_, err := c.SaveToDisk(cfg.Pool.ImagePoolDirectory, cfg.Pool.SourceMark)
	require.NoError(t, err)
	return c.Filename()
}

type fakeCollector struct {
	name string

	mu       sync.Mutex
	cmds     []command.Kind
	start    bool
	shutdown bool
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Start(context.Context) {
	f.mu.Lock()
	f.start = true
	f.mu.Unlock()
}

func (f *fakeCollector) CollectContinuously() { f.push(command.CollectContinuously) }
func (f *fakeCollector) StopCollecting()      { f.push(command.StopCollecting) }

func (f *fakeCollector) Shutdown() {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
}

func (f *fakeCollector) Status() command.Status {
	return command.Status{Phase: command.PhaseStopped}
}

func (f *fakeCollector) push(k command.Kind) {
	f.mu.Lock()
	f.cmds = append(f.cmds, k)
	f.mu.Unlock()
}

func (f *fakeCollector) count(k command.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.cmds {
		if c == k {
			n++
		}
	}
	return n
}

func (f *fakeCollector) started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start
}

func (f *fakeCollector) isShutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown
}
