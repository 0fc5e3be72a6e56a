package pool

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/blacklist"
	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	DefaultInterval   = 250 * time.Millisecond
	DefaultCheckEvery = 5 * time.Second
)

// Collector is the part of a collector worker the pool drives.
type Collector interface {
	Name() string
	Start(ctx context.Context)
	CollectContinuously()
	StopCollecting()
	Shutdown()
	Status() command.Status
}

type CollectorStatus struct {
	Name   string         `json:"name"`
	Status command.Status `json:"status"`
}

// Pool keeps the staging directory stocked by throttling its collectors and
// always tries to hold one decoded image ready for an assembler.
type Pool struct {
	dir        string
	mark       string
	target     int
	keep       bool
	maxRead    int64
	blacklist  *blacklist.Blacklist
	collectors []Collector
	history    domain.HistoryRepository
	audit      *AuditLog
	interval   time.Duration
	checkEvery time.Duration
	log        zerolog.Logger

	slot  chan *domain.PoolImage
	inbox *command.Inbox
	size  atomic.Int64

	// owned by the pool goroutine
	files     []string
	lastCheck time.Time

	startOnce sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Pool)

func WithHistory(repo domain.HistoryRepository) Option {
	return func(p *Pool) { p.history = repo }
}

func WithInterval(d time.Duration) Option {
	return func(p *Pool) { p.interval = d }
}

func WithCheckEvery(d time.Duration) Option {
	return func(p *Pool) { p.checkEvery = d }
}

// New creates the staging directory and fails with ErrPoolDirectory if it
// cannot be created or written to.
func New(cfg *config.Config, collectors []Collector, opts ...Option) (*Pool, error) {
	dir := cfg.Pool.ImagePoolDirectory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w: %v", dir, domain.ErrPoolDirectory, err)
	}
	tmp, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("write to %s: %w: %v", dir, domain.ErrPoolDirectory, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())

	p := &Pool{
		dir:        dir,
		mark:       cfg.Pool.SourceMark,
		target:     cfg.Pool.NbImages,
		keep:       cfg.Pool.KeepImages,
		maxRead:    cfg.Collector.MaximumImageSize + int64(domain.SourceMarkWindow(cfg.Pool.SourceMark)),
		blacklist:  cfg.CompiledBlacklist(),
		collectors: collectors,
		audit:      NewAuditLog(dir),
		interval:   DefaultInterval,
		checkEvery: DefaultCheckEvery,
		log:        zlog.Logger.With().Str("component", "pool").Logger(),
		slot:       make(chan *domain.PoolImage, 1),
		inbox:      command.NewInbox(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start starts every collector, then the pool goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		for _, c := range p.collectors {
			c.Start(ctx)
		}
		p.started.Store(true)
		go p.run(ctx)
	})
}

// Image returns the waiting image, or nil right away if there is none.
func (p *Pool) Image() *domain.PoolImage {
	select {
	case img := <-p.slot:
		return img
	default:
		return nil
	}
}

// ImageBlocking waits for an image. It fails with ErrShutdown once the pool
// has stopped.
func (p *Pool) ImageBlocking(ctx context.Context) (*domain.PoolImage, error) {
	select {
	case img := <-p.slot:
		return img, nil
	default:
	}
	select {
	case img := <-p.slot:
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, domain.ErrShutdown
	}
}

// Size is the number of staged files seen at the last directory check.
func (p *Pool) Size() int {
	return int(p.size.Load())
}

func (p *Pool) Collectors() []CollectorStatus {
	out := make([]CollectorStatus, 0, len(p.collectors))
	for _, c := range p.collectors {
		out = append(out, CollectorStatus{Name: c.Name(), Status: c.Status()})
	}
	return out
}

func (p *Pool) AuditLogPath() string { return p.audit.Path() }

// Shutdown stops the pool and its collectors and waits for all of them.
func (p *Pool) Shutdown() {
	p.inbox.Send(command.Command{Kind: command.Shutdown})
	if !p.started.Load() {
		p.shutdownCollectors()
		return
	}
	p.cancel()
	<-p.done
}

func (p *Pool) run(ctx context.Context) {
	defer close(p.done)
	defer p.shutdownCollectors()
	p.log.Info().Str("dir", p.dir).Int("target", p.target).Int("collectors", len(p.collectors)).Msg("Image pool started")

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		if cmd, ok := p.inbox.TryReceive(); ok && cmd.Kind == command.Shutdown {
			p.log.Info().Msg("Image pool shutting down")
			return
		}

		now := time.Now()
		if elapsed := now.Sub(p.lastCheck); p.lastCheck.IsZero() || elapsed > p.checkEvery || elapsed < 0 {
			p.check()
			p.lastCheck = now
		}

		if len(p.slot) == 0 && len(p.files) > 0 {
			p.refill(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.interval)

		select {
		case <-ctx.Done():
			p.log.Info().Msg("Image pool stopped by context")
			return
		case <-p.inbox.Notify():
		case <-timer.C:
		}
	}
}

func (p *Pool) shutdownCollectors() {
	var wg sync.WaitGroup
	for _, c := range p.collectors {
		wg.Add(1)
		go func(c Collector) {
			defer wg.Done()
			c.Shutdown()
		}(c)
	}
	wg.Wait()
}

// check re-lists the directory and throttles the collectors.
func (p *Pool) check() {
	files, err := listImages(p.dir)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to list image pool")
		return
	}
	p.files = files
	p.size.Store(int64(len(files)))

	kind := Throttle(len(files), p.target)
	for _, c := range p.collectors {
		if kind == command.CollectContinuously {
			c.CollectContinuously()
		} else {
			c.StopCollecting()
		}
	}
	p.log.Debug().Int("available", len(files)).Str("command", kind.String()).Msg("Pool checked")
}

func (p *Pool) refill(ctx context.Context) {
	idx := rand.IntN(len(p.files))
	path := p.files[idx]
	p.files[idx] = p.files[len(p.files)-1]
	p.files = p.files[:len(p.files)-1]

	img, err := p.load(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrBadImage) {
			p.log.Debug().Err(err).Str("file", path).Msg("Bad image. Dropping file.")
		} else {
			p.log.Warn().Err(err).Str("file", path).Msg("Failed to load staged image")
		}
		return
	}

	select {
	case p.slot <- img:
	default:
	}
}

func (p *Pool) load(ctx context.Context, path string) (*domain.PoolImage, error) {
	raw, err := readAtMost(path, p.maxRead)
	if err != nil {
		return nil, err
	}
	if !p.keep {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn().Err(err).Str("file", path).Msg("Failed to delete consumed image")
		}
	}

	if staged, ok := domain.StagedSHA1(path); ok && p.blacklist.HasHash(staged) {
		return nil, fmt.Errorf("%s is blacklisted: %w", staged, domain.ErrBadImage)
	}
	data, source := domain.SplitSourceMark(raw, p.mark)
	sum := sha1.Sum(data)
	digest := hex.EncodeToString(sum[:])
	if p.blacklist.HasHash(digest) {
		return nil, fmt.Errorf("%s is blacklisted: %w", digest, domain.ErrBadImage)
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadImage, err)
	}

	name := filepath.Base(path)
	if err := p.audit.Append(AuditLine(name, source)); err != nil {
		p.log.Warn().Err(err).Msg("Failed to write audit log")
	}

	img := &domain.PoolImage{Image: decoded, Filename: name, Source: source, SHA1: digest}
	p.record(ctx, img)
	return img, nil
}

func (p *Pool) record(ctx context.Context, img *domain.PoolImage) {
	if p.history == nil {
		return
	}
	b := img.Bounds()
	used := &domain.UsedImage{
		ID:       uuid.NewString(),
		Filename: img.Filename,
		Source:   img.Source,
		SHA1:     img.SHA1,
		Width:    b.Dx(),
		Height:   b.Dy(),
		UsedAt:   time.Now().UTC(),
	}
	if err := p.history.Record(ctx, used); err != nil {
		p.log.Warn().Err(err).Str("file", img.Filename).Msg("Failed to record image history")
	}
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !domain.IsImageExt(filepath.Ext(e.Name())) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func readAtMost(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, n))
}
