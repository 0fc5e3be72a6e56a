package assembler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/processor"
)

const (
	PersistFileName = "assembler_superpose_current.bmp"

	DefaultPollInterval = 250 * time.Millisecond
	minImageSize        = 32
)

// Superpose keeps a working composite across runs and blends a batch of
// pool images into it on every session.
type Superpose struct {
	base

	nbImages    int
	maxAttempts int
	persistPath string
	interval    time.Duration
	fresh       bool

	inbox   *command.Inbox
	status  *command.StatusBox
	running atomic.Bool

	mu       sync.RWMutex
	final    *image.NRGBA
	err      error
	sessions int
	finished chan struct{}

	// owned by the superpose goroutine once started
	current *image.NRGBA
	blank   bool

	cancel context.CancelFunc
	done   chan struct{}
}

type SuperposeOption func(*Superpose)

func WithPollInterval(d time.Duration) SuperposeOption {
	return func(s *Superpose) { s.interval = d }
}

// WithFreshStart ignores any composite persisted by a previous run.
func WithFreshStart() SuperposeOption {
	return func(s *Superpose) { s.fresh = true }
}

// NewSuperpose starts the source, loads the persisted composite and
// publishes a first final image before returning.
func NewSuperpose(ctx context.Context, cfg *config.Config, source domain.ImageSource, opts ...SuperposeOption) *Superpose {
	s := &Superpose{
		nbImages:    cfg.Assembler.Superpose.NbImages,
		maxAttempts: cfg.Assembler.Superpose.MaxAttempts,
		persistPath: cfg.PersistencePath(PersistFileName),
		interval:    DefaultPollInterval,
		inbox:       command.NewInbox(),
		status:      command.NewStatusBox(command.PhaseWaiting),
		finished:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base = newBase(ctx, cfg, source, "assembler_superpose")

	s.loadPrevious()
	s.final = s.postProcess(s.current)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
	return s
}

// Superpose asks for a new session. It returns false and does nothing when
// a session is already in progress or the assembler has stopped.
func (s *Superpose) Superpose() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.inbox.Send(command.Command{Kind: command.Superpose, N: s.nbImages})
	return true
}

// SuperposeBlocking runs a session, or joins the one in progress, and waits
// for it to finish.
func (s *Superpose) SuperposeBlocking(ctx context.Context) error {
	s.mu.RLock()
	finished := s.finished
	s.mu.RUnlock()

	s.Superpose()

	select {
	case <-finished:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		if err := s.Err(); errors.Is(err, domain.ErrPersistence) {
			return err
		}
		return domain.ErrShutdown
	}
}

// Image returns a copy of the last final image.
func (s *Superpose) Image() *image.NRGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.final == nil {
		return nil
	}
	return imaging.Clone(s.final)
}

func (s *Superpose) SaveImageTo(ctx context.Context, path string) error {
	if err := s.SuperposeBlocking(ctx); err != nil {
		return err
	}
	if err := WriteImage(s.Image(), path, s.quality); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Err is the error of the last session, if it failed.
func (s *Superpose) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Sessions is the number of sessions completed since start.
func (s *Superpose) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

func (s *Superpose) State() command.Status {
	return s.status.Get()
}

func (s *Superpose) Source() domain.ImageSource {
	return s.source
}

// Shutdown stops the superpose goroutine, then the source.
func (s *Superpose) Shutdown() {
	s.inbox.Send(command.Command{Kind: command.Shutdown})
	s.cancel()
	<-s.done
}

func (s *Superpose) run(ctx context.Context) {
	defer close(s.done)
	defer s.base.Shutdown()
	s.log.Info().Int("nbimages", s.nbImages).Str("persist", s.persistPath).Msg("Superpose assembler started")

	for {
		cmd, ok := s.inbox.TryReceive()
		if ok {
			switch cmd.Kind {
			case command.Shutdown:
				s.log.Info().Msg("Shutting down")
				s.status.Set(command.PhaseShuttingDown, "")
				return
			case command.Superpose:
				err := s.session(ctx, cmd.N)
				if errors.Is(err, domain.ErrPersistence) {
					s.log.Error().Err(err).Msg("Cannot save current image, assembler stopped")
					s.status.Set(command.PhaseError, err.Error())
					return
				}
				if errors.Is(err, domain.ErrShutdown) || ctx.Err() != nil {
					s.status.Set(command.PhaseShuttingDown, "")
					return
				}
				continue
			default:
				s.log.Error().Str("command", cmd.Kind.String()).Msg("Unknown command")
				continue
			}
		}

		select {
		case <-ctx.Done():
			s.status.Set(command.PhaseShuttingDown, "")
			return
		case <-s.inbox.Notify():
		}
	}
}

// session blends n accepted images, then persists and publishes.
func (s *Superpose) session(ctx context.Context, n int) error {
	defer s.running.Store(false)
	s.log.Info().Int("images", n).Msg("Superposing images in current image")

	if s.blank {
		s.current = imaging.New(s.width(), s.height(), color.Black)
		s.blank = false
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	blended, attempts := 0, 0
	for blended < n {
		if cmd, ok := s.inbox.TryReceive(); ok {
			if cmd.Kind == command.Shutdown {
				return domain.ErrShutdown
			}
			s.log.Debug().Str("command", cmd.Kind.String()).Msg("Ignoring command during session")
		}
		if s.maxAttempts > 0 && attempts >= s.maxAttempts {
			s.log.Warn().Int("attempts", attempts).Int("blended", blended).Msg("Too many bad images, ending session early")
			break
		}

		pimg := s.source.Image()
		if pimg == nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.interval)
			select {
			case <-ctx.Done():
				return domain.ErrShutdown
			case <-s.inbox.Notify():
			case <-timer.C:
			}
			continue
		}

		b := pimg.Bounds()
		if b.Dx() < minImageSize || b.Dy() < minImageSize {
			s.log.Debug().Str("file", pimg.Filename).Msg("Image too small, skipping")
			continue
		}
		attempts++

		s.status.Set(command.PhaseSuperposing, fmt.Sprintf("image %d of %d", blended+1, n))
		next, err := s.safeBlend(s.current, pimg.Image)
		if err != nil {
			if errors.Is(err, domain.ErrBadImage) {
				s.log.Info().Str("file", pimg.Filename).Msg("Broken image, ignoring")
			} else {
				s.log.Error().Err(err).Str("file", pimg.Filename).Msg("Could not assemble image")
			}
			continue
		}
		s.current = next
		blended++
	}

	s.log.Info().Msg("Saving session image and post-processing")
	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist current image")
		s.finish(nil, err)
		return err
	}
	s.finish(s.postProcess(s.current), nil)
	s.log.Info().Int("blended", blended).Msg("Done")
	return nil
}

// finish publishes the session result and wakes SuperposeBlocking callers.
// A caller woken here must be able to start the next session right away.
func (s *Superpose) finish(final *image.NRGBA, err error) {
	s.mu.Lock()
	s.running.Store(false)
	if final != nil {
		s.final = final
		s.sessions++
	}
	s.err = err
	close(s.finished)
	s.finished = make(chan struct{})
	s.mu.Unlock()
	s.status.Set(command.PhaseWaiting, "")
}

func (s *Superpose) safeBlend(canvas *image.NRGBA, src image.Image) (out *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while blending: %v", r)
		}
	}()
	return s.blend(canvas, src)
}

// blend pastes one image at a random place of canvas, masked by its own
// luminance.
func (s *Superpose) blend(canvas *image.NRGBA, src image.Image) (*image.NRGBA, error) {
	cfg := s.cfg.Assembler.Superpose
	sizeX, sizeY := s.width(), s.height()

	if cfg.Variante == 1 {
		canvas = processor.Darken(canvas, 0.99)
	} else {
		canvas = imaging.Clone(canvas)
	}

	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("empty image: %w", domain.ErrBadImage)
	}
	img := processor.ToNRGBA(src)

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > sizeX || h > sizeY {
		img = imaging.Fit(img, sizeX/2, sizeY/2, imaging.Lanczos)
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	img, err := shrink(img, cfg.Scale)
	if err != nil {
		return nil, err
	}
	w, h = img.Bounds().Dx(), img.Bounds().Dy()

	img = processor.AutoContrast(img)
	if processor.IsMostlyWhite(img) {
		img = imaging.Invert(img)
	}

	at := image.Pt(randInt(-w, sizeX), randInt(-h, sizeY))

	img = processor.DarkenBorders(img, cfg.BorderSmooth)
	if cfg.RandomRotation {
		rotated := imaging.Rotate(img, float64(rand.IntN(360)), color.Black)
		img = imaging.CropCenter(rotated, w, h)
		img = processor.DarkenBorders(img, cfg.BorderSmooth)
	}

	mask := processor.LuminanceMask(img)
	if cfg.Variante == 1 && rand.IntN(101) < 5 {
		processor.InvertMask(mask)
	}
	processor.PasteMasked(canvas, img, at, mask)

	if cfg.Variante == 0 {
		return processor.Equalize(canvas), nil
	}
	return processor.AutoContrast(canvas), nil
}

// shrink scales img down by scale. Scales of 1 or more leave it untouched.
func shrink(img *image.NRGBA, scale float64) (*image.NRGBA, error) {
	if scale <= 0 || scale >= 1 {
		return img, nil
	}
	b := img.Bounds()
	w, h := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("scaled to nothing: %w", domain.ErrBadImage)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// postProcess builds the public final image from the working composite.
func (s *Superpose) postProcess(current *image.NRGBA) *image.NRGBA {
	img := imaging.Clone(current)
	if s.cfg.Assembler.Resuperpose {
		flipped := imaging.Rotate180(img)
		processor.PasteMasked(img, flipped, image.Point{}, processor.InvertedLuminanceMask(img))
		img = processor.Equalize(img)
	}
	img = s.filters(img, 0)
	processor.DrawLogo(img)
	return img
}

func (s *Superpose) persist() error {
	if s.current == nil {
		return nil
	}
	if err := WriteImage(s.current, s.persistPath, 0); err != nil {
		return fmt.Errorf("save current image to %s: %w: %v", s.persistPath, domain.ErrPersistence, err)
	}
	return nil
}

// loadPrevious restores the composite of the previous run. A composite of
// another size is resized. Anything unreadable gives the placeholder, and
// the first session then starts from a black canvas.
func (s *Superpose) loadPrevious() {
	if !s.fresh {
		img, err := imaging.Open(s.persistPath)
		if err == nil {
			cur := processor.ToNRGBA(img)
			if cur.Bounds().Dx() != s.width() || cur.Bounds().Dy() != s.height() {
				cur = imaging.Resize(cur, s.width(), s.height(), imaging.Lanczos)
				s.log.Debug().Msg("Starting from previous image resized")
			} else {
				s.log.Debug().Msg("Starting from previous image")
			}
			s.current = cur
			return
		}
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.persistPath).Msg("Could not read previous image")
		}
	}
	s.current = processor.Placeholder(s.width(), s.height())
	s.blank = true
}

// randInt returns a uniform integer in [lo, hi].
func randInt(lo, hi int) int {
	return lo + rand.IntN(hi-lo+1)
}
