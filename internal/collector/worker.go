package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/command"
	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	DefaultInterval = 250 * time.Millisecond
	DefaultCooldown = 60 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateCollectingN
	StateCollectingForever
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollectingN:
		return "collecting"
	case StateCollectingForever:
		return "collecting continuously"
	case StateShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Worker runs one Source on its own goroutine and stages accepted images
// into the pool directory.
type Worker struct {
	source   Source
	dir      string
	mark     string
	interval time.Duration
	cooldown time.Duration

	inbox  *command.Inbox
	status *command.StatusBox
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	remaining int

	// owned by the worker goroutine
	tracked       []string
	seen          map[string]struct{}
	discoverTurn  bool
	cooldownUntil time.Time

	startOnce sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type WorkerOption func(*Worker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

func WithCooldown(d time.Duration) WorkerOption {
	return func(w *Worker) { w.cooldown = d }
}

func NewWorker(source Source, poolDir, sourceMark string, opts ...WorkerOption) *Worker {
	w := &Worker{
		source:   source,
		dir:      poolDir,
		mark:     sourceMark,
		interval: DefaultInterval,
		cooldown: DefaultCooldown,
		inbox:    command.NewInbox(),
		status:   command.NewStatusBox(command.PhaseStopped),
		log:      zlog.Logger.With().Str("component", "collector").Str("source", source.Name()).Logger(),
		seen:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Name() string { return w.source.Name() }

func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		w.started.Store(true)
		go w.run(ctx)
	})
}

func (w *Worker) CollectAndStop(n int) {
	w.inbox.Send(command.Command{Kind: command.CollectN, N: n})
}

func (w *Worker) CollectContinuously() {
	w.inbox.Send(command.Command{Kind: command.CollectContinuously})
}

func (w *Worker) StopCollecting() {
	w.inbox.Send(command.Command{Kind: command.StopCollecting})
}

// Shutdown aborts any in-flight request and blocks until the worker
// goroutine has exited.
func (w *Worker) Shutdown() {
	w.inbox.Send(command.Command{Kind: command.Shutdown})
	if !w.started.Load() {
		w.status.Set(command.PhaseShuttingDown, "")
		return
	}
	w.cancel()
	<-w.done
}

func (w *Worker) Status() command.Status { return w.status.Get() }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	w.log.Debug().Msg("Collector started")

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		if cmd, ok := w.inbox.TryReceive(); ok {
			if w.handle(cmd) {
				return
			}
			continue
		}

		if w.active() {
			w.attempt(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.interval)

		select {
		case <-ctx.Done():
			w.setState(StateShuttingDown)
			w.status.Set(command.PhaseShuttingDown, "")
			w.log.Debug().Msg("Collector stopped by context")
			return
		case <-w.inbox.Notify():
		case <-timer.C:
		}
	}
}

// handle applies cmd and reports whether the worker must exit.
func (w *Worker) handle(cmd command.Command) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch cmd.Kind {
	case command.Shutdown:
		w.state = StateShuttingDown
		w.status.Set(command.PhaseShuttingDown, "")
		w.log.Debug().Msg("Shutting down")
		return true
	case command.CollectN:
		if cmd.N <= 0 {
			w.state, w.remaining = StateIdle, 0
			return false
		}
		if w.state == StateIdle {
			w.log.Debug().Int("n", cmd.N).Msg("Starting to collect images")
		}
		w.state, w.remaining = StateCollectingN, cmd.N
	case command.CollectContinuously:
		if w.state != StateCollectingForever {
			w.log.Debug().Msg("Starting to collect images non-stop")
		}
		w.state, w.remaining = StateCollectingForever, 0
	case command.StopCollecting:
		if w.state == StateCollectingForever || w.remaining > 1 {
			w.status.Set(command.PhaseStopped, "")
			w.log.Debug().Msg("Stopped")
		}
		w.state, w.remaining = StateIdle, 0
	default:
		w.log.Error().Str("command", cmd.Kind.String()).Msg("Unknown command ignored")
	}
	return false
}

func (w *Worker) active() bool {
	s := w.State()
	return s == StateCollectingN || s == StateCollectingForever
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) attempt(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("Collector attempt panicked")
			w.status.Set(command.PhaseError, fmt.Sprint(r))
		}
	}()
	w.step(ctx)
}

func (w *Worker) step(ctx context.Context) {
	if time.Now().Before(w.cooldownUntil) {
		return
	}

	p := w.source.Pacing()
	needMore := len(w.tracked) < p.LowWater

	if p.Alternate {
		w.discoverTurn = !w.discoverTurn
		// a discover turn with enough locators tracked is spent fetching
		if w.discoverTurn && needMore {
			w.discover(ctx, p)
			return
		}
	} else if needMore {
		if !w.discover(ctx, p) {
			return
		}
	}

	if len(w.tracked) > 0 {
		w.fetchOne(ctx, p)
	}
}

// discover reports whether the step may go on to fetch.
func (w *Worker) discover(ctx context.Context, p Pacing) bool {
	w.status.Set(p.DiscoverPhase, w.source.Name())

	found, err := w.source.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, domain.ErrLayoutChanged) {
			w.log.Warn().Err(err).Msg("Found no image URL in this page. Website changed?")
			w.status.Set(command.PhaseError, "Found no image URL in this page. Website changed?")
			w.StopCollecting()
			return false
		}
		w.log.Warn().Err(err).Dur("cooldown", w.cooldown).Msg("Unable to contact website")
		w.status.Set(command.PhaseError, fmt.Sprintf("Unable to contact website. Waiting %d seconds.", int(w.cooldown.Seconds())))
		w.cooldownUntil = time.Now().Add(w.cooldown)
		return false
	}

	for _, loc := range found {
		if p.MaxTracked > 0 && len(w.tracked) >= p.MaxTracked {
			break
		}
		if _, dup := w.seen[loc]; dup {
			continue
		}
		w.seen[loc] = struct{}{}
		w.tracked = append(w.tracked, loc)
	}
	return true
}

func (w *Worker) fetchOne(ctx context.Context, p Pacing) {
	idx := rand.IntN(len(w.tracked))
	loc := w.tracked[idx]
	w.tracked[idx] = w.tracked[len(w.tracked)-1]
	w.tracked = w.tracked[:len(w.tracked)-1]
	delete(w.seen, loc)

	w.status.Set(p.FetchPhase, loc)
	w.log.Debug().Str("locator", loc).Msg("Getting image")

	c := w.source.Fetch(ctx, loc)
	if !c.Accepted() {
		if ctx.Err() == nil {
			w.log.Debug().Str("locator", loc).Str("reason", c.Discard).Msg("Image discarded")
		}
		return
	}

	path, err := c.SaveToDisk(w.dir, w.mark)
	if err != nil {
		w.log.Error().Err(err).Str("locator", loc).Msg("Failed to stage image")
		return
	}
	w.log.Debug().Str("file", path).Msg("Image staged")

	w.mu.Lock()
	if w.state == StateCollectingN {
		w.remaining--
		if w.remaining <= 0 {
			w.state, w.remaining = StateIdle, 0
			w.status.Set(command.PhaseStopped, "")
		}
	}
	w.mu.Unlock()
}
