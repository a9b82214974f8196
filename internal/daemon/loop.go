// Package daemon implements the polling loop that watches enabled panes for
// confirmation prompts, the dispatcher that answers them, and the process
// lifecycle manager that keeps exactly one loop running system-wide.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/logging"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

var loopLog = logging.ForComponent(logging.CompDaemon)

// State is the loop's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// responsePause is how long to wait after a successful send before the next
// instance, giving the answered pane time to redraw past the prompt.
const responsePause = 2 * time.Second

// Registry enumerates candidate panes.
type Registry interface {
	ListInstances(ctx context.Context) ([]detect.Instance, error)
}

// ConfigSource loads the persisted opt-in state. The loop re-reads it every
// cycle so CLI/TUI changes take effect without a restart.
type ConfigSource interface {
	Load() (config.Config, error)
}

// Capturer snapshots a pane's visible text.
type Capturer interface {
	Capture(ctx context.Context, target string) (string, error)
}

// Loop runs the poll cycle: refresh registry, filter by config, match
// prompts, dispatch responses, sleep. Single process, no notification
// channel from the monitored processes exists, so correctness rests on the
// poll interval plus idempotent matching.
type Loop struct {
	registry   Registry
	store      ConfigSource
	capturer   Capturer
	dispatcher *Dispatcher
	matcher    *detect.PromptMatcher
	debounce   *Debounce
	activity   *ActivityStore

	// pause after a successful send; shortened in tests
	pause time.Duration

	state atomic.Int32
}

// NewLoop wires a Loop from its collaborators.
func NewLoop(registry Registry, store ConfigSource, capturer Capturer, dispatcher *Dispatcher) *Loop {
	return &Loop{
		registry:   registry,
		store:      store,
		capturer:   capturer,
		dispatcher: dispatcher,
		matcher:    detect.CompilePromptPatterns(detect.DefaultPromptPatterns()),
		debounce:   NewDebounce(),
		pause:      responsePause,
	}
}

// SetActivityStore makes the loop publish dispatch timestamps for the
// status command and TUI. Optional; nil disables publishing.
func (l *Loop) SetActivityStore(store *ActivityStore) {
	l.activity = store
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		loopLog.Info("state_transition",
			slog.String("from", prev.String()),
			slog.String("to", s.String()))
	}
}

// Run executes cycles until the context is cancelled. A panic inside a cycle
// is caught, logged, and surfaced as an error: the process exits non-zero
// and restart is the lifecycle manager's call, never the loop's own.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.setState(StateStarting)
	defer func() {
		if r := recover(); r != nil {
			l.setState(StateCrashed)
			err = fmt.Errorf("daemon loop crashed: %v", r)
			loopLog.Error("loop_crashed", slog.Any("panic", r))
			return
		}
		l.setState(StateStopped)
	}()

	l.setState(StateRunning)

	// Prime one cycle immediately so a freshly started daemon answers
	// an already-showing prompt without waiting out the first interval.
	interval := l.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			l.setState(StateStopping)
			loopLog.Info("loop_stopping")
			return nil
		case <-time.After(interval):
			interval = l.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single poll cycle and returns the delay until the next
// one. Per-instance failures are contained here; nothing short of a panic
// escapes a cycle.
func (l *Loop) RunOnce(ctx context.Context) time.Duration {
	cfg, err := l.store.Load()
	if err != nil {
		// Keep last-known-off behavior: without readable config we must
		// not guess at permissions, so skip all work this cycle.
		loopLog.Error("config_load_failed", slog.String("error", err.Error()))
		return time.Duration(config.DefaultPollIntervalSecs) * time.Second
	}
	interval := time.Duration(cfg.PollIntervalSecs) * time.Second

	// Master kill switch, checked before any per-instance work.
	if !cfg.GlobalEnabled {
		return interval
	}

	instances, err := l.registry.ListInstances(ctx)
	if err != nil {
		if errors.Is(err, tmux.ErrUnavailable) {
			loopLog.Warn("backend_unavailable_skipping_cycle")
			return interval
		}
		loopLog.Error("list_instances_failed", slog.String("error", err.Error()))
		return interval
	}

	active := make(map[string]bool, len(instances))
	for _, inst := range instances {
		active[inst.Target()] = true
		if !inst.IsClaude || !cfg.IsEnabled(inst.Target()) {
			continue
		}
		l.checkInstance(ctx, inst.Target())
	}
	l.debounce.Prune(active)
	if l.activity != nil {
		if err := l.activity.Prune(active); err != nil {
			loopLog.Debug("activity_prune_failed", slog.String("error", err.Error()))
		}
	}

	return interval
}

// checkInstance captures one pane, runs the matcher, and dispatches on a
// hit. Any failure is logged and contained; it never aborts the cycle for
// the remaining instances.
func (l *Loop) checkInstance(ctx context.Context, target string) {
	content, err := l.capturer.Capture(ctx, target)
	if err != nil {
		// Pane may have vanished between enumeration and capture, or the
		// capture timed out; either way it's a skip, not a failure.
		loopLog.Warn("capture_failed",
			slog.String("target", target),
			slog.String("error", err.Error()))
		return
	}

	if !l.debounce.ShouldRespond(target, content, l.matcher) {
		return
	}

	if err := l.dispatcher.Respond(ctx, target); err != nil {
		loopLog.Warn("dispatch_failed",
			slog.String("target", target),
			slog.String("error", err.Error()))
		return
	}

	now := time.Now()
	l.debounce.MarkResponded(target, content, now)
	if l.activity != nil {
		if err := l.activity.Record(target, now); err != nil {
			loopLog.Debug("activity_record_failed", slog.String("error", err.Error()))
		}
	}
	loopLog.Info("response_sent", slog.String("target", target))

	// Give the pane time to redraw before the next capture so the answered
	// prompt isn't immediately re-matched under a fresh hash.
	select {
	case <-ctx.Done():
	case <-time.After(l.pause):
	}
}
