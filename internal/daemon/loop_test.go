package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

const promptText = "Do you want to continue?\n❯ 1. Yes\n  2. No"

type fakeRegistry struct {
	instances []detect.Instance
	err       error
}

func (f *fakeRegistry) ListInstances(ctx context.Context) ([]detect.Instance, error) {
	return f.instances, f.err
}

type fakeConfigSource struct {
	cfg config.Config
	err error
}

func (f *fakeConfigSource) Load() (config.Config, error) {
	return f.cfg, f.err
}

type fakeCapturer struct {
	mu       sync.Mutex
	contents map[string]string
	errs     map[string]error
}

func (f *fakeCapturer) Capture(ctx context.Context, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[target]; ok {
		return "", err
	}
	return f.contents[target], nil
}

func (f *fakeCapturer) set(target, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[target] = content
}

type fakeSender struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (f *fakeSender) SendEnter(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, target)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type loopFixture struct {
	loop     *Loop
	registry *fakeRegistry
	cfg      *fakeConfigSource
	capturer *fakeCapturer
	sender   *fakeSender
}

func newLoopFixture() *loopFixture {
	registry := &fakeRegistry{}
	cfgSource := &fakeConfigSource{cfg: config.Default()}
	capturer := &fakeCapturer{contents: map[string]string{}, errs: map[string]error{}}
	sender := &fakeSender{}

	loop := NewLoop(registry, cfgSource, capturer, NewDispatcher(sender))
	loop.pause = 0 // no post-send delay in tests

	return &loopFixture{loop: loop, registry: registry, cfg: cfgSource, capturer: capturer, sender: sender}
}

func claudeInstance(session, pane string) detect.Instance {
	return detect.Instance{Session: session, Pane: pane, Command: "claude", IsClaude: true}
}

func TestRunOnce_GlobalDisabledNeverDispatches(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = false
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count(), "global kill switch must block all dispatch")
}

func TestRunOnce_InstanceNotEnabledNeverDispatches(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = nil

	f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count(), "instances outside the enabled set must never be answered")
}

func TestRunOnce_NonClaudeInstanceSkipped(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{
		{Session: "main", Pane: "0.0", Command: "zsh", IsClaude: false},
	}
	f.capturer.set("main:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count(), "non-monitored panes must never be answered")
}

func TestRunOnce_DispatchesOnceForEnabledPrompt(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	f.loop.RunOnce(context.Background())
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "main:0.0", f.sender.sends[0])
}

func TestRunOnce_DebounceHoldsAcrossCycles(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.loop.RunOnce(ctx)
	}
	assert.Equal(t, 1, f.sender.count(), "unchanged prompt must be answered exactly once")
}

func TestRunOnce_NewPromptGetsNewResponse(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	ctx := context.Background()

	f.capturer.set("main:0.0", "Do you want to run ls?\n❯ 1. Yes")
	f.loop.RunOnce(ctx)
	f.loop.RunOnce(ctx)

	// Different prompt text: debounce keys on content, not on "ever answered"
	f.capturer.set("main:0.0", "Do you want to run rm -rf build?\n❯ 1. Yes")
	f.loop.RunOnce(ctx)

	assert.Equal(t, 2, f.sender.count())
}

func TestRunOnce_PromptClearedThenReshown(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	ctx := context.Background()

	f.capturer.set("main:0.0", promptText)
	f.loop.RunOnce(ctx)
	require.Equal(t, 1, f.sender.count())

	// Pane moves on, debounce record cleared
	f.capturer.set("main:0.0", "running tool...\n")
	f.loop.RunOnce(ctx)

	// The same text prompting again is a fresh prompt
	f.capturer.set("main:0.0", promptText)
	f.loop.RunOnce(ctx)
	assert.Equal(t, 2, f.sender.count())
}

func TestRunOnce_EmptyRegistryCompletesCleanly(t *testing.T) {
	f := newLoopFixture()
	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	interval := f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count())
	assert.Positive(t, interval)
}

func TestRunOnce_BackendUnavailableSkipsCycle(t *testing.T) {
	f := newLoopFixture()
	f.registry.err = tmux.ErrUnavailable
	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	interval := f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count())
	assert.Positive(t, interval, "unavailable backend skips the cycle, never crashes")
}

func TestRunOnce_CaptureFailureContained(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{
		claudeInstance("broken", "0.0"),
		claudeInstance("ok", "0.0"),
	}
	f.capturer.errs["broken:0.0"] = tmux.ErrCaptureTimeout
	f.capturer.set("ok:0.0", promptText)

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"broken:0.0", "ok:0.0"}

	f.loop.RunOnce(context.Background())
	require.Equal(t, 1, f.sender.count(), "one pane's failure must not abort the cycle")
	assert.Equal(t, "ok:0.0", f.sender.sends[0])
}

func TestRunOnce_DispatchFailureContained(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)
	f.sender.err = errors.New("send-keys exited 1")

	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	f.loop.RunOnce(context.Background())

	// Failed send must not poison the debounce: the next cycle retries
	f.sender.err = nil
	f.loop.RunOnce(context.Background())
	assert.Equal(t, 1, f.sender.count())
}

func TestRunOnce_ConfigErrorSkipsAllWork(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)
	f.cfg.err = config.ErrCorrupt

	interval := f.loop.RunOnce(context.Background())
	assert.Zero(t, f.sender.count(), "unreadable config must not be guessed at")
	assert.Positive(t, interval)
}

func TestRunOnce_DebouncePrunedForVanishedPanes(t *testing.T) {
	f := newLoopFixture()
	f.registry.instances = []detect.Instance{claudeInstance("main", "0.0")}
	f.capturer.set("main:0.0", promptText)
	f.cfg.cfg.GlobalEnabled = true
	f.cfg.cfg.EnabledInstances = []string{"main:0.0"}

	ctx := context.Background()
	f.loop.RunOnce(ctx)
	_, ok := f.loop.debounce.LastResponse("main:0.0")
	require.True(t, ok)

	// Pane disappears
	f.registry.instances = nil
	f.loop.RunOnce(ctx)
	_, ok = f.loop.debounce.LastResponse("main:0.0")
	assert.False(t, ok, "records for vanished panes must be pruned")
}

func TestLoop_StateTransitions(t *testing.T) {
	f := newLoopFixture()
	assert.Equal(t, StateStopped, f.loop.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	cancel()
	err := <-done
	require.NoError(t, err)
	assert.Equal(t, StateStopped, f.loop.State())
}
