package daemon

import (
	"testing"
	"time"

	"github.com/oseligman/claude-autoyes/internal/detect"
)

func newMatcher() *detect.PromptMatcher {
	return detect.CompilePromptPatterns(detect.DefaultPromptPatterns())
}

func TestDebounce_FirstPromptResponds(t *testing.T) {
	d := NewDebounce()
	m := newMatcher()

	if !d.ShouldRespond("main:0.0", "Do you want to continue? ❯ 1. Yes", m) {
		t.Error("first sighting of a prompt must respond")
	}
}

func TestDebounce_IdenticalSnapshotSuppressed(t *testing.T) {
	d := NewDebounce()
	m := newMatcher()
	content := "Do you want to continue? ❯ 1. Yes"

	d.MarkResponded("main:0.0", content, time.Now())

	if d.ShouldRespond("main:0.0", content, m) {
		t.Error("identical snapshot must not be answered twice")
	}
}

func TestDebounce_ChangedSnapshotResponds(t *testing.T) {
	d := NewDebounce()
	m := newMatcher()

	d.MarkResponded("main:0.0", "Do you want to run ls? ❯ 1. Yes", time.Now())

	if !d.ShouldRespond("main:0.0", "Do you want to run pwd? ❯ 1. Yes", m) {
		t.Error("a different prompt must get a fresh response")
	}
}

func TestDebounce_NonPromptClearsRecord(t *testing.T) {
	d := NewDebounce()
	m := newMatcher()
	content := "Do you want to continue? ❯ 1. Yes"

	d.MarkResponded("main:0.0", content, time.Now())

	// Pane moves past the prompt; record is cleared
	if d.ShouldRespond("main:0.0", "$ running...", m) {
		t.Error("non-prompt content must not respond")
	}
	if _, ok := d.LastResponse("main:0.0"); ok {
		t.Error("record must be cleared when the pane stops prompting")
	}

	// Same text reappearing is treated as a new prompt
	if !d.ShouldRespond("main:0.0", content, m) {
		t.Error("prompt reappearing after clearing must respond again")
	}
}

func TestDebounce_TargetsIndependent(t *testing.T) {
	d := NewDebounce()
	m := newMatcher()
	content := "Proceed? (y/n)"

	d.MarkResponded("a:0.0", content, time.Now())

	if !d.ShouldRespond("b:0.0", content, m) {
		t.Error("debounce is keyed per instance, not globally")
	}
}

func TestDebounce_Prune(t *testing.T) {
	d := NewDebounce()
	d.MarkResponded("live:0.0", "x", time.Now())
	d.MarkResponded("gone:0.0", "y", time.Now())

	d.Prune(map[string]bool{"live:0.0": true})

	if _, ok := d.LastResponse("live:0.0"); !ok {
		t.Error("active target must survive prune")
	}
	if _, ok := d.LastResponse("gone:0.0"); ok {
		t.Error("vanished target must be pruned")
	}
}
