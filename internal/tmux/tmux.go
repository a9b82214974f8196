// Package tmux wraps the three tmux primitives the daemon depends on:
// enumerating panes, capturing visible pane text, and sending a keystroke.
// Any backend exposing these operations could substitute for it.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oseligman/claude-autoyes/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrUnavailable is returned when the tmux server is not running or the
// binary is missing. Callers should skip the cycle rather than crash.
var ErrUnavailable = errors.New("tmux unavailable")

// ErrCaptureTimeout is returned when Capture exceeds its timeout.
// Callers should treat this as a per-pane failure, not a backend outage.
var ErrCaptureTimeout = errors.New("capture-pane timed out")

const (
	// DefaultCaptureLines is how far back into scrollback Capture reaches.
	// Prompts render in the last few lines; 30 covers multi-line menus.
	DefaultCaptureLines = 30

	captureTimeout = 3 * time.Second
	sendTimeout    = 3 * time.Second
	listTimeout    = 3 * time.Second
)

// Pane identifies one tmux pane and the process it reports.
type Pane struct {
	Session string // session name
	Index   string // "window.pane", e.g. "0.1"
	Command string // #{pane_current_command}
	PID     int    // #{pane_pid}
}

// Target returns the tmux target string for this pane ("session:window.pane").
func (p Pane) Target() string {
	return p.Session + ":" + p.Index
}

// Client talks to tmux via subprocess. Capture calls are deduplicated with
// singleflight so concurrent callers (daemon cycle + TUI refresh) spawn one
// subprocess per pane.
type Client struct {
	// CaptureLines is the scrollback depth passed to capture-pane -S.
	CaptureLines int

	captureSf singleflight.Group
}

// NewClient returns a Client with default capture depth.
func NewClient() *Client {
	return &Client{CaptureLines: DefaultCaptureLines}
}

// IsAvailable checks that the tmux binary exists in PATH.
func IsAvailable() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return fmt.Errorf("%w: binary not found in PATH", ErrUnavailable)
	}
	return nil
}

// ListPanes enumerates every pane across all sessions in one subprocess,
// resolving the foreground command and pane PID in the same call.
// Returns ErrUnavailable when the tmux server is unreachable. A running
// server with zero matching panes yields an empty slice, not an error.
func (c *Client) ListPanes(ctx context.Context) ([]Pane, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", "list-panes", "-a", "-F",
		"#{session_name}:#{window_index}.#{pane_index}\t#{pane_current_command}\t#{pane_pid}")
	output, err := cmd.Output()
	if err != nil {
		// tmux exits non-zero both when the server isn't running and when
		// the binary is missing; either way the backend is unreachable.
		tmuxLog.Debug("list_panes_failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return parsePaneList(string(output)), nil
}

// parsePaneList parses list-panes -F output. Malformed lines are skipped:
// a pane that vanishes mid-enumeration must not fail the whole call.
func parsePaneList(output string) []Pane {
	var panes []Pane
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		target := parts[0]
		sep := strings.IndexByte(target, ':')
		if sep <= 0 || sep == len(target)-1 {
			continue
		}
		pid, _ := strconv.Atoi(strings.TrimSpace(parts[2]))
		panes = append(panes, Pane{
			Session: target[:sep],
			Index:   target[sep+1:],
			Command: parts[1],
			PID:     pid,
		})
	}
	return panes
}

// HasSession reports whether the named session still exists.
func (c *Client) HasSession(ctx context.Context, name string) bool {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", name)
	return cmd.Run() == nil
}

// Capture returns the visible text of a pane plus CaptureLines of scrollback.
// -J joins wrapped lines so content hashes stay stable across resizes.
// Concurrent captures of the same pane are collapsed via singleflight.
func (c *Client) Capture(ctx context.Context, target string) (string, error) {
	v, err, _ := c.captureSf.Do(target, func() (interface{}, error) {
		lines := c.CaptureLines
		if lines <= 0 {
			lines = DefaultCaptureLines
		}

		ctx, cancel := context.WithTimeout(ctx, captureTimeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-p", "-J",
			"-t", target, "-S", fmt.Sprintf("-%d", lines))
		output, err := cmd.Output()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", ErrCaptureTimeout
			}
			return "", fmt.Errorf("capture-pane %s: %w", target, err)
		}
		return string(output), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SendEnter sends a single Enter keystroke to the pane. One attempt, no
// retry; the caller decides what a failed send means.
func (c *Client) SendEnter(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", "send-keys", "-t", target, "Enter")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send-keys %s: %w", target, err)
	}
	return nil
}

// ProcessArgs returns the full command line of a PID via ps. Used by the
// detector to distinguish a real Claude binary from lookalike node processes.
func ProcessArgs(ctx context.Context, pid int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "args=")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ps -p %d: %w", pid, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ChildCommands returns the comm names of direct children of a PID.
// Claude frequently runs as a child of the shell tmux reports, so the
// detector walks one level down.
func ChildCommands(ctx context.Context, pid int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ps", "-eo", "pid,ppid,args")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ps -eo: %w", err)
	}
	return parseChildCommands(string(output), pid), nil
}

// parseChildCommands extracts the command lines of rows whose ppid matches.
func parseChildCommands(psOutput string, parent int) []string {
	var children []string
	lines := strings.Split(strings.TrimSpace(psOutput), "\n")
	if len(lines) <= 1 {
		return nil
	}
	for _, line := range lines[1:] { // skip header
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil || ppid != parent {
			continue
		}
		children = append(children, strings.Join(fields[2:], " "))
	}
	return children
}
