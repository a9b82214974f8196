package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/logging"
)

var lifecycleLog = logging.ForComponent(logging.CompDaemon)

// ErrAlreadyRunning is returned by Start when a live daemon already holds
// the liveness record.
var ErrAlreadyRunning = errors.New("daemon already running")

// ErrNotRunning marks lifecycle operations that require a live daemon.
var ErrNotRunning = errors.New("daemon not running")

// Record and log file names under the app directory.
const (
	RecordFileName = "daemon.json"
	LogFileName    = "daemon.log"
)

const (
	// startConfirmTimeout bounds how long Start waits for the spawned loop
	// to write its liveness record and come alive.
	startConfirmTimeout = 5 * time.Second

	// stopWaitTimeout bounds how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	stopWaitTimeout = 5 * time.Second

	livenessPollInterval = 100 * time.Millisecond
)

// DaemonState is the on-disk liveness record. It doubles as the mutual
// exclusion lock: a record whose pid is alive means a daemon owns the system.
type DaemonState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	LogPath   string    `json:"log_path"`
}

// Manager owns the daemon process lifecycle: at most one loop runs
// system-wide, callers get start/stop/status/restart. It neither knows nor
// cares who calls it; the TUI's auto-lifecycle goes through the same API.
type Manager struct {
	recordPath string
	logPath    string

	// seams for tests
	spawn     func() (int, error)
	procAlive func(pid int) bool
	kill      func(pid int, sig syscall.Signal) error

	mu sync.Mutex // serializes start/stop/restart within this process
}

// NewManager returns a Manager with record and log under ~/.claude-autoyes.
func NewManager() (*Manager, error) {
	dir, err := config.AppDir()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		recordPath: filepath.Join(dir, RecordFileName),
		logPath:    filepath.Join(dir, LogFileName),
		procAlive:  daemonProcessAlive,
		kill:       syscall.Kill,
	}
	m.spawn = m.spawnDetached
	return m, nil
}

// RecordPath returns the liveness record location.
func (m *Manager) RecordPath() string { return m.recordPath }

// LogPath returns the daemon log location.
func (m *Manager) LogPath() string { return m.logPath }

// Status reads the liveness record. A record whose pid is no longer alive is
// stale: it is cleared and the daemon reported as stopped, rather than
// surfacing a stuck state. Returns nil when not running.
func (m *Manager) Status() (*DaemonState, error) {
	state, err := m.readRecord()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		// Unreadable record: treat as stale and self-heal.
		lifecycleLog.Warn("liveness_record_unreadable", slog.String("error", err.Error()))
		m.removeRecord()
		return nil, nil
	}

	if !m.procAlive(state.PID) {
		lifecycleLog.Info("stale_liveness_record_cleared", slog.Int("pid", state.PID))
		m.removeRecord()
		return nil, nil
	}
	return state, nil
}

// Start spawns the daemon loop process and returns once it is confirmed
// running, not merely spawned. Fails with ErrAlreadyRunning when a live
// daemon holds the record.
func (m *Manager) Start() (*DaemonState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() (*DaemonState, error) {
	if state, err := m.Status(); err != nil {
		return nil, err
	} else if state != nil {
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, state.PID)
	}

	pid, err := m.spawn()
	if err != nil {
		return nil, fmt.Errorf("failed to spawn daemon: %w", err)
	}

	// The child writes its own record on startup; wait until it appears
	// with a live pid.
	deadline := time.Now().Add(startConfirmTimeout)
	for time.Now().Before(deadline) {
		state, err := m.readRecord()
		if err == nil && state.PID == pid && m.procAlive(state.PID) {
			return state, nil
		}
		time.Sleep(livenessPollInterval)
	}
	return nil, fmt.Errorf("daemon spawned (pid %d) but did not confirm startup", pid)
}

// Stop signals the running loop and waits bounded time for it to exit, then
// removes the record. Stopping an already-stopped daemon is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	state, err := m.Status()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	if err := m.kill(state.PID, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", state.PID, err)
	}

	deadline := time.Now().Add(stopWaitTimeout)
	for time.Now().Before(deadline) {
		if !m.procAlive(state.PID) {
			m.removeRecord()
			return nil
		}
		time.Sleep(livenessPollInterval)
	}

	// Still alive after the grace period; force it down.
	lifecycleLog.Warn("daemon_sigkill_escalation", slog.Int("pid", state.PID))
	_ = m.kill(state.PID, syscall.SIGKILL)
	m.removeRecord()
	return nil
}

// Restart stops then starts, atomically from this caller's point of view.
func (m *Manager) Restart() (*DaemonState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stopLocked(); err != nil {
		return nil, err
	}
	return m.startLocked()
}

// WriteOwnRecord is called by the daemon-loop process itself once it is up.
func (m *Manager) WriteOwnRecord() error {
	state := DaemonState{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		LogPath:   m.logPath,
	}
	return m.writeRecord(state)
}

// RemoveOwnRecord is called by the daemon-loop process on every exit path.
func (m *Manager) RemoveOwnRecord() {
	m.removeRecord()
}

func (m *Manager) readRecord() (*DaemonState, error) {
	data, err := os.ReadFile(m.recordPath)
	if err != nil {
		return nil, err
	}
	var state DaemonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("malformed liveness record: %w", err)
	}
	if state.PID <= 0 {
		return nil, fmt.Errorf("malformed liveness record: pid %d", state.PID)
	}
	return &state, nil
}

func (m *Manager) writeRecord(state DaemonState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := m.recordPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write liveness record: %w", err)
	}
	if err := os.Rename(tmpPath, m.recordPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize liveness record: %w", err)
	}
	return nil
}

func (m *Manager) removeRecord() {
	if err := os.Remove(m.recordPath); err != nil && !os.IsNotExist(err) {
		lifecycleLog.Warn("liveness_record_remove_failed", slog.String("error", err.Error()))
	}
}

// spawnDetached re-executes this binary as `daemon run` in its own session,
// with stdout/stderr appended to the daemon log so early startup failures
// are not lost.
func (m *Manager) spawnDetached() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	logFile, err := os.OpenFile(m.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "daemon", "run")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Detach; the lifecycle manager tracks the child via the liveness
	// record, not via wait status.
	if err := cmd.Process.Release(); err != nil {
		return pid, nil
	}
	return pid, nil
}

// daemonProcessAlive verifies both that the pid exists and that it still
// names our binary: pids get recycled, and answering "running" for a
// stranger's process would wedge start/stop forever.
func daemonProcessAlive(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil {
		// Can't verify identity; assume alive rather than risk starting
		// a second daemon.
		return true
	}
	return strings.Contains(name, "claude-autoyes")
}
