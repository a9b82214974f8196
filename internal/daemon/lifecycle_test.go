package daemon

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// managerFixture builds a Manager with temp paths and controllable process
// behavior. The fake spawn emulates the child writing its own record.
type managerFixture struct {
	manager *Manager

	mu     sync.Mutex
	alive  map[int]bool
	killed []int
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	dir := t.TempDir()

	f := &managerFixture{alive: map[int]bool{}}
	f.manager = &Manager{
		recordPath: filepath.Join(dir, RecordFileName),
		logPath:    filepath.Join(dir, LogFileName),
		procAlive: func(pid int) bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.alive[pid]
		},
		kill: func(pid int, sig syscall.Signal) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.killed = append(f.killed, pid)
			// Emulate a cooperative daemon: SIGTERM makes it exit.
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				delete(f.alive, pid)
			}
			return nil
		},
	}
	f.manager.spawn = func() (int, error) {
		pid := 4242
		f.mu.Lock()
		f.alive[pid] = true
		f.mu.Unlock()
		// Child writes its own liveness record on startup.
		state := DaemonState{PID: pid, StartedAt: time.Now(), LogPath: f.manager.logPath}
		require.NoError(t, f.manager.writeRecord(state))
		return pid, nil
	}
	return f
}

func (f *managerFixture) markAlive(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
}

func TestStatus_NoRecordMeansStopped(t *testing.T) {
	f := newManagerFixture(t)

	state, err := f.manager.Status()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStatus_StaleRecordSelfHeals(t *testing.T) {
	f := newManagerFixture(t)

	// Record for a pid that is no longer alive
	stale := DaemonState{PID: 999, StartedAt: time.Now(), LogPath: f.manager.logPath}
	require.NoError(t, f.manager.writeRecord(stale))

	state, err := f.manager.Status()
	require.NoError(t, err)
	assert.Nil(t, state, "stale record must read as stopped, not as an error")

	_, statErr := os.Stat(f.manager.RecordPath())
	assert.True(t, os.IsNotExist(statErr), "stale record must be cleared")
}

func TestStatus_MalformedRecordSelfHeals(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, os.WriteFile(f.manager.RecordPath(), []byte("not json"), 0o600))

	state, err := f.manager.Status()
	require.NoError(t, err)
	assert.Nil(t, state)

	_, statErr := os.Stat(f.manager.RecordPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStart_SpawnsAndConfirms(t *testing.T) {
	f := newManagerFixture(t)

	state, err := f.manager.Start()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 4242, state.PID)

	// Record is on disk and readable
	data, err := os.ReadFile(f.manager.RecordPath())
	require.NoError(t, err)
	var onDisk DaemonState
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 4242, onDisk.PID)
}

func TestStart_SecondCallFailsAlreadyRunning(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Start()
	require.NoError(t, err)

	_, err = f.manager.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning), "got %v", err)

	// The original daemon is unaffected
	state, err := f.manager.Status()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 4242, state.PID)
}

func TestStop_SignalsAndClearsRecord(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.Start()
	require.NoError(t, err)

	require.NoError(t, f.manager.Stop())

	f.mu.Lock()
	killed := len(f.killed)
	f.mu.Unlock()
	assert.Equal(t, 1, killed, "expected one SIGTERM")

	state, err := f.manager.Status()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStop_AlreadyStoppedIsNoOp(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Stop())
	require.NoError(t, f.manager.Stop())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.killed, "stopping a stopped daemon must not signal anything")
}

func TestRestart_StopsThenStarts(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.Start()
	require.NoError(t, err)

	state, err := f.manager.Restart()
	require.NoError(t, err)
	require.NotNil(t, state)

	f.mu.Lock()
	killed := len(f.killed)
	f.mu.Unlock()
	assert.Equal(t, 1, killed, "restart must stop the old daemon")
}

func TestRestart_FromStoppedJustStarts(t *testing.T) {
	f := newManagerFixture(t)

	state, err := f.manager.Restart()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 4242, state.PID)
}

func TestWriteOwnRecord_RoundTrip(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.WriteOwnRecord())
	f.markAlive(os.Getpid())

	state, err := f.manager.Status()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, os.Getpid(), state.PID)
	assert.Equal(t, f.manager.LogPath(), state.LogPath)
	assert.WithinDuration(t, time.Now(), state.StartedAt, 5*time.Second)

	f.manager.RemoveOwnRecord()
	state, err = f.manager.Status()
	require.NoError(t, err)
	assert.Nil(t, state)
}
