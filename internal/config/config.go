// Package config persists the auto-yes opt-in state: the global kill switch
// and the set of enabled instances. It is the single source of truth for
// "should this pane be auto-answered" and is shared by the CLI, the TUI and
// the daemon.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// ErrCorrupt is returned when the config file exists but cannot be parsed.
// The file is never overwritten in that state; the user fixes it by hand.
var ErrCorrupt = errors.New("config file is corrupt")

// AppDirName is the per-user state directory under $HOME.
const AppDirName = ".claude-autoyes"

// FileName is the config file inside the app directory.
const FileName = "config.toml"

const (
	// DefaultPollIntervalSecs is how often the daemon scans enabled panes.
	DefaultPollIntervalSecs = 3

	// DefaultCaptureLines is the scrollback depth captured per pane.
	DefaultCaptureLines = 30
)

// Config is the persisted record. The file is plain TOML so it stays
// diffable and hand-editable between runs.
type Config struct {
	// GlobalEnabled is the master kill switch. No keystroke is ever sent
	// while it is false, regardless of per-instance state.
	GlobalEnabled bool `toml:"global_enabled"`

	// EnabledInstances holds "session:window.pane" targets opted into
	// auto-yes. Kept sorted so saves produce stable diffs.
	EnabledInstances []string `toml:"enabled_instances"`

	// PollIntervalSecs is the daemon's fixed cycle interval in seconds.
	PollIntervalSecs int `toml:"poll_interval_secs"`

	// CaptureLines is how many scrollback lines to inspect per pane.
	CaptureLines int `toml:"capture_lines"`

	// Theme sets the TUI color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Daemon holds daemon lifecycle preferences.
	Daemon DaemonSettings `toml:"daemon"`

	// Logs holds log rotation settings for the daemon log.
	Logs LogSettings `toml:"logs"`
}

// DaemonSettings defines daemon lifecycle preferences.
type DaemonSettings struct {
	// AutoLifecycle makes the TUI start the daemon on launch and stop it
	// on clean exit. The daemon can always be managed independently via
	// `claude-autoyes daemon start|stop`.
	AutoLifecycle bool `toml:"auto_lifecycle"`
}

// LogSettings defines rotation for the daemon log file.
type LogSettings struct {
	// MaxSizeMB is the max size in MB before rotation (default: 10)
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is rotated files to keep (default: 3)
	MaxBackups int `toml:"max_backups"`

	// MaxAgeDays is days to keep rotated files (default: 14)
	MaxAgeDays int `toml:"max_age_days"`

	// Compress rotated files (default: false)
	Compress bool `toml:"compress"`
}

// Default returns the config used when no file exists yet: auto-yes is off
// globally and no instance is enabled.
func Default() Config {
	return Config{
		GlobalEnabled:    false,
		EnabledInstances: nil,
		PollIntervalSecs: DefaultPollIntervalSecs,
		CaptureLines:     DefaultCaptureLines,
		Theme:            "dark",
	}
}

// IsEnabled reports whether a target is permitted to receive responses:
// the global switch AND the per-instance opt-in must both hold.
func (c *Config) IsEnabled(target string) bool {
	if !c.GlobalEnabled {
		return false
	}
	return c.contains(target)
}

// InstanceEnabled reports the per-instance opt-in alone, ignoring the
// global switch. Display surfaces use this so a toggled-on pane still
// reads as "on" while the kill switch holds everything back.
func (c *Config) InstanceEnabled(target string) bool {
	return c.contains(target)
}

func (c *Config) contains(target string) bool {
	for _, t := range c.EnabledInstances {
		if t == target {
			return true
		}
	}
	return false
}

// Store reads and writes the config file. Every mutation is a complete
// load-modify-atomic-save; two external writers racing can lose an update
// (last writer wins) but can never corrupt the file.
type Store struct {
	path string
}

// DefaultPath returns ~/.claude-autoyes/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, AppDirName, FileName), nil
}

// AppDir returns ~/.claude-autoyes, creating it if needed.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, AppDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// NewStore returns a Store bound to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewDefaultStore returns a Store at the fixed user-config path.
func NewDefaultStore() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewStore(path), nil
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file. A missing file yields Default(); an
// unparseable file yields ErrCorrupt and never silently resets user data.
func (s *Store) Load() (Config, error) {
	cfg := Default()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(s.path, &cfg); err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if cfg.PollIntervalSecs <= 0 {
		cfg.PollIntervalSecs = DefaultPollIntervalSecs
	}
	if cfg.CaptureLines <= 0 {
		cfg.CaptureLines = DefaultCaptureLines
	}
	sort.Strings(cfg.EnabledInstances)
	return cfg, nil
}

// Save writes the config atomically: encode to memory, write a temp file,
// fsync, then rename over the destination. Readers never observe a partial
// file.
func (s *Store) Save(cfg Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	sort.Strings(cfg.EnabledInstances)

	var buf bytes.Buffer
	buf.WriteString("# claude-autoyes configuration\n")
	buf.WriteString("# Edit by hand or via the CLI/TUI; instances are \"session:window.pane\"\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	// A missed fsync only risks losing the very last write on power
	// failure; the rename below stays atomic either way.
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Enable adds a target to the enabled set.
func (s *Store) Enable(target string) error {
	return s.update(func(cfg *Config) {
		if !cfg.contains(target) {
			cfg.EnabledInstances = append(cfg.EnabledInstances, target)
		}
	})
}

// Disable removes a target from the enabled set. Disabling a target that was
// never enabled is a no-op, leaving the config behaviorally identical.
func (s *Store) Disable(target string) error {
	return s.update(func(cfg *Config) {
		kept := cfg.EnabledInstances[:0]
		for _, t := range cfg.EnabledInstances {
			if t != target {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			cfg.EnabledInstances = nil
		} else {
			cfg.EnabledInstances = kept
		}
	})
}

// EnableAll adds every given target to the enabled set.
func (s *Store) EnableAll(targets []string) error {
	return s.update(func(cfg *Config) {
		for _, target := range targets {
			if !cfg.contains(target) {
				cfg.EnabledInstances = append(cfg.EnabledInstances, target)
			}
		}
	})
}

// DisableAll clears the enabled set.
func (s *Store) DisableAll() error {
	return s.update(func(cfg *Config) {
		cfg.EnabledInstances = nil
	})
}

// SetGlobal flips the master kill switch.
func (s *Store) SetGlobal(enabled bool) error {
	return s.update(func(cfg *Config) {
		cfg.GlobalEnabled = enabled
	})
}

// update is the shared read-modify-write: each call is atomic end to end
// from this process's perspective.
func (s *Store) update(mutate func(*Config)) error {
	cfg, err := s.Load()
	if err != nil {
		return err
	}
	mutate(&cfg)
	return s.Save(cfg)
}
