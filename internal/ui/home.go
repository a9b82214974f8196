package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/daemon"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

const (
	// refreshInterval drives the periodic rescan while the TUI is open.
	refreshInterval = 2 * time.Second

	// scanTimeout bounds one pane scan.
	scanTimeout = 10 * time.Second
)

// Table column widths
const (
	colTarget  = 24
	colCommand = 16
	colClaude  = 8
	colState   = 8
)

type instanceLister interface {
	ListInstances(ctx context.Context) ([]detect.Instance, error)
}

type configStore interface {
	Load() (config.Config, error)
	Enable(target string) error
	Disable(target string) error
	EnableAll(targets []string) error
	DisableAll() error
	SetGlobal(enabled bool) error
	Path() string
}

type daemonManager interface {
	Status() (*daemon.DaemonState, error)
	Start() (*daemon.DaemonState, error)
	Stop() error
}

type instanceRow struct {
	target     string
	command    string
	claude     bool
	enabled    bool
	lastPrompt string // relative time of the last answered prompt, "-" if none
}

type (
	tickMsg          time.Time
	configChangedMsg struct{}
	actionMsg        struct{ err error }
)

type scanMsg struct {
	rows        []instanceRow
	cfg         config.Config
	daemonState *daemon.DaemonState
	err         error
}

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	EnableAll  key.Binding
	DisableAll key.Binding
	Global     key.Binding
	Daemon     key.Binding
	Refresh    key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:     key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "toggle")),
		EnableAll:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all on")),
		DisableAll: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "all off")),
		Global:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "global")),
		Daemon:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "daemon")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Home is the root TUI model: a live table of tmux panes with their Claude
// detection and auto-yes state, plus daemon and global-switch controls.
type Home struct {
	store    configStore
	lister   instanceLister
	manager  daemonManager
	watcher  *ConfigWatcher
	activity *daemon.ActivityStore

	keys        keyMap
	rows        []instanceRow
	cfg         config.Config
	daemonState *daemon.DaemonState
	cursor      int
	width       int
	height      int
	lastErr     string
	loaded      bool
}

// NewHome builds the root model from concrete collaborators.
func NewHome(store *config.Store, registry *detect.Registry, manager *daemon.Manager) *Home {
	h := &Home{
		store:   store,
		lister:  registry,
		manager: manager,
		watcher: NewConfigWatcher(store.Path()),
		keys:    defaultKeyMap(),
		cfg:     config.Default(),
	}
	if activity, err := daemon.DefaultActivityStore(); err == nil {
		h.activity = activity
	}
	return h
}

func (m *Home) Init() tea.Cmd {
	return tea.Batch(m.scanCmd(), m.tickCmd(), m.waitConfigCmd())
}

func (m *Home) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitConfigCmd blocks on the watcher channel; re-issued after each signal.
func (m *Home) waitConfigCmd() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	ch := m.watcher.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return configChangedMsg{}
	}
}

// scanCmd gathers everything the view needs in one shot, off the UI thread.
func (m *Home) scanCmd() tea.Cmd {
	store, lister, manager, activityStore := m.store, m.lister, m.manager, m.activity
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		cfg, err := store.Load()
		if err != nil {
			return scanMsg{err: err}
		}

		instances, err := lister.ListInstances(ctx)
		if err != nil {
			return scanMsg{cfg: cfg, err: err}
		}

		activity := daemon.Activity{}
		if activityStore != nil {
			if loaded, err := activityStore.Load(); err == nil {
				activity = loaded
			}
		}

		rows := make([]instanceRow, 0, len(instances))
		for _, inst := range instances {
			lastPrompt := "-"
			if at, ok := activity[inst.Target()]; ok {
				lastPrompt = sinceShort(at)
			}
			rows = append(rows, instanceRow{
				target:     inst.Target(),
				command:    inst.Command,
				claude:     inst.IsClaude,
				enabled:    cfg.InstanceEnabled(inst.Target()),
				lastPrompt: lastPrompt,
			})
		}

		state, err := manager.Status()
		if err != nil {
			return scanMsg{rows: rows, cfg: cfg, err: err}
		}
		return scanMsg{rows: rows, cfg: cfg, daemonState: state}
	}
}

func (m *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.scanCmd(), m.tickCmd())

	case configChangedMsg:
		return m, tea.Batch(m.scanCmd(), m.waitConfigCmd())

	case scanMsg:
		m.loaded = true
		if msg.err != nil {
			// Keep the previous table on a transient failure.
			m.lastErr = msg.err.Error()
			return m, nil
		}
		m.lastErr = ""
		m.rows = msg.rows
		m.cfg = msg.cfg
		m.daemonState = msg.daemonState
		if m.cursor >= len(m.rows) {
			m.cursor = max(0, len(m.rows)-1)
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, m.scanCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Home) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.watcher != nil {
			m.watcher.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		if m.cursor >= len(m.rows) {
			return m, nil
		}
		row := m.rows[m.cursor]
		return m, m.actionCmd(func() error {
			if row.enabled {
				return m.store.Disable(row.target)
			}
			return m.store.Enable(row.target)
		})

	case key.Matches(msg, m.keys.EnableAll):
		targets := make([]string, 0, len(m.rows))
		for _, row := range m.rows {
			if row.claude {
				targets = append(targets, row.target)
			}
		}
		if len(targets) == 0 {
			return m, nil
		}
		return m, m.actionCmd(func() error {
			return m.store.EnableAll(targets)
		})

	case key.Matches(msg, m.keys.DisableAll):
		return m, m.actionCmd(m.store.DisableAll)

	case key.Matches(msg, m.keys.Global):
		next := !m.cfg.GlobalEnabled
		return m, m.actionCmd(func() error {
			return m.store.SetGlobal(next)
		})

	case key.Matches(msg, m.keys.Daemon):
		running := m.daemonState != nil
		return m, m.actionCmd(func() error {
			if running {
				return m.manager.Stop()
			}
			_, err := m.manager.Start()
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return nil
			}
			return err
		})

	case key.Matches(msg, m.keys.Refresh):
		return m, m.scanCmd()
	}
	return m, nil
}

// actionCmd runs a mutation off the UI thread and reports its outcome.
func (m *Home) actionCmd(action func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{err: action()}
	}
}

func (m *Home) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("claude-autoyes"))
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString(helpStyle.Render("Scanning tmux panes..."))
		b.WriteString("\n")
	} else if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("No tmux panes found."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table())
	}

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.helpLine()))
	b.WriteString("\n")
	return b.String()
}

func (m *Home) statusLine() string {
	global := offStyle.Render("global OFF")
	if m.cfg.GlobalEnabled {
		global = onStyle.Render("global ON")
	}
	daemonPart := offStyle.Render("daemon stopped")
	if m.daemonState != nil {
		daemonPart = onStyle.Render(fmt.Sprintf("daemon running (pid %d)", m.daemonState.PID))
	}

	claudeCount := 0
	for _, row := range m.rows {
		if row.claude {
			claudeCount++
		}
	}
	counts := statusStyle.Render(fmt.Sprintf("%d pane(s), %d claude", len(m.rows), claudeCount))

	return global + "  " + daemonPart + "  " + counts
}

func (m *Home) table() string {
	var b strings.Builder

	b.WriteString("  ")
	b.WriteString(headerStyle.Render(
		padCell("TARGET", colTarget) + " " +
			padCell("COMMAND", colCommand) + " " +
			padCell("CLAUDE", colClaude) + " " +
			padCell("AUTO-YES", colState) + " LAST PROMPT"))
	b.WriteString("\n")

	for i, row := range m.rows {
		marker := "  "
		style := rowStyle
		if i == m.cursor {
			marker = "▸ "
			style = selectedStyle
		}

		claude := "-"
		if row.claude {
			claude = "yes"
		}
		line := padCell(row.target, colTarget) + " " +
			padCell(row.command, colCommand) + " " +
			padCell(claude, colClaude) + " "

		state := offStyle.Render(padCell("off", colState))
		if row.enabled {
			state = onStyle.Render(padCell("on", colState))
		}

		b.WriteString(marker + style.Render(line) + state + " " + helpStyle.Render(row.lastPrompt))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Home) helpLine() string {
	bindings := []key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.EnableAll,
		m.keys.DisableAll, m.keys.Global, m.keys.Daemon,
		m.keys.Refresh, m.keys.Quit,
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// sinceShort renders a compact relative timestamp for the table.
func sinceShort(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}

// padCell truncates and right-pads a cell to a fixed display width,
// counting wide runes correctly.
func padCell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// Run launches the TUI. When auto-lifecycle is configured, the daemon is
// started for the duration of the session and stopped on clean exit, but
// a daemon that was already running is left alone.
func Run(store *config.Store) error {
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	client := tmux.NewClient()
	if cfg.CaptureLines > 0 {
		client.CaptureLines = cfg.CaptureLines
	}
	registry := detect.NewRegistry(client)

	manager, err := daemon.NewManager()
	if err != nil {
		return err
	}

	autoStarted := false
	if cfg.Daemon.AutoLifecycle {
		switch _, err := manager.Start(); {
		case err == nil:
			autoStarted = true
		case errors.Is(err, daemon.ErrAlreadyRunning):
			// Already managed elsewhere; do not adopt it.
		default:
			uiLog.Warn("daemon_autostart_failed", slog.String("error", err.Error()))
		}
	}

	home := NewHome(store, registry, manager)
	p := tea.NewProgram(home, tea.WithAltScreen())
	_, runErr := p.Run()

	if autoStarted {
		if err := manager.Stop(); err != nil {
			uiLog.Warn("daemon_autostop_failed", slog.String("error", err.Error()))
		}
	}
	return runErr
}
