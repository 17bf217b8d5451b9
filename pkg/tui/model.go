// Package tui is the terminal status view of a collaboration session.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeBrosOfficial/collab/pkg/profiles"
	"github.com/DeBrosOfficial/collab/pkg/session"
)

// RefreshInterval is how often the session snapshot is re-read.
const RefreshInterval = 500 * time.Millisecond

// Controller is the session surface the view drives. *session.Negotiator
// implements it.
type Controller interface {
	Snapshot() session.Snapshot
	StartHost(ctx context.Context) error
	ConnectTo(ctx context.Context, ip string, port int, name string) error
	Disconnect(ctx context.Context) error
	RequestBuild() error
	CancelBuild() error
	ConnectionProfiles(ctx context.Context) ([]profiles.Profile, error)
	ToggleFavorite(ctx context.Context, ip string, port int) (profiles.Profile, error)
	RemoveConnectionProfile(ctx context.Context, ip string, port int) error
}

type screen int

const (
	screenStatus screen = iota
	screenConnect
	screenProfiles
)

// Model is the bubbletea model for the session view.
type Model struct {
	ctrl        Controller
	defaultPort int

	screen    screen
	snap      session.Snapshot
	profiles  []profiles.Profile
	cursor    int
	textInput textinput.Model
	spinner   spinner.Model
	busy      string
	err       error
	notice    string
	width     int
	height    int
}

type tickMsg time.Time

type snapshotMsg session.Snapshot

type profilesMsg struct {
	list []profiles.Profile
	err  error
}

// actionDoneMsg reports the end of a blocking session operation.
type actionDoneMsg struct {
	notice string
	err    error
}

// NewModel creates the view. defaultPort is used for addresses typed
// without a port.
func NewModel(ctrl Controller, defaultPort int) Model {
	ti := textinput.New()
	ti.CharLimit = 64
	ti.Width = 40
	ti.Placeholder = "192.168.1.20:8081"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = focusedStyle

	return Model{
		ctrl:        ctrl,
		defaultPort: defaultPort,
		textInput:   ti,
		spinner:     sp,
		snap:        ctrl.Snapshot(),
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg { return snapshotMsg(ctrl.Snapshot()) }
}

func (m Model) loadProfiles() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		list, err := ctrl.ConnectionProfiles(context.Background())
		return profilesMsg{list: list, err: err}
	}
}

// run performs op off the UI goroutine.
func (m *Model) run(label, notice string, op func(context.Context) error) tea.Cmd {
	m.busy = label
	m.err = nil
	m.notice = ""
	return func() tea.Msg {
		return actionDoneMsg{notice: notice, err: op(context.Background())}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, nil

	case profilesMsg:
		m.profiles = msg.list
		if msg.err != nil {
			m.err = msg.err
		}
		if m.cursor >= len(m.profiles) {
			m.cursor = max(len(m.profiles)-1, 0)
		}
		return m, nil

	case actionDoneMsg:
		m.busy = ""
		m.err = msg.err
		if msg.err == nil {
			m.notice = msg.notice
		}
		return m, tea.Batch(m.refresh(), m.loadProfiles())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.busy != "" {
			return m, nil
		}
		switch m.screen {
		case screenConnect:
			return m.updateConnect(msg)
		case screenProfiles:
			return m.updateProfiles(msg)
		default:
			return m.updateStatus(msg)
		}
	}
	return m, nil
}

func (m Model) updateStatus(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "c":
		m.screen = screenConnect
		m.err = nil
		m.textInput.SetValue("")
		cmd := m.textInput.Focus()
		return m, cmd
	case "p":
		m.screen = screenProfiles
		m.err = nil
		m.cursor = 0
		return m, m.loadProfiles()
	case "h":
		cmd := m.run("Starting host…", "Hosting session", m.ctrl.StartHost)
		return m, cmd
	case "d":
		cmd := m.run("Disconnecting…", "Disconnected", m.ctrl.Disconnect)
		return m, cmd
	case "b":
		m.err = m.ctrl.RequestBuild()
	case "x":
		m.err = m.ctrl.CancelBuild()
	}
	return m, nil
}

func (m Model) updateConnect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenStatus
		m.err = nil
		m.textInput.Blur()
		return m, nil
	case "enter":
		ip, port, err := ParseAddress(m.textInput.Value(), m.defaultPort)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.screen = screenStatus
		m.textInput.Blur()
		cmd := m.connect(ip, port, "")
		return m, cmd
	}
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m Model) updateProfiles(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.screen = screenStatus
		m.err = nil
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.profiles)-1 {
			m.cursor++
		}
	case "enter":
		if p, ok := m.selected(); ok {
			m.screen = screenStatus
			cmd := m.connect(p.IP, p.Port, p.Name)
			return m, cmd
		}
	case "f":
		if p, ok := m.selected(); ok {
			ctrl := m.ctrl
			cmd := m.run("Updating…", "", func(ctx context.Context) error {
				_, err := ctrl.ToggleFavorite(ctx, p.IP, p.Port)
				return err
			})
			return m, cmd
		}
	case "r":
		if p, ok := m.selected(); ok {
			ctrl := m.ctrl
			cmd := m.run("Removing…", "", func(ctx context.Context) error {
				return ctrl.RemoveConnectionProfile(ctx, p.IP, p.Port)
			})
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) connect(ip string, port int, name string) tea.Cmd {
	ctrl := m.ctrl
	addr := formatAddress(ip, port)
	return m.run("Connecting to "+addr+"…", "Connected to "+addr, func(ctx context.Context) error {
		return ctrl.ConnectTo(ctx, ip, port, name)
	})
}

func (m Model) selected() (profiles.Profile, bool) {
	if m.cursor < 0 || m.cursor >= len(m.profiles) {
		return profiles.Profile{}, false
	}
	return m.profiles[m.cursor], true
}
