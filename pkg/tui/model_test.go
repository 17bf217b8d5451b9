package tui

import (
	"context"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/collab/pkg/profiles"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
	"github.com/DeBrosOfficial/collab/pkg/session"
)

type fakeController struct {
	mu        sync.Mutex
	snap      session.Snapshot
	profiles  []profiles.Profile
	connected []string
	hosted    int
	builds    int
	connErr   error
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) StartHost(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosted++
	return nil
}

func (f *fakeController) ConnectTo(_ context.Context, ip string, port int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, formatAddress(ip, port))
	return f.connErr
}

func (f *fakeController) Disconnect(context.Context) error { return nil }

func (f *fakeController) RequestBuild() error {
	f.builds++
	return nil
}

func (f *fakeController) CancelBuild() error { return fmt.Errorf("no build in progress") }

func (f *fakeController) ConnectionProfiles(context.Context) ([]profiles.Profile, error) {
	return f.profiles, nil
}

func (f *fakeController) ToggleFavorite(_ context.Context, ip string, port int) (profiles.Profile, error) {
	return profiles.Profile{IP: ip, Port: port, IsFavorite: true}, nil
}

func (f *fakeController) RemoveConnectionProfile(context.Context, string, int) error { return nil }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// actionKeys start session operations; other keys only return cursor blink
// commands, which are not run.
var actionKeys = map[string]bool{"enter": true, "h": true, "d": true, "f": true, "r": true}

// press feeds keys and completes any session operation they start.
func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(key(k))
		m = next.(Model)
		if cmd == nil || !actionKeys[k] {
			continue
		}
		if done, ok := cmd().(actionDoneMsg); ok {
			next, _ = m.Update(done)
			m = next.(Model)
		}
	}
	return m
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		wantIP   string
		wantPort int
		wantErr  bool
	}{
		{"192.168.1.20", "192.168.1.20", 8081, false},
		{" 10.0.0.5:9000 ", "10.0.0.5", 9000, false},
		{"[::1]:7000", "::1", 7000, false},
		{"", "", 0, true},
		{"studio.local", "", 0, true},
		{"10.0.0.5:0", "", 0, true},
		{"10.0.0.5:http", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ip, port, err := ParseAddress(tt.input, 8081)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIP, ip)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestConnectScreenValidatesAndConnects(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, 8081)

	m = press(t, m, "c", "n", "o", "enter")
	assert.Equal(t, screenConnect, m.screen)
	require.Error(t, m.err)
	assert.Empty(t, ctrl.connected)

	m = press(t, m, "esc", "c", "1", "0", ".", "0", ".", "0", ".", "7", "enter")
	assert.Equal(t, screenStatus, m.screen)
	assert.Equal(t, []string{"10.0.0.7:8081"}, ctrl.connected)
	assert.NoError(t, m.err)
	assert.Equal(t, "Connected to 10.0.0.7:8081", m.notice)
	assert.Empty(t, m.busy)
}

func TestConnectFailureIsShown(t *testing.T) {
	ctrl := &fakeController{connErr: fmt.Errorf("connection refused")}
	m := press(t, NewModel(ctrl, 8081), "c", "1", ".", "2", ".", "3", ".", "4", "enter")
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "connection refused")
}

func TestProfilesScreenConnectsToSelection(t *testing.T) {
	ctrl := &fakeController{profiles: []profiles.Profile{
		{IP: "10.0.0.1", Port: 8081, Name: "studio", IsFavorite: true},
		{IP: "10.0.0.2", Port: 8081, Name: "laptop"},
	}}
	m := NewModel(ctrl, 8081)

	next, cmd := m.Update(key("p"))
	m = next.(Model)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	require.Len(t, m.profiles, 2)
	assert.Contains(t, m.View(), "★ ")

	m = press(t, m, "down", "enter")
	assert.Equal(t, []string{"10.0.0.2:8081"}, ctrl.connected)
}

func TestStatusKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := press(t, NewModel(ctrl, 8081), "h", "b")
	assert.Equal(t, 1, ctrl.hosted)
	assert.Equal(t, 1, ctrl.builds)

	m = press(t, m, "x")
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "no build in progress")
}

func TestViewShowsBannerAndRoster(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{
		Role:          session.RoleClient,
		Status:        session.StatusConnecting,
		HostAddr:      "10.0.0.1:8081",
		Banner:        session.BannerReconnecting,
		BannerVisible: true,
		Peers: []protocol.PeerInfo{
			{SocketID: "a", ClientName: "alice", IsHost: true},
			{SocketID: "b", ClientName: "bob"},
		},
		Locks: []protocol.LockInfo{{FieldID: "posts.title", ClientName: "alice"}},
		Build: protocol.BuildStatus{IsBuildInProgress: true, Stage: "render"},
	}}
	view := NewModel(ctrl, 8081).View()

	assert.Contains(t, view, session.BannerReconnecting)
	assert.Contains(t, view, "alice (host)")
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, "posts.title")
	assert.Contains(t, view, "running: render")
}

func TestRefreshPicksUpSnapshot(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, 8081)
	ctrl.snap = session.Snapshot{Role: session.RoleHost, Status: session.StatusConnected}

	next, _ := m.Update(m.refresh()())
	m = next.(Model)
	assert.Equal(t, session.RoleHost, m.snap.Role)
}
