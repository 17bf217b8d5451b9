package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/DeBrosOfficial/collab/pkg/session"
)

// RenderBanner styles the connection banner for status.
func RenderBanner(status session.Status, text string) string {
	bg := "#888888"
	switch status {
	case session.StatusConnecting:
		bg = "#FFD166"
	case session.StatusError:
		bg = "#FF6B6B"
	}
	return bannerStyle.Background(lipgloss.Color(bg)).Render(text)
}

// View renders the current screen.
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Collaboration") + "\n")
	if m.snap.BannerVisible {
		s.WriteString(RenderBanner(m.snap.Status, m.snap.Banner) + "\n\n")
	}

	switch m.screen {
	case screenConnect:
		s.WriteString(m.viewConnect())
	case screenProfiles:
		s.WriteString(m.viewProfiles())
	default:
		s.WriteString(m.viewStatus())
	}

	if m.busy != "" {
		s.WriteString("\n" + m.spinner.View() + " " + m.busy + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render("✗ "+m.err.Error()) + "\n")
	} else if m.notice != "" {
		s.WriteString("\n" + successStyle.Render("✓ "+m.notice) + "\n")
	}
	return s.String()
}

func (m Model) viewStatus() string {
	var s strings.Builder
	snap := m.snap

	role := string(snap.Role)
	if snap.HostAddr != "" {
		role += " @ " + snap.HostAddr
	}
	s.WriteString(fmt.Sprintf("Role:   %s\n", focusedStyle.Render(role)))
	s.WriteString(fmt.Sprintf("Status: %s\n", statusText(snap.Status, snap.Reason)))

	var peers strings.Builder
	if len(snap.Peers) == 0 {
		peers.WriteString(blurredStyle.Render("no one connected"))
	}
	for i, p := range snap.Peers {
		if i > 0 {
			peers.WriteString("\n")
		}
		name := p.ClientName
		if p.IsHost {
			name += " (host)"
		}
		peers.WriteString("• " + name)
	}
	s.WriteString("\n" + subtitleStyle.Render("Connected") + "\n")
	s.WriteString(boxStyle.Render(peers.String()) + "\n")

	if len(snap.Locks) > 0 {
		s.WriteString("\n" + subtitleStyle.Render("Being edited") + "\n")
		for _, l := range snap.Locks {
			s.WriteString(fmt.Sprintf("  %s  %s\n", l.FieldID, blurredStyle.Render(l.ClientName)))
		}
	}

	s.WriteString("\n" + subtitleStyle.Render("Build") + "\n")
	switch {
	case snap.Build.IsBuildInProgress:
		stage := snap.Build.Stage
		if stage == "" {
			stage = "starting"
		}
		s.WriteString("  " + warnStyle.Render("running: "+stage) + "\n")
	case snap.Build.LastBuildTime > 0:
		at := time.UnixMilli(snap.Build.LastBuildTime).Format("15:04:05")
		s.WriteString("  last built at " + at + "\n")
	default:
		s.WriteString("  " + blurredStyle.Render("never built") + "\n")
	}

	if len(snap.Servers) > 0 && snap.Role != session.RoleHost {
		s.WriteString("\n" + subtitleStyle.Render("Hosts on this network") + "\n")
		for _, srv := range snap.Servers {
			s.WriteString(fmt.Sprintf("  %s  %s\n", srv.Address(), blurredStyle.Render(srv.Hostname)))
		}
	}

	s.WriteString(helpStyle.Render("c connect • p profiles • h host • d disconnect • b build • x cancel build • q quit"))
	return s.String()
}

func statusText(status session.Status, reason string) string {
	switch status {
	case session.StatusConnected:
		return successStyle.Render("connected")
	case session.StatusConnecting:
		return warnStyle.Render("connecting")
	case session.StatusError:
		return errorStyle.Render("error: " + reason)
	default:
		return blurredStyle.Render(string(status))
	}
}

func (m Model) viewConnect() string {
	var s strings.Builder
	s.WriteString("Enter the host address:\n")
	s.WriteString(subtitleStyle.Render(fmt.Sprintf("The port defaults to %d", m.defaultPort)) + "\n\n")
	s.WriteString(m.textInput.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Enter to connect • Esc to go back"))
	return s.String()
}

func (m Model) viewProfiles() string {
	var s strings.Builder
	s.WriteString("Recent hosts:\n\n")
	if len(m.profiles) == 0 {
		s.WriteString(blurredStyle.Render("  none yet") + "\n")
	}
	for i, p := range m.profiles {
		star := "  "
		if p.IsFavorite {
			star = "★ "
		}
		line := fmt.Sprintf("%s%-24s %s", star, formatAddress(p.IP, p.Port), p.Name)
		if i == m.cursor {
			s.WriteString(cursorStyle.Render("→ ") + focusedStyle.Render(line) + "\n")
		} else {
			s.WriteString("  " + blurredStyle.Render(line) + "\n")
		}
	}
	s.WriteString(helpStyle.Render("↑/↓ to select • Enter to connect • f favorite • r remove • Esc to go back"))
	return s.String()
}
