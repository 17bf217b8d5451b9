package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/collab/pkg/tui"
)

// hostStatus mirrors the host's /v1/status document.
type hostStatus struct {
	Addr  string `json:"addr"`
	Peers []struct {
		SocketID   string    `json:"socket_id"`
		ClientName string    `json:"client_name"`
		IsHost     bool      `json:"is_host"`
		JoinedAt   time.Time `json:"joined_at"`
	} `json:"peers"`
	Locks int `json:"locks"`
	Build struct {
		InProgress    bool       `json:"in_progress"`
		Stage         string     `json:"stage"`
		LastBuildTime *time.Time `json:"last_build_time"`
		LastError     string     `json:"last_error"`
	} `json:"build"`
}

var statusCmd = &cobra.Command{
	Use:   "status [ip[:port]]",
	Short: "Show a host's session status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target := "127.0.0.1"
		if len(args) == 1 {
			target = args[0]
		}
		ip, port, err := tui.ParseAddress(target, cfg.Collaboration.SyncPort)
		if err != nil {
			return err
		}

		httpClient := &http.Client{Timeout: 10 * time.Second}
		resp, err := httpClient.Get(fmt.Sprintf("http://%s/v1/status", formatHostPort(ip, port)))
		if err != nil {
			return fmt.Errorf("failed to reach host: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("host returned %d: %s", resp.StatusCode, string(body))
		}

		var st hostStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return fmt.Errorf("failed to decode status: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Host:   %s\n", st.Addr)
		fmt.Fprintf(out, "Locks:  %d\n", st.Locks)
		switch {
		case st.Build.InProgress:
			fmt.Fprintf(out, "Build:  running (%s)\n", st.Build.Stage)
		case st.Build.LastBuildTime != nil:
			fmt.Fprintf(out, "Build:  last built %s\n", st.Build.LastBuildTime.Local().Format(time.RFC1123))
		default:
			fmt.Fprintln(out, "Build:  never built")
		}
		if st.Build.LastError != "" {
			fmt.Fprintf(out, "        last error: %s\n", st.Build.LastError)
		}

		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOCKET\tJOINED")
		for _, p := range st.Peers {
			name := p.ClientName
			if p.IsHost {
				name += " (host)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, p.SocketID, p.JoinedAt.Local().Format("15:04:05"))
		}
		return w.Flush()
	},
}
