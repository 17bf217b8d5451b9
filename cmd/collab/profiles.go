package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/profiles"
	"github.com/DeBrosOfficial/collab/pkg/tui"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage remembered hosts",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered hosts, favorites first",
	Args:  cobra.NoArgs,
	RunE: withProfiles(func(cmd *cobra.Command, m *profiles.Manager, _ []string, _ int) error {
		list, err := m.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No remembered hosts")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tADDRESS\tNAME\tLAST CONNECTED")
		for _, p := range list {
			star := ""
			if p.IsFavorite {
				star = "★"
			}
			last := p.LastConnected.Local().Format("2006-01-02 15:04")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", star, formatHostPort(p.IP, p.Port), p.Name, last)
		}
		return w.Flush()
	}),
}

var profilesFavoriteCmd = &cobra.Command{
	Use:   "favorite <ip[:port]>",
	Short: "Toggle a host as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: withProfiles(func(cmd *cobra.Command, m *profiles.Manager, args []string, defaultPort int) error {
		ip, port, err := tui.ParseAddress(args[0], defaultPort)
		if err != nil {
			return err
		}
		p, err := m.ToggleFavorite(cmd.Context(), ip, port)
		if err != nil {
			return err
		}
		if p.IsFavorite {
			fmt.Fprintf(cmd.OutOrStdout(), "★ %s is now a favorite\n", formatHostPort(ip, port))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer a favorite\n", formatHostPort(ip, port))
		}
		return nil
	}),
}

var profilesRemoveCmd = &cobra.Command{
	Use:   "remove <ip[:port]>",
	Short: "Forget a host",
	Args:  cobra.ExactArgs(1),
	RunE: withProfiles(func(cmd *cobra.Command, m *profiles.Manager, args []string, defaultPort int) error {
		ip, port, err := tui.ParseAddress(args[0], defaultPort)
		if err != nil {
			return err
		}
		if err := m.Remove(cmd.Context(), ip, port); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", formatHostPort(ip, port))
		return nil
	}),
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesFavoriteCmd)
	profilesCmd.AddCommand(profilesRemoveCmd)
}

// withProfiles opens the local store around fn.
func withProfiles(fn func(cmd *cobra.Command, m *profiles.Manager, args []string, defaultPort int) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, err := openStore(cfg, logging.NewNopLogger())
		if err != nil {
			return err
		}
		defer kv.Close()
		return fn(cmd, profiles.NewManager(kv), args, cfg.Collaboration.SyncPort)
	}
}
