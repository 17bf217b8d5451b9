package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "collab",
	Short:         "Real-time collaboration for the site CMS",
	Long:          "Hosts or joins a LAN collaboration session: field locks, live edits and a shared site build.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		out := fmt.Sprintf("collab %s", version)
		if commit != "" {
			out += fmt.Sprintf(" (commit %s)", commit)
		}
		if date != "" {
			out += fmt.Sprintf(" built %s", date)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default ~/.sitecms/collab.yaml)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
