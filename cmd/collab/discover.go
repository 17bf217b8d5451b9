package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/collab/pkg/discovery"
	"github.com/DeBrosOfficial/collab/pkg/logging"
)

var discoverWait time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List hosts announcing on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wait := discoverWait
		if wait <= 0 {
			// Announcements repeat every interval; wait for at least one.
			wait = cfg.Discovery.AnnounceInterval + time.Second
		}

		beacon := discovery.NewBeacon(cfg.Discovery, logging.NewNopLogger())
		defer beacon.Close()
		if err := beacon.Listen(cmd.Context()); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Listening on UDP %d for %s…\n", cfg.Discovery.Port, wait)
		select {
		case <-time.After(wait):
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}

		servers := beacon.Servers()
		if len(servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No hosts found")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tHOSTNAME\tINSTANCE\tLAST SEEN")
		for _, s := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Address(), s.Hostname, s.InstanceID, s.LastSeen.Format("15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", 0, "How long to listen (default one announce interval)")
}
