package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/client"
	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/tui"
)

type startFlags struct {
	name     string
	dataDir  string
	port     int
	window   time.Duration
	noJoin   bool
	forceHst bool
	connect  string
	useTUI   bool
	logLevel string
}

var startOpts startFlags

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Find or become the collaboration host",
	Long: `Listens for a host on the local network and joins it, or becomes the
host when none answers within the discovery window.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, startOpts)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <ip[:port]>",
	Short: "Join a host by address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := startOpts
		opts.connect = args[0]
		return runSession(cmd, opts)
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, connectCmd} {
		f := c.Flags()
		f.StringVar(&startOpts.name, "name", "", "Display name shown to other peers")
		f.StringVar(&startOpts.dataDir, "data", "", "Data directory for the local store")
		f.IntVar(&startOpts.port, "port", 0, "Sync server port")
		f.BoolVar(&startOpts.useTUI, "tui", false, "Show the interactive status view")
		f.StringVar(&startOpts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	}
	f := startCmd.Flags()
	f.DurationVar(&startOpts.window, "window", 0, "How long to listen for a host before hosting")
	f.BoolVar(&startOpts.noJoin, "no-auto-join", false, "Do not join a discovered host automatically")
	f.BoolVar(&startOpts.forceHst, "host", false, "Become the host without negotiating")
	f.StringVar(&startOpts.connect, "connect", "", "Join the host at ip[:port] without negotiating")
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config, opts startFlags) {
	if opts.name != "" {
		cfg.Node.Name = opts.name
	}
	if opts.dataDir != "" {
		cfg.Node.DataDir = opts.dataDir
	}
	if opts.port != 0 {
		cfg.Collaboration.SyncPort = opts.port
	}
	if opts.window > 0 {
		cfg.Discovery.Window = opts.window
	}
	if opts.noJoin {
		cfg.Collaboration.AutoJoin = false
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
}

func runSession(cmd *cobra.Command, opts startFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	if err := validate(cfg); err != nil {
		return err
	}

	if opts.useTUI && cfg.Logging.OutputFile == "" {
		// The status view owns the terminal.
		dir, err := config.ExpandPath(cfg.Node.DataDir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		cfg.Logging.OutputFile = filepath.Join(dir, "collab.log")
	}
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	neg := a.negotiator
	if opts.useTUI {
		go negotiate(ctx, a, opts)
		model := tui.NewModel(neg, cfg.Collaboration.SyncPort)
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		stop()
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if err := negotiate(ctx, a, opts); err != nil {
		return err
	}
	logEvents(ctx, neg.Client(), logger)
	return nil
}

// negotiate picks the session role from the flags and config.
func negotiate(ctx context.Context, a *app, opts startFlags) error {
	neg := a.negotiator
	var err error
	switch {
	case opts.connect != "":
		ip, port, perr := tui.ParseAddress(opts.connect, a.cfg.Collaboration.SyncPort)
		if perr != nil {
			return perr
		}
		err = neg.ConnectTo(ctx, ip, port, "")
	case opts.forceHst:
		err = neg.StartHost(ctx)
	case a.cfg.Collaboration.AutoNegotiate:
		err = neg.AutoNegotiate(ctx)
	default:
		a.logger.ComponentInfo(logging.ComponentSession, "Auto-negotiation disabled, waiting")
	}
	if err != nil {
		a.logger.ComponentError(logging.ComponentSession, "Failed to establish session", zap.Error(err))
	}
	return err
}

// logEvents reports session activity until ctx ends.
func logEvents(ctx context.Context, cl *client.Client, logger *logging.ColoredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-cl.Events():
			fields := []zap.Field{zap.String("event", string(ev.Kind))}
			if ev.FieldID != "" {
				fields = append(fields, zap.String("field", ev.FieldID))
			}
			if ev.Holder != "" {
				fields = append(fields, zap.String("holder", ev.Holder))
			}
			if ev.Collection != "" {
				fields = append(fields, zap.String("collection", ev.Collection))
			}
			if ev.Message != "" {
				fields = append(fields, zap.String("message", ev.Message))
			}
			logger.ComponentDebug(logging.ComponentClient, "Session event", fields...)
		}
	}
}
