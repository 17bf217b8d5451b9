package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/build"
	"github.com/DeBrosOfficial/collab/pkg/client"
	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/discovery"
	"github.com/DeBrosOfficial/collab/pkg/host"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/profiles"
	"github.com/DeBrosOfficial/collab/pkg/session"
	"github.com/DeBrosOfficial/collab/pkg/store"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

// loadConfig reads the config file and validates it.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath("collab.yaml")
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *config.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Errorf("invalid configuration:\n%s", strings.Join(msgs, "\n"))
}

func openStore(cfg *config.Config, logger *logging.ColoredLogger) (*store.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	return store.Open(path, logger)
}

// app is one running collaboration instance.
type app struct {
	cfg        *config.Config
	logger     *logging.ColoredLogger
	kv         *store.Store
	beacon     *discovery.Beacon
	negotiator *session.Negotiator
}

func newApp(cfg *config.Config, logger *logging.ColoredLogger) (*app, error) {
	kv, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	docs := store.NewDocuments(kv, logger)

	topts := transport.Options{
		SendQueueSize:  cfg.Collaboration.SendQueueSize,
		WriteTimeout:   cfg.Collaboration.WriteTimeout,
		PingInterval:   cfg.Collaboration.PingInterval,
		MaxMessageSize: cfg.Collaboration.MaxMessageSize,
	}

	var builds *build.Coordinator
	if len(cfg.Build.Stages) > 0 {
		builds = build.NewCoordinator(&build.ExecRunner{WorkDir: cfg.Build.WorkDir, Logger: logger}, cfg.Build.Stages, logger)
	}

	newHost := func(ctx context.Context) (session.HostHandle, error) {
		rt := host.New(host.Options{
			ListenAddr: cfg.SyncAddress(),
			MaxPeers:   cfg.Collaboration.MaxPeers,
			Transport:  topts,
		}, docs, builds, logger)
		if err := rt.Start(); err != nil {
			_ = rt.Stop(ctx)
			return nil, err
		}
		return rt, nil
	}

	beacon := discovery.NewBeacon(cfg.Discovery, logger)
	beacon.OnServerFound(func(s discovery.Server) {
		logger.ComponentInfo(logging.ComponentDiscovery, "Host available",
			zap.String("addr", s.Address()),
			zap.String("hostname", s.Hostname))
	})
	var b session.Beacon = beacon
	if !cfg.Discovery.Enabled {
		b = noDiscovery{}
	}

	cl := client.New(docs, client.Options{Name: cfg.Node.Name}, logger)
	dialer := &transport.WebsocketDialer{Options: topts, HandshakeTimeout: cfg.Reconnect.Timeout, Logger: logger}
	neg := session.New(session.Options{
		Hostname:    cfg.Node.Name,
		AdvertiseIP: cfg.Collaboration.AdvertiseIP,
		Window:      cfg.Discovery.Window,
		AutoJoin:    cfg.Collaboration.AutoJoin,
		Reconnect:   cfg.Reconnect,
	}, b, newHost, dialer, cl, profiles.NewManager(kv), logger)

	return &app{cfg: cfg, logger: logger, kv: kv, beacon: beacon, negotiator: neg}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.negotiator.Disconnect(ctx); err != nil {
		a.logger.Warn("Failed to end session", zap.Error(err))
	}
	if err := a.beacon.Close(); err != nil {
		a.logger.Warn("Failed to close discovery", zap.Error(err))
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
}

// noDiscovery stands in for the beacon when discovery is disabled.
type noDiscovery struct{}

func (noDiscovery) Listen(context.Context) error              { return nil }
func (noDiscovery) Servers() []discovery.Server               { return nil }
func (noDiscovery) Forget(string, int)                        {}
func (noDiscovery) StartAnnouncing(string, string, int) error { return nil }
func (noDiscovery) StopAnnouncing()                           {}

func formatHostPort(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
