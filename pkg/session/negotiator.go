// Package session decides whether this instance hosts the collaboration
// session or joins one, and keeps the chosen session alive.
//
// On start the negotiator listens for Host announcements for a short window.
// If a Host is heard it joins it as a Client; otherwise it starts the Host
// runtime, announces it and attaches its own client over an in-process
// loopback connection. Client sessions that drop are retried a bounded number
// of times before the negotiator gives up and reports the error.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/client"
	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/discovery"
	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/profiles"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

type Role string

const (
	RoleDisconnected Role = "disconnected"
	RoleHost         Role = "host"
	RoleClient       Role = "client"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Banner texts shown to a Client whose Host went away.
const (
	BannerReconnecting = "Attempting to reconnect to host…"
	BannerLostPrefix   = "Connection lost: "
	BannerDisconnected = "Disconnected from host"
)

// Beacon is the part of discovery.Beacon the negotiator drives.
type Beacon interface {
	Listen(ctx context.Context) error
	Servers() []discovery.Server
	Forget(ip string, port int)
	StartAnnouncing(ip, hostname string, port int) error
	StopAnnouncing()
}

// HostHandle is a running Host runtime.
type HostHandle interface {
	Port() int
	Loopback() (transport.Conn, error)
	Stop(ctx context.Context) error
}

// HostFactory starts a Host runtime bound to the sync port.
type HostFactory func(ctx context.Context) (HostHandle, error)

// Options configure a Negotiator.
type Options struct {
	// Hostname is announced to the LAN and used as the profile name.
	Hostname string
	// AdvertiseIP is announced to the LAN; detected when empty.
	AdvertiseIP string
	// Window is how long to listen before choosing a role.
	Window time.Duration
	// AutoJoin connects to the first discovered Host.
	AutoJoin  bool
	Reconnect config.ReconnectConfig
}

type Negotiator struct {
	opts     Options
	beacon   Beacon
	newHost  HostFactory
	dialer   transport.Dialer
	client   *client.Client
	profiles *profiles.Manager
	logger   *logging.ColoredLogger
	sleep    func(ctx context.Context, d time.Duration) error

	// opMu serializes role changes.
	opMu sync.Mutex

	mu             sync.Mutex
	role           Role
	status         Status
	reason         string
	hostAddr       string
	wasClient      bool
	host           HostHandle
	gen            uint64
	stopSupervisor context.CancelFunc
	supervisorDone chan struct{}
}

// New wires a negotiator. profiles may be nil.
func New(opts Options, beacon Beacon, newHost HostFactory, dialer transport.Dialer,
	cl *client.Client, prof *profiles.Manager, logger *logging.ColoredLogger) *Negotiator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Reconnect.Attempts <= 0 {
		opts.Reconnect.Attempts = 5
	}
	if opts.Reconnect.Timeout <= 0 {
		opts.Reconnect.Timeout = 10 * time.Second
	}
	if opts.Reconnect.MaxDelay <= 0 {
		opts.Reconnect.MaxDelay = 10 * time.Second
	}
	return &Negotiator{
		opts:     opts,
		beacon:   beacon,
		newHost:  newHost,
		dialer:   dialer,
		client:   cl,
		profiles: prof,
		logger:   logger,
		sleep:    sleepCtx,
		role:     RoleDisconnected,
		status:   StatusDisconnected,
	}
}

// Client is the local collaboration client, attached in both roles.
func (n *Negotiator) Client() *client.Client {
	return n.client
}

// AutoNegotiate listens for a Host for the discovery window and then either
// joins the first one found or becomes the Host.
func (n *Negotiator) AutoNegotiate(ctx context.Context) error {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	if role := n.Role(); role != RoleDisconnected {
		return errors.NewConflictError("session", string(role)).
			WithMessage("a collaboration session is already active")
	}

	if err := n.beacon.Listen(ctx); err != nil {
		n.logger.ComponentWarn(logging.ComponentSession, "Discovery unavailable, deciding without it", zap.Error(err))
	}
	n.logger.ComponentInfo(logging.ComponentSession, "Looking for an existing host",
		zap.Duration("window", n.opts.Window))
	if err := n.sleep(ctx, n.opts.Window); err != nil {
		return err
	}

	servers := n.beacon.Servers()
	if len(servers) == 0 {
		n.logger.ComponentInfo(logging.ComponentSession, "No host found, becoming host")
		return n.startHost(ctx)
	}

	n.mu.Lock()
	n.role = RoleClient
	n.mu.Unlock()
	n.logger.ComponentInfo(logging.ComponentSession, "Host found, acting as client",
		zap.String("host", servers[0].Address()),
		zap.Int("hosts", len(servers)))
	if !n.opts.AutoJoin {
		return nil
	}

	var lastErr error
	for _, s := range servers {
		name := s.Hostname
		if name == "" {
			name = s.IP
		}
		if lastErr = n.connect(ctx, s.IP, s.Port, name); lastErr == nil {
			return nil
		}
		n.beacon.Forget(s.IP, s.Port)
	}
	return lastErr
}

// StartHost becomes the Host explicitly. It is refused when already hosting,
// while connected to a Host, or while another Host is visible on the network.
// A client that is reconnecting or has given up may take over.
func (n *Negotiator) StartHost(ctx context.Context) error {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	role, status, addr := n.role, n.status, n.hostAddr
	n.mu.Unlock()
	switch {
	case role == RoleHost:
		return errors.NewConflictError("host", "").WithMessage("already hosting a session")
	case role == RoleClient && status == StatusConnected:
		return errors.NewConflictError("host", addr).
			WithMessage("connected to the host at " + addr + "; disconnect first")
	}
	if servers := n.beacon.Servers(); len(servers) > 0 {
		return errors.NewConflictError("host", servers[0].Address()).
			WithMessage("another host is already active on this network at " + servers[0].Address())
	}
	n.teardown(ctx)
	return n.startHost(ctx)
}

// ConnectTo joins the Host at ip:port, leaving any current session first.
func (n *Negotiator) ConnectTo(ctx context.Context, ip string, port int, name string) error {
	if net.ParseIP(ip) == nil {
		return errors.NewValidationError("ip", "not an IP address", ip)
	}
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port", "port must be between 1 and 65535", port)
	}
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.teardown(ctx)
	return n.connect(ctx, ip, port, name)
}

// Disconnect ends the current session. A Host also stops its sync server and
// its announcements.
func (n *Negotiator) Disconnect(ctx context.Context) error {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.teardown(ctx)
	n.mu.Lock()
	n.role = RoleDisconnected
	n.status = StatusDisconnected
	n.reason = ""
	n.hostAddr = ""
	n.mu.Unlock()
	n.logger.ComponentInfo(logging.ComponentSession, "Session ended")
	return nil
}

func (n *Negotiator) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

func (n *Negotiator) Status() (Status, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status, n.reason
}

// Banner returns the connection banner. It is only shown to an instance that
// has successfully joined a Host as a Client.
func (n *Negotiator) Banner() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return bannerFor(n.wasClient && n.role != RoleHost, n.status, n.reason)
}

func bannerFor(wasClient bool, status Status, reason string) (string, bool) {
	if !wasClient {
		return "", false
	}
	switch status {
	case StatusConnecting:
		return BannerReconnecting, true
	case StatusError:
		return BannerLostPrefix + reason, true
	case StatusDisconnected:
		return BannerDisconnected, true
	default:
		return "", false
	}
}

// Snapshot is everything a status view renders.
type Snapshot struct {
	Role          Role
	Status        Status
	Reason        string
	HostAddr      string
	Peers         []protocol.PeerInfo
	Locks         []protocol.LockInfo
	Servers       []discovery.Server
	Build         protocol.BuildStatus
	Banner        string
	BannerVisible bool
}

func (n *Negotiator) Snapshot() Snapshot {
	n.mu.Lock()
	snap := Snapshot{
		Role:     n.role,
		Status:   n.status,
		Reason:   n.reason,
		HostAddr: n.hostAddr,
	}
	snap.Banner, snap.BannerVisible = bannerFor(n.wasClient && n.role != RoleHost, n.status, n.reason)
	n.mu.Unlock()

	snap.Peers = n.client.Peers()
	snap.Locks = n.client.Locks()
	snap.Build = n.client.BuildStatus()
	snap.Servers = n.beacon.Servers()
	return snap
}

// SaveConnectionProfile remembers a Host address.
func (n *Negotiator) SaveConnectionProfile(ctx context.Context, ip string, port int, name string) (profiles.Profile, error) {
	if n.profiles == nil {
		return profiles.Profile{}, errors.NewServiceError("profiles", "connection profiles are not available", nil)
	}
	return n.profiles.Save(ctx, ip, port, name)
}

func (n *Negotiator) ToggleFavorite(ctx context.Context, ip string, port int) (profiles.Profile, error) {
	if n.profiles == nil {
		return profiles.Profile{}, errors.NewServiceError("profiles", "connection profiles are not available", nil)
	}
	return n.profiles.ToggleFavorite(ctx, ip, port)
}

func (n *Negotiator) RemoveConnectionProfile(ctx context.Context, ip string, port int) error {
	if n.profiles == nil {
		return errors.NewServiceError("profiles", "connection profiles are not available", nil)
	}
	return n.profiles.Remove(ctx, ip, port)
}

func (n *Negotiator) ConnectionProfiles(ctx context.Context) ([]profiles.Profile, error) {
	if n.profiles == nil {
		return nil, nil
	}
	return n.profiles.List(ctx)
}

// teardown stops whatever session is running. Callers hold opMu.
func (n *Negotiator) teardown(ctx context.Context) {
	n.mu.Lock()
	n.gen++
	stop, done, h := n.stopSupervisor, n.supervisorDone, n.host
	n.stopSupervisor, n.supervisorDone, n.host = nil, nil, nil
	n.mu.Unlock()

	if stop != nil {
		stop()
	}
	n.client.Detach()
	if done != nil {
		<-done
	}
	if h != nil {
		n.beacon.StopAnnouncing()
		if err := h.Stop(ctx); err != nil {
			n.logger.ComponentWarn(logging.ComponentSession, "Host runtime did not stop cleanly", zap.Error(err))
		}
	}
}

func (n *Negotiator) startHost(ctx context.Context) error {
	h, err := n.newHost(ctx)
	if err != nil {
		n.fail(err)
		return err
	}

	ip := n.opts.AdvertiseIP
	if ip == "" {
		ip = discovery.LocalIPv4()
	}
	port := h.Port()
	if err := n.beacon.StartAnnouncing(ip, n.opts.Hostname, port); err != nil {
		n.logger.ComponentWarn(logging.ComponentSession, "Hosting without announcements", zap.Error(err))
	}

	done, err := n.attachLoopback(ctx, h)
	if err != nil {
		n.beacon.StopAnnouncing()
		_ = h.Stop(ctx)
		n.fail(err)
		return err
	}

	supDone := make(chan struct{})
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.role = RoleHost
	n.status = StatusConnected
	n.reason = ""
	n.hostAddr = net.JoinHostPort(ip, strconv.Itoa(port))
	n.host = h
	n.supervisorDone = supDone
	n.mu.Unlock()

	n.logger.ComponentInfo(logging.ComponentSession, "Hosting collaboration session",
		zap.String("addr", n.hostAddr))
	go n.superviseHost(gen, done, supDone)
	return nil
}

func (n *Negotiator) attachLoopback(ctx context.Context, h HostHandle) (<-chan error, error) {
	conn, err := h.Loopback()
	if err != nil {
		return nil, err
	}
	done, err := n.client.AttachHost(conn)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithTimeout(ctx, n.opts.Reconnect.Timeout)
	defer cancel()
	if err := n.client.WaitReady(wctx); err != nil {
		n.client.Detach()
		<-done
		return nil, err
	}
	return done, nil
}

// superviseHost watches the loopback session. Losing it is fatal: the Host
// cannot reconnect to itself.
func (n *Negotiator) superviseHost(gen uint64, done <-chan error, supDone chan struct{}) {
	defer close(supDone)
	reason := <-done
	if !n.current(gen) {
		return
	}
	n.logger.ComponentError(logging.ComponentSession, "Host session lost", zap.NamedError("reason", reason))
	n.setStatus(gen, StatusError, fmt.Sprintf("host session lost: %v", reason))
}

func (n *Negotiator) connect(ctx context.Context, ip string, port int, name string) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.role = RoleClient
	n.status = StatusConnecting
	n.reason = ""
	n.hostAddr = addr
	n.mu.Unlock()

	n.logger.ComponentInfo(logging.ComponentSession, "Connecting to host", zap.String("addr", addr))
	done, err := n.dialAndAttach(ctx, addr)
	if err != nil {
		n.logger.ComponentWarn(logging.ComponentSession, "Failed to connect to host",
			zap.String("addr", addr), zap.Error(err))
		n.setStatus(gen, StatusError, err.Error())
		return errors.NewServiceError("host", "could not connect to "+addr, err)
	}

	supCtx, stop := context.WithCancel(context.Background())
	supDone := make(chan struct{})
	n.mu.Lock()
	n.status = StatusConnected
	n.wasClient = true
	n.stopSupervisor = stop
	n.supervisorDone = supDone
	n.mu.Unlock()
	n.logger.ComponentInfo(logging.ComponentSession, "Connected to host", zap.String("addr", addr))

	if n.profiles != nil {
		if _, err := n.profiles.Save(ctx, ip, port, name); err != nil {
			n.logger.ComponentWarn(logging.ComponentSession, "Failed to remember host", zap.Error(err))
		}
	}
	go n.superviseClient(supCtx, gen, addr, done, supDone)
	return nil
}

func (n *Negotiator) dialAndAttach(ctx context.Context, addr string) (<-chan error, error) {
	dctx, cancel := context.WithTimeout(ctx, n.opts.Reconnect.Timeout)
	defer cancel()

	conn, err := n.dialer.Dial(dctx, addr)
	if err != nil {
		if dctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("connect to "+addr, n.opts.Reconnect.Timeout.String())
		}
		return nil, err
	}
	done, err := n.client.Attach(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := n.client.WaitReady(dctx); err != nil {
		n.client.Detach()
		<-done
		if dctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("register with "+addr, n.opts.Reconnect.Timeout.String())
		}
		return nil, err
	}
	return done, nil
}

// superviseClient reconnects a dropped Client session.
func (n *Negotiator) superviseClient(ctx context.Context, gen uint64, addr string, done <-chan error, supDone chan struct{}) {
	defer close(supDone)
	for {
		reason := <-done
		if !n.current(gen) {
			return
		}
		text := "connection closed"
		if reason != nil {
			text = reason.Error()
		}
		n.logger.ComponentWarn(logging.ComponentSession, "Lost connection to host",
			zap.String("addr", addr), zap.String("reason", text))
		n.setStatus(gen, StatusConnecting, text)

		next, err := n.reconnect(ctx, gen, addr)
		if err != nil {
			if n.current(gen) {
				n.logger.ComponentError(logging.ComponentSession, "Giving up on host",
					zap.String("addr", addr), zap.Error(err))
				n.setStatus(gen, StatusError, err.Error())
			}
			return
		}
		if !n.current(gen) {
			n.client.Detach()
			<-next
			return
		}
		n.logger.ComponentInfo(logging.ComponentSession, "Reconnected to host", zap.String("addr", addr))
		n.setStatus(gen, StatusConnected, "")
		done = next
	}
}

func (n *Negotiator) reconnect(ctx context.Context, gen uint64, addr string) (<-chan error, error) {
	delay := n.opts.Reconnect.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= n.opts.Reconnect.Attempts; attempt++ {
		if err := n.sleep(ctx, addJitter(delay)); err != nil {
			return nil, err
		}
		if !n.current(gen) {
			return nil, context.Canceled
		}
		n.logger.ComponentInfo(logging.ComponentSession, "Reconnecting to host",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n.opts.Reconnect.Attempts))

		done, err := n.dialAndAttach(ctx, addr)
		if err == nil {
			return done, nil
		}
		lastErr = err
		delay = calculateNextBackoff(delay, n.opts.Reconnect.MaxDelay)
	}
	return nil, fmt.Errorf("could not reach host after %d attempts: %w", n.opts.Reconnect.Attempts, lastErr)
}

func (n *Negotiator) current(gen uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen == gen
}

func (n *Negotiator) setStatus(gen uint64, status Status, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return
	}
	n.status = status
	n.reason = reason
}

func (n *Negotiator) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = StatusError
	n.reason = err.Error()
}

// RequestBuild asks the Host to run the site build.
func (n *Negotiator) RequestBuild() error {
	return n.client.RequestBuild()
}

// CancelBuild asks the Host to stop the running build.
func (n *Negotiator) CancelBuild() error {
	return n.client.CancelBuild()
}
