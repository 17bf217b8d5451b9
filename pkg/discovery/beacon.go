// Package discovery finds Hosts on the local network. A Host broadcasts a
// small JSON announcement on a well-known UDP port; every instance listens on
// that port and keeps the set of Hosts it has heard from.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/logging"
)

// AnnounceType is the only announcement type currently sent.
const AnnounceType = "announce"

// Announcement is the datagram payload.
type Announcement struct {
	Key        string `json:"key"`
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Hostname   string `json:"hostname"`
	Port       int    `json:"port"`
	InstanceID string `json:"instanceId"`
}

// Server is a Host heard on the LAN, keyed by IP and port.
type Server struct {
	IP         string
	Port       int
	Hostname   string
	InstanceID string
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Address returns ip:port.
func (s Server) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// Beacon listens for and sends Host announcements.
type Beacon struct {
	cfg        config.DiscoveryConfig
	logger     *logging.ColoredLogger
	instanceID string
	now        func() time.Time

	mu       sync.Mutex
	servers  map[string]*Server
	handlers []func(Server)
	listener net.PacketConn

	announceMu     sync.Mutex
	announceCancel context.CancelFunc
	announceDone   chan struct{}
}

// NewBeacon creates a beacon with a fresh instance id.
func NewBeacon(cfg config.DiscoveryConfig, logger *logging.ColoredLogger) *Beacon {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Tag == "" {
		cfg.Tag = config.DefaultDiscoveryTag
	}
	if cfg.BroadcastAddress == "" {
		cfg.BroadcastAddress = "255.255.255.255"
	}
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = 3 * time.Second
	}
	return &Beacon{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		now:        time.Now,
		servers:    make(map[string]*Server),
	}
}

// InstanceID identifies this process in its own announcements.
func (b *Beacon) InstanceID() string {
	return b.instanceID
}

// OnServerFound registers fn for the first sighting of each Host.
func (b *Beacon) OnServerFound(fn func(Server)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

// Listen binds the discovery port and records announcements until Close.
// Calling it again while listening is a no-op.
func (b *Beacon) Listen(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return nil
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", b.cfg.Port))
	if err != nil {
		b.logger.ComponentWarn(logging.ComponentDiscovery, "Failed to bind discovery port",
			zap.Int("port", b.cfg.Port), zap.Error(err))
		return errors.WrapCode(err, errors.CodeNetworkError, "bind discovery port")
	}
	b.listener = pc

	b.logger.ComponentInfo(logging.ComponentDiscovery, "Listening for hosts",
		zap.String("addr", pc.LocalAddr().String()))
	go b.readLoop(pc)
	return nil
}

// LocalAddr is the bound discovery address, nil when not listening.
func (b *Beacon) LocalAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.LocalAddr()
}

func (b *Beacon) readLoop(pc net.PacketConn) {
	buf := make([]byte, 2048)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			b.mu.Lock()
			closed := b.listener != pc
			b.mu.Unlock()
			if closed {
				return
			}
			b.logger.ComponentDebug(logging.ComponentDiscovery, "Discovery read failed", zap.Error(err))
			continue
		}
		b.handleDatagram(buf[:n], from)
	}
}

func (b *Beacon) handleDatagram(data []byte, from net.Addr) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		b.logger.ComponentDebug(logging.ComponentDiscovery, "Dropping malformed datagram",
			zap.Stringer("from", from), zap.Error(err))
		return
	}
	if a.Key != b.cfg.Tag || a.Type != AnnounceType {
		return
	}
	if a.InstanceID == b.instanceID {
		return
	}
	if net.ParseIP(a.IP) == nil || a.Port <= 0 || a.Port > 65535 {
		b.logger.ComponentDebug(logging.ComponentDiscovery, "Dropping announcement without address",
			zap.Stringer("from", from))
		return
	}

	now := b.now()
	key := net.JoinHostPort(a.IP, strconv.Itoa(a.Port))

	b.mu.Lock()
	s, known := b.servers[key]
	if !known {
		s = &Server{IP: a.IP, Port: a.Port, FirstSeen: now}
		b.servers[key] = s
	}
	s.Hostname = a.Hostname
	s.InstanceID = a.InstanceID
	s.LastSeen = now
	found := *s
	handlers := append([]func(Server){}, b.handlers...)
	b.mu.Unlock()

	if known {
		return
	}
	b.logger.ComponentInfo(logging.ComponentDiscovery, "Host discovered",
		zap.String("addr", found.Address()),
		zap.String("hostname", found.Hostname))
	for _, fn := range handlers {
		fn(found)
	}
}

// Servers returns the known Hosts ordered by first sighting. Hosts silent for
// longer than the configured TTL are dropped.
func (b *Beacon) Servers() []Server {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make([]Server, 0, len(b.servers))
	for key, s := range b.servers {
		if b.cfg.ServerTTL > 0 && now.Sub(s.LastSeen) > b.cfg.ServerTTL {
			delete(b.servers, key)
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].Address() < out[j].Address()
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// Forget drops a Host, e.g. after failing to join it.
func (b *Beacon) Forget(ip string, port int) {
	b.mu.Lock()
	delete(b.servers, net.JoinHostPort(ip, strconv.Itoa(port)))
	b.mu.Unlock()
}

// StartAnnouncing broadcasts this instance as a Host right away and then
// every announce interval. A previous announcer is replaced.
func (b *Beacon) StartAnnouncing(ip, hostname string, port int) error {
	dst := &net.UDPAddr{IP: net.ParseIP(b.cfg.BroadcastAddress), Port: b.cfg.Port}
	if dst.IP == nil {
		return errors.NewValidationError("discovery.broadcast_address", "not an IP address", b.cfg.BroadcastAddress)
	}
	payload, err := json.Marshal(Announcement{
		Key:        b.cfg.Tag,
		Type:       AnnounceType,
		IP:         ip,
		Hostname:   hostname,
		Port:       port,
		InstanceID: b.instanceID,
	})
	if err != nil {
		return err
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		b.logger.ComponentWarn(logging.ComponentDiscovery, "Failed to open announce socket", zap.Error(err))
		return errors.WrapCode(err, errors.CodeNetworkError, "open announce socket")
	}

	b.StopAnnouncing()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.announceMu.Lock()
	b.announceCancel = cancel
	b.announceDone = done
	b.announceMu.Unlock()

	b.logger.ComponentInfo(logging.ComponentDiscovery, "Announcing host",
		zap.String("ip", ip),
		zap.Int("port", port),
		zap.String("to", dst.String()),
		zap.Duration("interval", b.cfg.AnnounceInterval))

	go func() {
		defer close(done)
		defer pc.Close()

		send := func() {
			if _, err := pc.WriteTo(payload, dst); err != nil {
				b.logger.ComponentDebug(logging.ComponentDiscovery, "Announcement send failed", zap.Error(err))
			}
		}
		send()

		ticker := time.NewTicker(b.cfg.AnnounceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	return nil
}

// StopAnnouncing stops the announcer. Safe to call repeatedly.
func (b *Beacon) StopAnnouncing() {
	b.announceMu.Lock()
	cancel, done := b.announceCancel, b.announceDone
	b.announceCancel, b.announceDone = nil, nil
	b.announceMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		b.logger.ComponentInfo(logging.ComponentDiscovery, "Stopped announcing")
	}
}

// Announcing reports whether an announcer is running.
func (b *Beacon) Announcing() bool {
	b.announceMu.Lock()
	defer b.announceMu.Unlock()
	return b.announceCancel != nil
}

// Close stops announcing and listening.
func (b *Beacon) Close() error {
	b.StopAnnouncing()
	b.mu.Lock()
	pc := b.listener
	b.listener = nil
	b.mu.Unlock()
	if pc != nil {
		return pc.Close()
	}
	return nil
}
