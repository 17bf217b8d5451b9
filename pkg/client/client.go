// Package client is the peer side of a collaboration session. It mirrors the
// Host's locks, roster and build status, applies hydration and relayed
// updates to the local store, and forwards local edits to the Host.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
	"github.com/DeBrosOfficial/collab/pkg/store"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

// Options configure a Client.
type Options struct {
	Name string
	// EventBuffer sizes the Events channel; events are dropped when full.
	EventBuffer int
}

// link is the per-connection handshake state.
type link struct {
	ready     chan struct{}
	readyOnce sync.Once
	gone      chan struct{}
}

type Client struct {
	opts   Options
	docs   *store.Documents
	logger *logging.ColoredLogger
	events chan Event

	mu       sync.RWMutex
	conn     transport.Conn
	link     *link
	socketID string
	locks    map[string]protocol.LockInfo
	peers    []protocol.PeerInfo
	build    protocol.BuildStatus
}

// New creates a detached client writing into docs.
func New(docs *store.Documents, opts Options, logger *logging.ColoredLogger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	c := &Client{
		opts:   opts,
		docs:   docs,
		logger: logger,
		events: make(chan Event, opts.EventBuffer),
		locks:  make(map[string]protocol.LockInfo),
	}
	docs.OnChange(c.onLocalChange)
	return c
}

// Events delivers UI notifications. Slow readers lose events, never block
// the session.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Attach registers over conn and starts processing its messages. The returned
// channel yields the reason the connection ended and is then closed.
func (c *Client) Attach(conn transport.Conn) (<-chan error, error) {
	return c.attach(conn, false)
}

// AttachHost is Attach for the Host's own loopback connection. The session
// registers as the Host and is not hydrated.
func (c *Client) AttachHost(conn transport.Conn) (<-chan error, error) {
	return c.attach(conn, true)
}

func (c *Client) attach(conn transport.Conn, isHost bool) (<-chan error, error) {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyAttached
	}
	c.conn = conn
	l := &link{ready: make(chan struct{}), gone: make(chan struct{})}
	c.link = l
	c.socketID = ""
	c.mu.Unlock()

	if err := conn.Send(protocol.RegisterClient{Name: c.opts.Name, IsHost: isHost}); err != nil {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		return nil, &OpError{Op: "register-client", Err: err}
	}

	done := make(chan error, 1)
	go c.dispatch(conn, l, done)
	return done, nil
}

// WaitReady blocks until the Host answered registration on the current
// connection. It fails as soon as that connection ends.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	l := c.link
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || l == nil {
		return ErrNotConnected
	}
	select {
	case <-l.ready:
		return nil
	case <-l.gone:
		select {
		case <-l.ready:
			return nil
		default:
		}
		if err := conn.Err(); err != nil {
			return &OpError{Op: "register-client", Err: err}
		}
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach closes the current connection, if any.
func (c *Client) Detach() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

// Connected reports whether a connection is live and registered.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.socketID != ""
}

// SocketID is the id the Host assigned on the current connection.
func (c *Client) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

// Locks returns the mirrored lock table sorted by field.
func (c *Client) Locks() []protocol.LockInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.LockInfo, 0, len(c.locks))
	for _, l := range c.locks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out
}

// LockHolder returns the client name holding fieldID.
func (c *Client) LockHolder(fieldID string) (protocol.LockInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.locks[fieldID]
	return l, ok
}

// Peers returns the mirrored roster in join order.
func (c *Client) Peers() []protocol.PeerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]protocol.PeerInfo(nil), c.peers...)
}

// BuildStatus returns the last build status received from the Host.
func (c *Client) BuildStatus() protocol.BuildStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.build
}

// Save writes a collection locally; the change hook forwards it to the Host
// when connected. Offline edits stay local and are not queued.
func (c *Client) Save(ctx context.Context, collection string, data json.RawMessage) error {
	return c.docs.Save(ctx, collection, data, store.SaveOptions{})
}

func (c *Client) RequestLock(fieldID string) error {
	return c.send("request-lock", protocol.RequestLock{FieldID: fieldID, ClientName: c.opts.Name})
}

func (c *Client) ReleaseLock(fieldID string) error {
	return c.send("release-lock", protocol.ReleaseLock{FieldID: fieldID})
}

func (c *Client) ForceRelease(fieldID string) error {
	return c.send("admin-force-release", protocol.AdminForceRelease{FieldID: fieldID})
}

func (c *Client) RequestBuild() error {
	return c.send("request-build", protocol.RequestBuild{})
}

func (c *Client) CancelBuild() error {
	return c.send("cancel-build", protocol.CancelBuild{})
}

// RequestFullState asks the Host for a complete re-sync.
func (c *Client) RequestFullState() error {
	return c.send("request-full-state", protocol.RequestFullState{})
}

func (c *Client) send(op string, msg protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return &OpError{Op: op, Err: ErrNotConnected}
	}
	if err := conn.Send(msg); err != nil {
		return &OpError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) onLocalChange(name string, data json.RawMessage) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		c.logger.ComponentDebug(logging.ComponentClient, "Offline edit kept local",
			zap.String("collection", name))
		return
	}
	if err := conn.Send(protocol.DataUpdate{Type: name, Data: data}); err != nil {
		c.logger.ComponentWarn(logging.ComponentClient, "Failed to send update",
			zap.String("collection", name), zap.Error(err))
	}
}

func (c *Client) dispatch(conn transport.Conn, l *link, done chan<- error) {
	for msg := range conn.Inbox() {
		c.handle(l, msg)
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.socketID = ""
		c.locks = make(map[string]protocol.LockInfo)
		c.peers = nil
	}
	c.mu.Unlock()
	close(l.gone)

	reason := conn.Err()
	c.logger.ComponentInfo(logging.ComponentClient, "Disconnected from host", zap.NamedError("reason", reason))
	c.emit(Event{Kind: EventDisconnected})
	done <- reason
	close(done)
}

func (c *Client) handle(l *link, msg protocol.Message) {
	ctx := context.Background()

	switch m := msg.(type) {
	case protocol.InitialState:
		c.mu.Lock()
		c.socketID = m.SocketID
		c.locks = make(map[string]protocol.LockInfo, len(m.Locks))
		for _, l := range m.Locks {
			c.locks[l.FieldID] = l
		}
		c.peers = append([]protocol.PeerInfo(nil), m.Clients...)
		c.mu.Unlock()
		l.readyOnce.Do(func() { close(l.ready) })
		c.logger.ComponentInfo(logging.ComponentClient, "Registered with host",
			zap.String("socket_id", m.SocketID),
			zap.Int("peers", len(m.Clients)),
			zap.Int("locks", len(m.Locks)))
		c.emit(Event{Kind: EventConnected})
		c.emit(Event{Kind: EventRosterChanged})
		c.emit(Event{Kind: EventLocksChanged})

	case protocol.SyncFullState:
		if m.TargetSocketID != c.SocketID() {
			return
		}
		c.hydrate(ctx, m.State)

	case protocol.HydrateState:
		c.hydrate(ctx, m.State)

	case protocol.ForwardedUpdate:
		if m.OriginSocketID == c.SocketID() {
			return
		}
		if err := c.docs.Save(ctx, m.Type, m.Data, store.SaveOptions{SkipBroadcast: true}); err != nil {
			c.logger.ComponentWarn(logging.ComponentClient, "Failed to apply update",
				zap.String("collection", m.Type), zap.Error(err))
			return
		}
		c.emit(Event{Kind: EventUpdated, Collection: m.Type})

	case protocol.LockGranted:
		c.emit(Event{Kind: EventLockGranted, FieldID: m.FieldID})

	case protocol.LockDenied:
		c.emit(Event{
			Kind:    EventLockDenied,
			FieldID: m.FieldID,
			Holder:  m.Holder,
			Message: fmt.Sprintf("%s is currently editing this field", m.Holder),
		})

	case protocol.LockUpdate:
		c.mu.Lock()
		if m.Status == protocol.LockLocked {
			c.locks[m.FieldID] = protocol.LockInfo{FieldID: m.FieldID, SocketID: m.SocketID, ClientName: m.ClientName}
		} else {
			delete(c.locks, m.FieldID)
		}
		c.mu.Unlock()
		c.emit(Event{Kind: EventLocksChanged, FieldID: m.FieldID})

	case protocol.ClientJoined:
		c.mu.Lock()
		c.peers = append(c.peers, m.Client)
		c.mu.Unlock()
		c.emit(Event{Kind: EventRosterChanged})

	case protocol.ClientLeft:
		c.mu.Lock()
		for i, p := range c.peers {
			if p.SocketID == m.SocketID {
				c.peers = append(c.peers[:i], c.peers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		c.emit(Event{Kind: EventRosterChanged})

	case protocol.BuildStatus:
		c.mu.Lock()
		c.build = m
		c.mu.Unlock()
		c.emit(Event{Kind: EventBuildStatus})

	case protocol.BuildError:
		c.emit(Event{Kind: EventBuildError, Message: m.Message})

	default:
		c.logger.ComponentDebug(logging.ComponentClient, "Ignoring unexpected event",
			zap.String("event", string(msg.Event())))
	}
}

func (c *Client) hydrate(ctx context.Context, state protocol.State) {
	if err := c.docs.ApplySnapshot(ctx, state); err != nil {
		c.logger.ComponentError(logging.ComponentClient, "Failed to apply host state", zap.Error(err))
		return
	}
	c.emit(Event{Kind: EventHydrated})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
