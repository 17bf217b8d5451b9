// Package host implements the Host side of a collaboration session: the
// authoritative lock table, the roster of peers, full state hydration for
// joiners and the relay of incremental updates.
//
// All Host state is owned by a single event-loop goroutine. Connection
// goroutines only decode frames and hand them to the loop, so messages from
// one peer are handled in arrival order and never concurrently with anything
// else.
package host

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/DeBrosOfficial/collab/pkg/build"
	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/locks"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
	"github.com/DeBrosOfficial/collab/pkg/registry"
	"github.com/DeBrosOfficial/collab/pkg/store"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

// Options configure a Runtime.
type Options struct {
	// ListenAddr is the sync server bind address; ":0" picks a free port.
	ListenAddr string
	// MaxPeers caps concurrently accepted connections; 0 means unlimited.
	MaxPeers  int
	Transport transport.Options
}

type peer struct {
	id       string
	conn     transport.Conn
	loopback bool
}

// Runtime is the Host runtime.
type Runtime struct {
	opts        Options
	logger      *logging.ColoredLogger
	docs        *store.Documents
	builds      *build.Coordinator
	unsubscribe func()

	// Owned by the loop goroutine.
	locks    *locks.Table
	registry *registry.Registry
	peers    map[string]*peer
	closing  bool

	ops         chan func()
	buildEvents chan build.Event

	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a Runtime serving docs and starts its event loop. builds may be
// nil when this instance cannot run the site build. Stop must be called to
// release the loop.
func New(opts Options, docs *store.Documents, builds *build.Coordinator, logger *logging.ColoredLogger) *Runtime {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":0"
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		opts:        opts,
		logger:      logger,
		docs:        docs,
		builds:      builds,
		locks:       locks.NewTable(),
		registry:    registry.New(),
		peers:       make(map[string]*peer),
		ops:         make(chan func(), 1024),
		buildEvents: make(chan build.Event, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	if builds != nil {
		r.unsubscribe = builds.Subscribe(func(ev build.Event) {
			select {
			case r.buildEvents <- ev:
			case <-r.ctx.Done():
			}
		})
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Start binds the sync server and starts the event loop.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.NewConflictError("host runtime", "").WithMessage("host runtime already started")
	}
	if r.stopped {
		return errors.NewServiceError("host runtime", "host runtime stopped", nil)
	}

	ln, err := net.Listen("tcp", r.opts.ListenAddr)
	if err != nil {
		return errors.WrapCode(err, errors.CodeNetworkError, "bind sync server on "+r.opts.ListenAddr)
	}
	if r.opts.MaxPeers > 0 {
		ln = netutil.LimitListener(ln, r.opts.MaxPeers)
	}
	r.listener = ln
	r.server = &http.Server{
		Handler:           r.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.logger.ComponentError(logging.ComponentHost, "Sync server stopped", zap.Error(err))
		}
	}()
	r.started = true

	r.logger.ComponentInfo(logging.ComponentHost, "Sync server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_peers", r.opts.MaxPeers))
	return nil
}

// Addr is the bound listener address, nil before Start.
func (r *Runtime) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Port is the bound TCP port, 0 before Start.
func (r *Runtime) Port() int {
	addr := r.Addr()
	if addr == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// Stop closes every peer connection and the sync server.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	server := r.server
	r.mu.Unlock()

	var shutdownErr error
	if server != nil {
		shutdownErr = server.Shutdown(ctx)
	}
	_ = r.do(func() {
		r.closing = true
		for _, p := range r.peers {
			_ = p.conn.Close()
		}
	})
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.cancel()
	r.wg.Wait()

	r.logger.ComponentInfo(logging.ComponentHost, "Host runtime stopped")
	return shutdownErr
}

// Attach adopts conn as a new peer session. The peer must send
// register-client before anything else is processed.
func (r *Runtime) Attach(conn transport.Conn) error {
	return r.attach(conn, false)
}

// Loopback returns the client end of an in-process connection attached as a
// session. Only loopback sessions may register as the Host.
func (r *Runtime) Loopback() (transport.Conn, error) {
	clientEnd, hostEnd := transport.PipeSize(r.opts.Transport.SendQueueSize)
	if err := r.attach(hostEnd, true); err != nil {
		clientEnd.Close()
		return nil, err
	}
	return clientEnd, nil
}

func (r *Runtime) attach(conn transport.Conn, loopback bool) error {
	p := &peer{id: uuid.NewString(), conn: conn, loopback: loopback}
	accepted := false
	err := r.do(func() {
		if r.closing {
			return
		}
		accepted = true
		r.peers[p.id] = p
		r.logger.ComponentDebug(logging.ComponentHost, "Peer attached",
			zap.String("socket_id", p.id),
			zap.String("remote", conn.RemoteAddr()),
			zap.Bool("loopback", loopback))
	})
	if err == nil && !accepted {
		err = errors.NewServiceError("host runtime", "host runtime is stopping", nil)
	}
	if err != nil {
		conn.Close()
		return err
	}
	r.wg.Add(1)
	go r.readPeer(p)
	return nil
}

func (r *Runtime) readPeer(p *peer) {
	defer r.wg.Done()
	for msg := range p.conn.Inbox() {
		msg := msg
		if !r.submit(func() { r.handle(p, msg) }) {
			return
		}
	}
	r.submit(func() { r.detach(p) })
}

// submit queues fn on the loop. It reports false once the runtime stopped.
func (r *Runtime) submit(fn func()) bool {
	select {
	case r.ops <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for it.
func (r *Runtime) do(fn func()) error {
	done := make(chan struct{})
	if !r.submit(func() { fn(); close(done) }) {
		return errors.NewServiceError("host runtime", "host runtime stopped", nil)
	}
	select {
	case <-done:
		return nil
	case <-r.ctx.Done():
		return errors.NewServiceError("host runtime", "host runtime stopped", nil)
	}
}

func (r *Runtime) loop() {
	defer r.wg.Done()
	for {
		select {
		case fn := <-r.ops:
			fn()
		case ev := <-r.buildEvents:
			r.handleBuildEvent(ev)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runtime) handle(p *peer, msg protocol.Message) {
	if _, live := r.peers[p.id]; !live {
		return
	}
	if reg, ok := msg.(protocol.RegisterClient); ok {
		r.register(p, reg)
		return
	}
	session, ok := r.registry.Get(p.id)
	if !ok {
		r.logger.ComponentDebug(logging.ComponentHost, "Ignoring message from unregistered peer",
			zap.String("socket_id", p.id),
			zap.String("event", string(msg.Event())))
		return
	}

	switch m := msg.(type) {
	case protocol.DataUpdate:
		r.handleDataUpdate(session, m)
	case protocol.RequestFullState:
		r.handleRequestFullState(p)
	case protocol.RequestLock:
		r.handleRequestLock(session, m)
	case protocol.ReleaseLock:
		r.handleReleaseLock(session, m)
	case protocol.AdminForceRelease:
		r.forceRelease(m.FieldID, session.ClientName)
	case protocol.RequestBuild:
		r.handleRequestBuild(p)
	case protocol.CancelBuild:
		r.handleCancelBuild(p)
	default:
		r.logger.ComponentDebug(logging.ComponentHost, "Ignoring unexpected event",
			zap.String("socket_id", p.id),
			zap.String("event", string(msg.Event())))
	}
}

func (r *Runtime) register(p *peer, m protocol.RegisterClient) {
	isHost := m.IsHost
	if isHost && !p.loopback {
		r.logger.ComponentWarn(logging.ComponentHost, "Remote peer claimed the host role, registering as client",
			zap.String("socket_id", p.id), zap.String("name", m.Name))
		isHost = false
	}
	if isHost {
		if _, exists := r.registry.HostSession(); exists {
			isHost = false
		}
	}

	session, err := r.registry.Register(p.id, m.Name, isHost)
	if err != nil {
		r.logger.ComponentDebug(logging.ComponentHost, "Ignoring duplicate registration",
			zap.String("socket_id", p.id), zap.Error(err))
		return
	}
	r.logger.ComponentInfo(logging.ComponentHost, "Client registered",
		zap.String("socket_id", p.id),
		zap.String("name", session.ClientName),
		zap.Bool("is_host", session.IsHost),
		zap.Int("peers", r.registry.Len()))

	r.send(p, protocol.InitialState{
		SocketID: p.id,
		Locks:    r.locks.Infos(),
		Clients:  r.registry.Infos(),
	})
	r.broadcast(protocol.ClientJoined{Client: session.Info()}, p.id)

	if !session.IsHost {
		state, err := r.docs.Snapshot(r.ctx)
		if err != nil {
			r.logger.ComponentError(logging.ComponentHost, "Failed to snapshot state for joiner",
				zap.String("socket_id", p.id), zap.Error(err))
		} else {
			r.send(p, protocol.SyncFullState{TargetSocketID: p.id, State: state})
		}
	}
	r.send(p, r.buildStatus())
}

func (r *Runtime) detach(p *peer) {
	if _, live := r.peers[p.id]; !live {
		return
	}
	delete(r.peers, p.id)
	_ = p.conn.Close()

	session, ok := r.registry.Unregister(p.id)
	if !ok {
		return
	}
	r.logger.ComponentInfo(logging.ComponentHost, "Client disconnected",
		zap.String("socket_id", p.id),
		zap.String("name", session.ClientName),
		zap.NamedError("reason", p.conn.Err()))
	r.broadcast(protocol.ClientLeft{SocketID: p.id}, "")

	for _, l := range r.locks.ReleaseHeldBy(p.id) {
		r.logger.ComponentDebug(logging.ComponentLocks, "Released lock of departed client",
			zap.String("field_id", l.FieldID), zap.String("socket_id", p.id))
		r.broadcast(protocol.LockUpdate{Status: protocol.LockUnlocked, FieldID: l.FieldID}, "")
	}
}

func (r *Runtime) handleDataUpdate(session registry.Session, m protocol.DataUpdate) {
	if m.Type == "" {
		return
	}
	// The Host's own edits are already in its store.
	if !session.IsHost {
		err := r.docs.Save(r.ctx, m.Type, m.Data, store.SaveOptions{SkipBroadcast: true})
		if err != nil {
			r.logger.ComponentWarn(logging.ComponentHost, "Dropping update that could not be applied",
				zap.String("socket_id", session.SocketID),
				zap.String("collection", m.Type),
				zap.Error(err))
			return
		}
	}
	r.broadcast(protocol.ForwardedUpdate{
		Type:           m.Type,
		Data:           m.Data,
		OriginSocketID: session.SocketID,
	}, session.SocketID)
}

func (r *Runtime) handleRequestFullState(p *peer) {
	state, err := r.docs.Snapshot(r.ctx)
	if err != nil {
		r.logger.ComponentError(logging.ComponentHost, "Failed to snapshot state",
			zap.String("socket_id", p.id), zap.Error(err))
		return
	}
	r.send(p, protocol.HydrateState{State: state})
}

func (r *Runtime) handleRequestLock(session registry.Session, m protocol.RequestLock) {
	if m.FieldID == "" {
		return
	}
	name := m.ClientName
	if name == "" {
		name = session.ClientName
	}
	p := r.peers[session.SocketID]

	out := r.locks.Request(m.FieldID, session.SocketID, name)
	if !out.Granted {
		r.send(p, protocol.LockDenied{FieldID: m.FieldID, Holder: out.Lock.HolderClientName})
		return
	}
	r.send(p, protocol.LockGranted{FieldID: m.FieldID})
	if out.Reacquired {
		return
	}
	r.logger.ComponentDebug(logging.ComponentLocks, "Lock granted",
		zap.String("field_id", m.FieldID), zap.String("holder", name))
	r.broadcast(protocol.LockUpdate{
		Status:     protocol.LockLocked,
		FieldID:    m.FieldID,
		ClientName: name,
		SocketID:   session.SocketID,
	}, "")
}

func (r *Runtime) handleReleaseLock(session registry.Session, m protocol.ReleaseLock) {
	if !r.locks.Release(m.FieldID, session.SocketID) {
		return
	}
	r.broadcast(protocol.LockUpdate{Status: protocol.LockUnlocked, FieldID: m.FieldID}, "")
}

// forceRelease drops a lock regardless of holder. Unlocked is broadcast even
// when nothing was held so stale client views converge.
func (r *Runtime) forceRelease(fieldID, by string) bool {
	if fieldID == "" {
		return false
	}
	prev, held := r.locks.ForceRelease(fieldID)
	if held {
		r.logger.ComponentInfo(logging.ComponentLocks, "Lock force released",
			zap.String("field_id", fieldID),
			zap.String("holder", prev.HolderClientName),
			zap.String("by", by))
	}
	r.broadcast(protocol.LockUpdate{Status: protocol.LockUnlocked, FieldID: fieldID}, "")
	return held
}

func (r *Runtime) handleRequestBuild(p *peer) {
	if r.builds == nil {
		r.send(p, protocol.BuildError{Message: "builds are not available on this host"})
		return
	}
	if err := r.builds.Start(r.ctx); err != nil {
		r.send(p, protocol.BuildError{Message: errors.GetErrorMessage(err)})
	}
}

func (r *Runtime) handleCancelBuild(p *peer) {
	if r.builds == nil || !r.builds.Cancel() {
		r.send(p, protocol.BuildError{Message: "no build in progress"})
	}
}

func (r *Runtime) handleBuildEvent(ev build.Event) {
	switch ev.Kind {
	case build.EventError:
		r.broadcast(protocol.BuildError{Message: ev.Message}, "")
	case build.EventStatus:
		r.broadcast(ev.Status.Message(), "")
	}
}

func (r *Runtime) buildStatus() protocol.BuildStatus {
	if r.builds == nil {
		return protocol.BuildStatus{}
	}
	return r.builds.Status().Message()
}

func (r *Runtime) send(p *peer, msg protocol.Message) {
	if p == nil {
		return
	}
	if err := p.conn.Send(msg); err != nil {
		r.logger.ComponentWarn(logging.ComponentHost, "Failed to send to peer",
			zap.String("socket_id", p.id),
			zap.String("event", string(msg.Event())),
			zap.Error(err))
	}
}

// broadcast sends msg to every registered session except exceptID, in join
// order.
func (r *Runtime) broadcast(msg protocol.Message, exceptID string) {
	for _, s := range r.registry.List() {
		if s.SocketID == exceptID {
			continue
		}
		r.send(r.peers[s.SocketID], msg)
	}
}

// Snapshot is a point-in-time view of the Host for status endpoints.
type Snapshot struct {
	Peers []registry.Session
	Locks []locks.Lock
	Build build.Status
}

// Snapshot reads the Host state through the loop.
func (r *Runtime) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := r.do(func() {
		snap.Peers = r.registry.List()
		snap.Locks = r.locks.Snapshot()
	})
	if err != nil {
		return Snapshot{}, err
	}
	if r.builds != nil {
		snap.Build = r.builds.Status()
	}
	return snap, nil
}

// ForceRelease drops the lock on fieldID on behalf of an operator.
func (r *Runtime) ForceRelease(fieldID string) (bool, error) {
	var held bool
	err := r.do(func() { held = r.forceRelease(fieldID, "admin") })
	return held, err
}

func (r *Runtime) String() string {
	return fmt.Sprintf("host(%v)", r.Addr())
}
