// Package registry keeps the Host's roster of registered sessions in join
// order. Like the lock table it is owned by the Host event loop.
package registry

import (
	"time"

	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

// Session is one registered connection.
type Session struct {
	SocketID   string
	ClientName string
	IsHost     bool
	JoinedAt   time.Time
}

// Info converts the session to its broadcast form.
func (s Session) Info() protocol.PeerInfo {
	return protocol.PeerInfo{
		SocketID:   s.SocketID,
		ClientName: s.ClientName,
		IsHost:     s.IsHost,
		JoinedAt:   s.JoinedAt.UnixMilli(),
	}
}

type Registry struct {
	order    []string
	sessions map[string]Session
	now      func() time.Time
}

func New() *Registry {
	return &Registry{sessions: make(map[string]Session), now: time.Now}
}

// Register adds a session. Socket ids are unique; client names are not.
func (r *Registry) Register(socketID, clientName string, isHost bool) (Session, error) {
	if socketID == "" {
		return Session{}, errors.NewValidationError("socketId", "socket id is required", socketID)
	}
	if _, ok := r.sessions[socketID]; ok {
		return Session{}, errors.NewConflictError("session", socketID).
			WithMessage("socket " + socketID + " is already registered")
	}
	s := Session{
		SocketID:   socketID,
		ClientName: clientName,
		IsHost:     isHost,
		JoinedAt:   r.now(),
	}
	r.sessions[socketID] = s
	r.order = append(r.order, socketID)
	return s, nil
}

// Unregister removes the session for socketID.
func (r *Registry) Unregister(socketID string) (Session, bool) {
	s, ok := r.sessions[socketID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, socketID)
	for i, id := range r.order {
		if id == socketID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

func (r *Registry) Get(socketID string) (Session, bool) {
	s, ok := r.sessions[socketID]
	return s, ok
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// List returns sessions in join order.
func (r *Registry) List() []Session {
	out := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Infos returns List in broadcast form.
func (r *Registry) Infos() []protocol.PeerInfo {
	list := r.List()
	out := make([]protocol.PeerInfo, len(list))
	for i, s := range list {
		out[i] = s.Info()
	}
	return out
}

// HostSession returns the Host's own loopback session, if registered.
func (r *Registry) HostSession() (Session, bool) {
	for _, id := range r.order {
		if s := r.sessions[id]; s.IsHost {
			return s, true
		}
	}
	return Session{}, false
}
