// Package locks implements the Host's field lock table. A field can be held
// by at most one socket at a time. The table is not safe for concurrent use;
// the Host event loop is its only writer.
package locks

import (
	"sort"
	"time"

	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

// Lock is an advisory edit lock on one field.
type Lock struct {
	FieldID          string
	HolderSocketID   string
	HolderClientName string
	Timestamp        time.Time
}

// Info converts the lock to its broadcast form.
func (l Lock) Info() protocol.LockInfo {
	return protocol.LockInfo{
		FieldID:    l.FieldID,
		SocketID:   l.HolderSocketID,
		ClientName: l.HolderClientName,
		Timestamp:  l.Timestamp.UnixMilli(),
	}
}

// Outcome is the result of a Request.
type Outcome struct {
	Granted bool
	// Lock is the lock now held on the field: the requester's when granted,
	// the current holder's when denied.
	Lock Lock
	// Reacquired is set when the requester already held the field.
	Reacquired bool
}

// Table maps field ids to locks.
type Table struct {
	locks map[string]Lock
	now   func() time.Time
}

// NewTable returns an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string]Lock), now: time.Now}
}

// Request tries to take fieldID for socketID.
func (t *Table) Request(fieldID, socketID, clientName string) Outcome {
	if cur, ok := t.locks[fieldID]; ok {
		if cur.HolderSocketID == socketID {
			return Outcome{Granted: true, Lock: cur, Reacquired: true}
		}
		return Outcome{Granted: false, Lock: cur}
	}
	l := Lock{
		FieldID:          fieldID,
		HolderSocketID:   socketID,
		HolderClientName: clientName,
		Timestamp:        t.now(),
	}
	t.locks[fieldID] = l
	return Outcome{Granted: true, Lock: l}
}

// Release drops fieldID if socketID holds it and reports whether it did.
func (t *Table) Release(fieldID, socketID string) bool {
	cur, ok := t.locks[fieldID]
	if !ok || cur.HolderSocketID != socketID {
		return false
	}
	delete(t.locks, fieldID)
	return true
}

// ForceRelease drops fieldID regardless of holder. The previous lock is
// returned when there was one.
func (t *Table) ForceRelease(fieldID string) (Lock, bool) {
	cur, ok := t.locks[fieldID]
	if ok {
		delete(t.locks, fieldID)
	}
	return cur, ok
}

// ReleaseHeldBy drops every lock held by socketID, sorted by field id.
func (t *Table) ReleaseHeldBy(socketID string) []Lock {
	var released []Lock
	for id, l := range t.locks {
		if l.HolderSocketID == socketID {
			released = append(released, l)
			delete(t.locks, id)
		}
	}
	sortByField(released)
	return released
}

// Get returns the lock on fieldID.
func (t *Table) Get(fieldID string) (Lock, bool) {
	l, ok := t.locks[fieldID]
	return l, ok
}

// Len returns the number of held locks.
func (t *Table) Len() int {
	return len(t.locks)
}

// Snapshot returns all locks sorted by field id.
func (t *Table) Snapshot() []Lock {
	out := make([]Lock, 0, len(t.locks))
	for _, l := range t.locks {
		out = append(out, l)
	}
	sortByField(out)
	return out
}

// Infos returns Snapshot in broadcast form.
func (t *Table) Infos() []protocol.LockInfo {
	snap := t.Snapshot()
	out := make([]protocol.LockInfo, len(snap))
	for i, l := range snap {
		out[i] = l.Info()
	}
	return out
}

func sortByField(ls []Lock) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].FieldID < ls[j].FieldID })
}
