package client

// EventKind identifies a UI-facing notification.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventDisconnected  EventKind = "disconnected"
	EventHydrated      EventKind = "hydrated"
	EventUpdated       EventKind = "updated"
	EventLockGranted   EventKind = "lock-granted"
	EventLockDenied    EventKind = "lock-denied"
	EventLocksChanged  EventKind = "locks-changed"
	EventRosterChanged EventKind = "roster-changed"
	EventBuildStatus   EventKind = "build-status"
	EventBuildError    EventKind = "build-error"
)

// Event is published on Client.Events.
type Event struct {
	Kind EventKind
	// FieldID is set for lock events.
	FieldID string
	// Holder names the current lock holder on EventLockDenied.
	Holder string
	// Collection is set on EventUpdated.
	Collection string
	// Message is a human readable alert.
	Message string
}
