// Package protocol defines the messages exchanged between the Host and its
// peers. Every message is one variant of a closed set; the wire form is a JSON
// envelope {"event": ..., "payload": ...}.
package protocol

import "encoding/json"

// Event names the message variant on the wire.
type Event string

const (
	EventRegisterClient    Event = "register-client"
	EventInitialState      Event = "initial-state"
	EventSyncFullState     Event = "sync-full-state"
	EventHydrateState      Event = "hydrate-state"
	EventRequestFullState  Event = "request-full-state"
	EventDataUpdate        Event = "data-update"
	EventForwardedUpdate   Event = "forwarded-update"
	EventRequestLock       Event = "request-lock"
	EventReleaseLock       Event = "release-lock"
	EventAdminForceRelease Event = "admin-force-release"
	EventLockGranted       Event = "lock-granted"
	EventLockDenied        Event = "lock-denied"
	EventLockUpdate        Event = "lock-update"
	EventClientJoined      Event = "client-joined"
	EventClientLeft        Event = "client-left"
	EventRequestBuild      Event = "request-build"
	EventCancelBuild       Event = "cancel-build"
	EventBuildStatus       Event = "build-status"
	EventBuildError        Event = "build-error"
)

// Message is implemented by every variant.
type Message interface {
	Event() Event
}

// LockStatus is carried by lock-update.
type LockStatus string

const (
	LockLocked   LockStatus = "locked"
	LockUnlocked LockStatus = "unlocked"
)

// State maps a collection name to its JSON document.
type State map[string]json.RawMessage

// LockInfo is the broadcast view of a held field lock.
type LockInfo struct {
	FieldID    string `json:"fieldId"`
	SocketID   string `json:"socketId"`
	ClientName string `json:"clientName"`
	Timestamp  int64  `json:"timestamp"`
}

// PeerInfo is the broadcast view of a registered session.
type PeerInfo struct {
	SocketID   string `json:"socketId"`
	ClientName string `json:"clientName"`
	IsHost     bool   `json:"isHost"`
	JoinedAt   int64  `json:"joinedAt"`
}

// RegisterClient is the first message a peer sends after connecting.
type RegisterClient struct {
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// InitialState tells a newly registered peer its socket id, the current
// locks and the roster.
type InitialState struct {
	SocketID string     `json:"socketId"`
	Locks    []LockInfo `json:"locks"`
	Clients  []PeerInfo `json:"clients"`
}

// SyncFullState carries the Host's complete document snapshot for one peer.
type SyncFullState struct {
	TargetSocketID string `json:"targetSocketId"`
	State          State  `json:"state"`
}

// HydrateState answers RequestFullState.
type HydrateState struct {
	State State `json:"state"`
}

type RequestFullState struct{}

// DataUpdate announces a local edit of one collection.
type DataUpdate struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ForwardedUpdate is a DataUpdate relayed by the Host.
type ForwardedUpdate struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	OriginSocketID string          `json:"originSocketId"`
}

type RequestLock struct {
	FieldID    string `json:"fieldId"`
	ClientName string `json:"clientName"`
}

type ReleaseLock struct {
	FieldID string `json:"fieldId"`
}

type AdminForceRelease struct {
	FieldID string `json:"fieldId"`
}

type LockGranted struct {
	FieldID string `json:"fieldId"`
}

// LockDenied names the current holder of the requested field.
type LockDenied struct {
	FieldID string `json:"fieldId"`
	Holder  string `json:"holder"`
}

type LockUpdate struct {
	Status     LockStatus `json:"status"`
	FieldID    string     `json:"fieldId"`
	ClientName string     `json:"clientName,omitempty"`
	SocketID   string     `json:"socketId,omitempty"`
}

type ClientJoined struct {
	Client PeerInfo `json:"client"`
}

type ClientLeft struct {
	SocketID string `json:"socketId"`
}

type RequestBuild struct{}

type CancelBuild struct{}

// BuildStatus mirrors the Host's build coordinator. LastBuildTime is unix
// milliseconds, zero when no build has finished yet.
type BuildStatus struct {
	IsBuildInProgress bool   `json:"isBuildInProgress"`
	LastBuildTime     int64  `json:"lastBuildTime,omitempty"`
	Stage             string `json:"stage,omitempty"`
}

type BuildError struct {
	Message string `json:"message"`
}

func (RegisterClient) Event() Event    { return EventRegisterClient }
func (InitialState) Event() Event      { return EventInitialState }
func (SyncFullState) Event() Event     { return EventSyncFullState }
func (HydrateState) Event() Event      { return EventHydrateState }
func (RequestFullState) Event() Event  { return EventRequestFullState }
func (DataUpdate) Event() Event        { return EventDataUpdate }
func (ForwardedUpdate) Event() Event   { return EventForwardedUpdate }
func (RequestLock) Event() Event       { return EventRequestLock }
func (ReleaseLock) Event() Event       { return EventReleaseLock }
func (AdminForceRelease) Event() Event { return EventAdminForceRelease }
func (LockGranted) Event() Event       { return EventLockGranted }
func (LockDenied) Event() Event        { return EventLockDenied }
func (LockUpdate) Event() Event        { return EventLockUpdate }
func (ClientJoined) Event() Event      { return EventClientJoined }
func (ClientLeft) Event() Event        { return EventClientLeft }
func (RequestBuild) Event() Event      { return EventRequestBuild }
func (CancelBuild) Event() Event       { return EventCancelBuild }
func (BuildStatus) Event() Event       { return EventBuildStatus }
func (BuildError) Event() Event        { return EventBuildError }
