package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned by Decode for an event outside the known set.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformed is returned by Decode when the envelope or payload is not valid JSON.
	ErrMalformed = errors.New("malformed message")
)

type envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var decoders = map[Event]func(json.RawMessage) (Message, error){
	EventRegisterClient:    decodeAs[RegisterClient],
	EventInitialState:      decodeAs[InitialState],
	EventSyncFullState:     decodeAs[SyncFullState],
	EventHydrateState:      decodeAs[HydrateState],
	EventRequestFullState:  decodeAs[RequestFullState],
	EventDataUpdate:        decodeAs[DataUpdate],
	EventForwardedUpdate:   decodeAs[ForwardedUpdate],
	EventRequestLock:       decodeAs[RequestLock],
	EventReleaseLock:       decodeAs[ReleaseLock],
	EventAdminForceRelease: decodeAs[AdminForceRelease],
	EventLockGranted:       decodeAs[LockGranted],
	EventLockDenied:        decodeAs[LockDenied],
	EventLockUpdate:        decodeAs[LockUpdate],
	EventClientJoined:      decodeAs[ClientJoined],
	EventClientLeft:        decodeAs[ClientLeft],
	EventRequestBuild:      decodeAs[RequestBuild],
	EventCancelBuild:       decodeAs[CancelBuild],
	EventBuildStatus:       decodeAs[BuildStatus],
	EventBuildError:        decodeAs[BuildError],
}

func decodeAs[T Message](raw json.RawMessage) (Message, error) {
	var m T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode wraps msg in its envelope.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return json.Marshal(envelope{Event: msg.Event(), Payload: payload})
}

// Decode parses an envelope into its concrete variant.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	decode, ok := decoders[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	msg, err := decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return msg, nil
}

// Clone round-trips msg through the wire form so the copy shares no memory
// with the original.
func Clone(msg Message) (Message, error) {
	b, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}
