package client

import "errors"

var (
	// ErrNotConnected is returned by operations that need a live Host
	// connection.
	ErrNotConnected = errors.New("not connected to a host")

	// ErrAlreadyAttached is returned by Attach while a connection is live.
	ErrAlreadyAttached = errors.New("client already attached to a host")
)

// OpError records which outgoing event failed.
type OpError struct {
	Op  string // event name, e.g. "request-lock"
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }
