// Package transport carries protocol messages between a peer and the Host.
// A Conn is full duplex: Send queues an outbound message and Inbox yields
// inbound ones until the connection ends.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

var (
	// ErrClosed is returned by Send after the connection ended.
	ErrClosed = errors.New("connection closed")

	// ErrSlowConsumer is returned by Send when the outbound queue is full.
	// The connection is closed as well.
	ErrSlowConsumer = errors.New("send queue full")
)

// Conn is one duplex session.
type Conn interface {
	// Send queues msg without blocking.
	Send(msg protocol.Message) error
	// Inbox is closed when the connection ends.
	Inbox() <-chan protocol.Message
	// Err reports why the connection ended, nil while it is open.
	Err() error
	RemoteAddr() string
	Close() error
}

// Dialer opens a Conn to a Host address (host:port).
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Options tune a connection.
type Options struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	// MaxMessageSize caps an inbound frame. It must fit a full-state
	// hydration of the largest site.
	MaxMessageSize int64
}

// DefaultOptions mirrors the collaboration config defaults.
func DefaultOptions() Options {
	return Options{
		SendQueueSize: 256,
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		// 64 MiB
		MaxMessageSize: 64 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = d.SendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	return o
}
