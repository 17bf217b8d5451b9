package transport

import (
	"sync"

	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

// Pipe returns two connected in-process Conns. Messages are cloned through
// the wire encoding so neither end shares memory with the other. The Host
// uses it for its own loopback session.
func Pipe() (Conn, Conn) {
	return PipeSize(DefaultOptions().SendQueueSize)
}

// PipeSize is Pipe with an explicit per-direction queue size.
func PipeSize(size int) (Conn, Conn) {
	if size <= 0 {
		size = DefaultOptions().SendQueueSize
	}
	shared := &pipeState{done: make(chan struct{})}
	a := newPipeEnd(shared, size, "pipe:a")
	b := newPipeEnd(shared, size, "pipe:b")
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

type pipeState struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (s *pipeState) close(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()
		close(s.done)
	})
}

type pipeEnd struct {
	shared *pipeState
	peer   *pipeEnd
	name   string
	queue  chan protocol.Message
	inbox  chan protocol.Message
}

func newPipeEnd(shared *pipeState, size int, name string) *pipeEnd {
	return &pipeEnd{
		shared: shared,
		name:   name,
		queue:  make(chan protocol.Message, size),
		inbox:  make(chan protocol.Message),
	}
}

// pump moves queued messages to the unbuffered inbox so Close can end the
// inbox without racing a sender.
func (p *pipeEnd) pump() {
	defer close(p.inbox)
	for {
		select {
		case msg := <-p.queue:
			select {
			case p.inbox <- msg:
			case <-p.shared.done:
				return
			}
		case <-p.shared.done:
			return
		}
	}
}

func (p *pipeEnd) Send(msg protocol.Message) error {
	cp, err := protocol.Clone(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	select {
	case p.peer.queue <- cp:
		return nil
	case <-p.shared.done:
		return ErrClosed
	default:
		p.shared.close(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

func (p *pipeEnd) Inbox() <-chan protocol.Message { return p.inbox }

func (p *pipeEnd) Err() error {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	return p.shared.err
}

func (p *pipeEnd) RemoteAddr() string { return p.peer.name }

func (p *pipeEnd) Close() error {
	p.shared.close(ErrClosed)
	return nil
}
