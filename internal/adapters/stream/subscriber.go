package stream

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errSubscriberClosed = errors.New("subscriber closed")

// Conn is the write side of one open stream. Write sends a whole frame and
// flushes it to the peer.
type Conn interface {
	Write(frame []byte) error
	Close() error
}

// Subscriber is one registered stream. Frames are written one at a time, and
// nothing reaches the Conn after close returns.
type Subscriber struct {
	id   uuid.UUID
	conn Conn

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(conn Conn) *Subscriber {
	return &Subscriber{
		id:   uuid.New(),
		conn: conn,
		done: make(chan struct{}),
	}
}

func (s *Subscriber) ID() uuid.UUID { return s.id }

// Done is closed once the subscriber has been deregistered.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSubscriberClosed
	}
	return s.conn.Write(frame)
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		// Waits for an in-flight write to finish.
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()

		_ = s.conn.Close()
	})
}
