package stream

import (
	"errors"
	"sync"
)

// recordingConn keeps every frame it is given.
type recordingConn struct {
	mu     sync.Mutex
	frames []string
	closed bool
	failOn int // fail the n-th write (1-based); 0 never fails
	writes int
}

func (c *recordingConn) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.failOn > 0 && c.writes >= c.failOn {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, string(frame))
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *recordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
