package testutil

import (
	"errors"
	"sync"

	"github.com/mcoot/skirmish/internal/protocol"
)

var ErrConnClosed = errors.New("fake connection closed")

// FakeConn is an in-memory client connection that records everything sent to it
type FakeConn struct {
	id uint64

	mu         sync.Mutex
	sent       []protocol.Message
	closed     bool
	closeCount int
	sendErr    error
}

// NewFakeConn creates an open connection with the given id
func NewFakeConn(id uint64) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) ID() uint64 { return c.id }

func (c *FakeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCount++
	return nil
}

func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// CloseCount returns how many times Close was called
func (c *FakeConn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// FailSends makes every following Send return err
func (c *FakeConn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of every message sent so far
func (c *FakeConn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

// ClearSent forgets recorded messages
func (c *FakeConn) ClearSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// SentOfType returns the recorded messages of type T in send order
func SentOfType[T protocol.Message](c *FakeConn) []T {
	var out []T
	for _, m := range c.Sent() {
		if t, ok := m.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
