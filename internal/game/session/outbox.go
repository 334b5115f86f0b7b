// Package session orchestrates one hero-versus-enemy game per connection and
// tracks live games by room for snapshot replication.
package session

import (
	"fmt"
	"sync"
)

// Outbox queues asynchronous notices (peer updates, system messages) for the
// frontend of a single game.
type Outbox struct {
	id     string
	events chan string
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given game ID.
//
// Precondition: id must be non-empty.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Outbox{id: id, events: make(chan string, bufferSize)}
}

// Push enqueues msg.
//
// Postcondition: returns an error if the outbox is closed or full.
func (o *Outbox) Push(msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.events <- msg:
		return nil
	default:
		return fmt.Errorf("outbox %s is full", o.id)
	}
}

// Events returns the read side of the outbox.
func (o *Outbox) Events() <-chan string {
	return o.events
}

// Close closes the events channel. It is idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
