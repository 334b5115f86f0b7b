package peersync

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrTransportClosed is returned by a transport after Close.
var ErrTransportClosed = errors.New("peersync: transport closed")

// MemoryBus connects in-process transports. Every snapshot published on any
// endpoint is delivered to every endpoint's subscribers, including its own.
type MemoryBus struct {
	out *fanout
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{out: newFanout()}
}

// Endpoint returns a new Transport attached to the bus.
func (b *MemoryBus) Endpoint() Transport {
	return &memoryTransport{bus: b}
}

type memoryTransport struct {
	bus    *MemoryBus
	closed atomic.Bool
}

func (t *memoryTransport) Publish(_ context.Context, snap Snapshot) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	t.bus.out.send(snap)
	return nil
}

func (t *memoryTransport) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	id, ch := t.bus.out.add(64)
	go func() {
		<-ctx.Done()
		t.bus.out.remove(id)
	}()
	return ch, nil
}

func (t *memoryTransport) Close() error {
	t.closed.Store(true)
	return nil
}
