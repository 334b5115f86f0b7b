package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ApplyFunc receives an inbound snapshot from a peer.
type ApplyFunc func(Snapshot)

// Hub fans snapshots out to every transport and merges what they receive.
type Hub struct {
	origin     string
	transports []Transport
	logger     *zap.Logger

	mu      sync.Mutex
	version int64
	seen    map[string]int64
}

// NewHub creates a Hub identifying itself as origin.
//
// Precondition: origin must be non-empty and unique among peers; logger must be non-nil.
func NewHub(origin string, logger *zap.Logger, transports ...Transport) *Hub {
	return &Hub{
		origin:     origin,
		transports: transports,
		logger:     logger,
		seen:       make(map[string]int64),
	}
}

// Origin returns the identity stamped on outgoing snapshots.
func (h *Hub) Origin() string { return h.origin }

// Enabled reports whether the hub has any transport.
func (h *Hub) Enabled() bool { return len(h.transports) > 0 }

// Offer stamps snap with this hub's origin and the next version, then
// publishes it on every transport concurrently.
//
// Postcondition: Returns the joined errors of every failing transport.
func (h *Hub) Offer(ctx context.Context, snap Snapshot) error {
	if len(h.transports) == 0 {
		return nil
	}
	h.mu.Lock()
	h.version++
	snap.Version = h.version
	h.mu.Unlock()
	snap.Origin = h.origin
	snap.SentAt = time.Now().UTC()

	var mu sync.Mutex
	var errs []error
	var g errgroup.Group
	for i, t := range h.transports {
		g.Go(func() error {
			if err := t.Publish(ctx, snap); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		h.logger.Warn("snapshot publish failed",
			zap.String("room", snap.Room),
			zap.Int64("version", snap.Version),
			zap.Int("failures", len(errs)),
		)
		return errors.Join(errs...)
	}
	h.logger.Debug("snapshot published",
		zap.String("room", snap.Room),
		zap.Int64("version", snap.Version),
	)
	return nil
}

// Run subscribes to every transport and calls apply for each inbound
// snapshot from another origin. Redelivered or stale versions from the same
// origin and room are dropped. Blocks until ctx is done or a subscription fails.
//
// Postcondition: when Run returns, no goroutine it started calls apply again.
func (h *Hub) Run(ctx context.Context, apply ApplyFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range h.transports {
		ch, err := t.Subscribe(gctx)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("subscribing transport %d: %w", i, err)
		}
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case snap, ok := <-ch:
					if !ok {
						if gctx.Err() != nil {
							return nil
						}
						return fmt.Errorf("transport %d: subscription closed", i)
					}
					if h.accept(snap) {
						apply(snap)
					}
				}
			}
		})
	}
	return g.Wait()
}

func (h *Hub) accept(snap Snapshot) bool {
	if snap.Origin == h.origin {
		return false
	}
	key := snap.Origin + "\x00" + snap.Room
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.seen[key]; ok && snap.Version <= last {
		h.logger.Debug("dropping stale snapshot",
			zap.String("origin", snap.Origin),
			zap.Int64("version", snap.Version),
			zap.Int64("last", last),
		)
		return false
	}
	h.seen[key] = snap.Version
	return true
}

// Close closes every transport.
func (h *Hub) Close() error {
	var errs []error
	for _, t := range h.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
