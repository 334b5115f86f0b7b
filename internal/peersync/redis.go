package peersync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport publishes JSON snapshots on a redis pub/sub channel.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisTransport wraps client.
//
// Precondition: client must be non-nil; channel must be non-empty.
func NewRedisTransport(client *redis.Client, channel string, logger *zap.Logger) *RedisTransport {
	return &RedisTransport{client: client, channel: channel, logger: logger}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, channel string, logger *zap.Logger) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return NewRedisTransport(client, channel, logger), nil
}

// Publish implements Transport.
func (t *RedisTransport) Publish(ctx context.Context, snap Snapshot) error {
	b, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", t.channel, err)
	}
	return nil
}

// Subscribe implements Transport. Malformed messages are logged and skipped.
func (t *RedisTransport) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	ps := t.client.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", t.channel, err)
	}
	out := make(chan Snapshot, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := t.decode(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *RedisTransport) decode(payload string) (Snapshot, error) {
	snap, err := Decode([]byte(payload))
	if err != nil {
		t.logger.Warn("dropping malformed snapshot",
			zap.String("channel", t.channel),
			zap.Error(err),
		)
	}
	return snap, err
}

// Close implements Transport.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
