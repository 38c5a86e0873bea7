// Package pubsub carries "list changed" notifications between server
// instances and clients of the same user over Redis channels.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/foxxcyber/voicecart/internal/logger"
)

// Event is published whenever a user's remote list is written
type Event struct {
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Notifier publishes and receives change events
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, userID string, fn func(Event)) (unsubscribe func(), err error)
}

// RedisNotifier is a Notifier over one Redis channel per user
type RedisNotifier struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewRedisNotifier connects to addr and verifies the connection
func NewRedisNotifier(ctx context.Context, addr, prefix string, log *logger.Logger) (*RedisNotifier, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = "voicecart:list"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisNotifier{
		log:    logger.OrNop(log).With("component", "pubsub"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

// Publish announces a change for ev.UserID
func (n *RedisNotifier) Publish(ctx context.Context, ev Event) error {
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel(ev.UserID), raw).Err()
}

// Subscribe calls fn for every event on the user's channel until ctx is
// done or unsubscribe is called.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string, fn func(Event)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("callback required")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := n.rdb.Subscribe(ctx, n.channel(userID))

	// Ensures the subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					n.log.Warn("bad change event payload", "error", err)
					continue
				}
				fn(ev)
			}
		}
	}()

	return cancel, nil
}

// Close closes the Redis client
func (n *RedisNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}

func (n *RedisNotifier) channel(userID string) string {
	return n.prefix + ":" + userID
}
