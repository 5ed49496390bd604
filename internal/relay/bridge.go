package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge connects hubs of several server instances through a Redis
// pub/sub channel.  Local events are published with this instance's origin
// id; incoming events with the same origin are ignored, others are
// delivered to local subscribers without being forwarded again.
type RedisBridge struct {
	hub     *Hub
	rdb     *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBridge returns a bridge for hub over channel.
func NewRedisBridge(hub *Hub, rdb *redis.Client, channel string, log *zap.Logger) *RedisBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{
		hub:     hub,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Origin returns the id stamped on events leaving this instance.
func (b *RedisBridge) Origin() string { return b.origin }

// Start installs the forwarder on the hub and begins receiving remote
// events in the background until ctx is cancelled or Close is called.
func (b *RedisBridge) Start(ctx context.Context) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}
	b.mu.Lock()
	b.pubsub = ps
	b.done = make(chan struct{})
	b.mu.Unlock()

	b.hub.SetForwarder(b.forward)

	go func() {
		defer close(b.done)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.receive([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBridge) forward(ctx context.Context, e Event) {
	e.Origin = b.origin
	payload, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("relay bridge: marshal failed", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("relay bridge: publish failed", zap.String("table", e.Table), zap.Error(err))
	}
}

// receive decodes a remote payload and delivers it locally.  It reports
// whether the event was delivered.
func (b *RedisBridge) receive(payload []byte) bool {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		b.log.Warn("relay bridge: bad payload", zap.Error(err))
		return false
	}
	if e.Origin == b.origin || e.Table == "" {
		return false
	}
	b.hub.Deliver(e)
	return true
}

// Close stops receiving and removes the forwarder.
func (b *RedisBridge) Close() error {
	b.hub.SetForwarder(nil)
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
