package api

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus relays live feed events over a redis pub/sub channel so an API
// server in another process can serve the daemon's feed.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBus(rdb *redis.Client, channel string, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, channel: channel, log: log.Named("bus")}
}

// Publish implements the pipeline publisher.
func (b *RedisBus) Publish(kind string, payload any) {
	data, err := encodeEvent(kind, payload)
	if err != nil {
		b.log.Warn("encode event", zap.String("type", kind), zap.Error(err))
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, data).Err(); err != nil {
		b.log.Warn("publish event", zap.String("channel", b.channel), zap.Error(err))
	}
}

// Forward copies every message on the channel into hub until ctx is done.
func (b *RedisBus) Forward(ctx context.Context, hub *Hub) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("forwarding events", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			hub.PublishRaw([]byte(msg.Payload))
		}
	}
}

// Fanout publishes to several publishers.
type Fanout []interface{ Publish(kind string, payload any) }

func (f Fanout) Publish(kind string, payload any) {
	for _, p := range f {
		p.Publish(kind, payload)
	}
}
