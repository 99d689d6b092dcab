package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unipool/unipool-backend/internal/engine"
)

var RedisClient *redis.Client

// deltaChannel is the pub/sub channel every API instance shares. Each
// instance publishes its committed deltas here and feeds received ones into
// its local websocket hub, so clients converge regardless of which instance
// accepted the mutation.
const deltaChannel = "carpool:deltas"

// InitRedis initializes the Redis client. Redis is optional: without
// REDIS_URL the delta bridge delivers locally only.
func InitRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	ctx := context.Background()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return nil
}

// DeltaBridge implements engine.Bus. With redis configured it fans deltas
// out through pub/sub; otherwise it hands them straight to the local hub.
type DeltaBridge struct {
	rdb *redis.Client
	hub *Hub
}

func NewDeltaBridge(rdb *redis.Client, hub *Hub) *DeltaBridge {
	return &DeltaBridge{rdb: rdb, hub: hub}
}

// Publish sends a delta to every instance's hub. Failures fall back to local
// delivery so the originating instance's subscribers still see the change.
func (b *DeltaBridge) Publish(delta engine.Delta) {
	if b.rdb == nil {
		b.hub.Publish(delta)
		return
	}

	data, err := json.Marshal(delta)
	if err != nil {
		log.Printf("Error marshaling delta: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, deltaChannel, data).Err(); err != nil {
		log.Printf("Failed to publish delta to redis: %v", err)
		b.hub.Publish(delta)
	}
}

// Run consumes the shared channel and feeds the local hub. It reconnects on
// subscription errors and returns when ctx is cancelled.
func (b *DeltaBridge) Run(ctx context.Context) {
	if b.rdb == nil {
		return
	}

	for {
		if err := b.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Redis delta subscription ended: %v; reconnecting", err)
			time.Sleep(time.Second)
		}
	}
}

func (b *DeltaBridge) consume(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, deltaChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return errors.New("subscription channel closed")
			}
			var delta engine.Delta
			if err := json.Unmarshal([]byte(msg.Payload), &delta); err != nil {
				log.Printf("Error unmarshaling delta from redis: %v", err)
				continue
			}
			b.hub.Publish(delta)
		}
	}
}
