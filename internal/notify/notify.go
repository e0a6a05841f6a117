// Package notify publishes whisper lifecycle events so interested parties can
// observe reads without polling the store. Delivery is best-effort: publish
// failures are logged and never affect the request that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Channel is the pub/sub channel whisper events are published on.
const Channel = "whisper.events"

// Event is one lifecycle notification. Reason distinguishes a burn after a
// successful read from a TTL expiry.
type Event struct {
	Type   string    `json:"type"` // "created" or "burned"
	ID     string    `json:"id"`
	Reason string    `json:"reason,omitempty"` // "read" or "expired"
	At     time.Time `json:"at"`
}

// Publisher emits whisper lifecycle events.
type Publisher interface {
	WhisperCreated(ctx context.Context, id string)
	WhisperBurned(ctx context.Context, id, reason string)
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a RedisPublisher over an existing connection.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) WhisperCreated(ctx context.Context, id string) {
	p.publish(ctx, Event{Type: "created", ID: id, At: time.Now().UTC()})
}

func (p *RedisPublisher) WhisperBurned(ctx context.Context, id, reason string) {
	p.publish(ctx, Event{Type: "burned", ID: id, Reason: reason, At: time.Now().UTC()})
}

func (p *RedisPublisher) publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		log.Warn().Err(err).Str("id", ev.ID).Str("type", ev.Type).Msg("event publish failed")
	}
}

// NoopPublisher discards all events. Used when no pub/sub transport is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) WhisperCreated(ctx context.Context, id string) {}

func (NoopPublisher) WhisperBurned(ctx context.Context, id, reason string) {}
