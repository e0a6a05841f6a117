package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/org/whisper/pkg/models"
	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

// consumeRetries bounds the optimistic WATCH loop in ConsumeCredit.
const consumeRetries = 5

// RedisBackend is a Backend backed by Redis. Whisper expiry piggybacks on
// native key TTLs; the explicit DeleteExpiredWhispers sweep is a no-op here.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(opts *redis.Options) (*RedisBackend, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBackend{client: client}, nil
}

// Client exposes the underlying connection for pub/sub wiring.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Close() {
	_ = r.client.Close()
}

// --- Cards ---

func (r *RedisBackend) GetCard(ctx context.Context, id string) (*models.Card, error) {
	data, err := r.client.Get(ctx, cardKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeCard(data)
}

// SeedCard installs a card record. Dev-mode helper; production cards are
// provisioned out-of-band.
func (r *RedisBackend) SeedCard(ctx context.Context, card *models.Card) error {
	data, err := encodeCard(card)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cardKey(card.ID), data, 0).Err()
}

func (r *RedisBackend) ConsumeCredit(ctx context.Context, id string, kind models.CreditKind) (*models.Card, error) {
	key := cardKey(id)
	var result *models.Card

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		card, err := decodeCard(data)
		if err != nil {
			return err
		}
		if !card.Active {
			return ErrNotFound
		}

		switch kind {
		case models.CreditSend:
			if card.SendCredits <= 0 {
				return ErrExhausted
			}
			card.SendCredits--
		case models.CreditRead:
			if card.ReadCredits <= 0 {
				return ErrExhausted
			}
			card.ReadCredits--
		}
		card.UpdatedAt = time.Now().UTC()

		newData, err := encodeCard(card)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = card
		return nil
	}

	for i := 0; i < consumeRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
}

// --- Whispers ---

func (r *RedisBackend) CreateWhisper(ctx context.Context, w *models.Whisper) error {
	data, err := encodeWhisper(w)
	if err != nil {
		return err
	}
	ttl := time.Until(w.ExpiresAt)
	if ttl <= 0 {
		return ErrAlreadyExists
	}
	ok, err := r.client.SetNX(ctx, whisperKey(w.ID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisBackend) GetWhisper(ctx context.Context, id string) (*models.Whisper, error) {
	data, err := r.client.Get(ctx, whisperKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeWhisper(data)
}

func (r *RedisBackend) MarkWhisperRead(ctx context.Context, id string) error {
	key := whisperKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		w, err := decodeWhisper(data)
		if err != nil {
			return err
		}
		if w.Status != models.StatusWaiting {
			return ErrNotFound
		}
		now := time.Now().UTC()
		w.Status = models.StatusRead
		w.ReadAt = &now

		newData, err := encodeWhisper(w)
		if err != nil {
			return err
		}
		ttl := tx.TTL(ctx, key).Val()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl > 0 {
				pipe.Set(ctx, key, newData, ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < consumeRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (r *RedisBackend) DeleteWhisper(ctx context.Context, id string) error {
	return r.client.Del(ctx, whisperKey(id)).Err()
}

func (r *RedisBackend) WhisperExists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, whisperKey(id)).Result()
	return n > 0, err
}

// DeleteExpiredWhispers is a no-op: Redis evicts whisper keys via native TTL.
func (r *RedisBackend) DeleteExpiredWhispers(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// --- Metrics ---

func (r *RedisBackend) CountWhispers(ctx context.Context) (int64, error) {
	return r.countKeys(ctx, "whisper:*")
}

func (r *RedisBackend) CountActiveCards(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, "card:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		card, err := decodeCard(data)
		if err != nil {
			continue
		}
		if card.Active && (card.SendCredits > 0 || card.ReadCredits > 0) {
			count++
		}
	}
	return count, iter.Err()
}

func (r *RedisBackend) countKeys(ctx context.Context, pattern string) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// Helpers

func cardKey(id string) string {
	return "card:" + id
}

func whisperKey(id string) string {
	return "whisper:" + id
}

func encodeCard(c *models.Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCard(data []byte) (*models.Card, error) {
	var c models.Card
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeWhisper(w *models.Whisper) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeWhisper(data []byte) (*models.Whisper, error) {
	var w models.Whisper
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, err
	}
	return &w, nil
}
