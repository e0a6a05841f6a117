// Package whisper owns the lifecycle of stored message records: collision-free
// identifier issuance, create-if-absent insertion, TTL-based expiry, and
// burn-on-read deletion.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/whisper/internal/crypto"
	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrExpired is returned when a whisper's TTL elapsed before it was read.
// The record is deleted as a side effect of discovering this.
var ErrExpired = errors.New("whisper expired")

// ErrGenerationExhausted is returned when identifier generation keeps
// colliding. It signals a retryable infrastructure failure, not user error.
var ErrGenerationExhausted = errors.New("could not generate a unique whisper id")

// maxGenerateAttempts bounds collision retries during identifier issuance.
const maxGenerateAttempts = 10

// Store manages whisper records on top of a storage backend. The store
// exclusively owns the records; once one is deleted it is gone for good.
type Store struct {
	backend storage.Backend
}

// NewStore creates a Store.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

// Create inserts a new waiting whisper under id, computing its expiry from
// the fixed TTL. It fails with storage.ErrAlreadyExists if id is taken —
// this atomic create-if-absent guards the generator's collision window.
func (s *Store) Create(ctx context.Context, id string, env *crypto.Envelope) error {
	now := time.Now().UTC()
	w := &models.Whisper{
		ID:         id,
		Ciphertext: env.Ciphertext,
		Salt:       env.Salt,
		IV:         env.IV,
		Status:     models.StatusWaiting,
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.WhisperTTL),
	}
	if err := s.backend.CreateWhisper(ctx, w); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("creating whisper: %w", err)
	}
	return nil
}

// Fetch returns the whisper stored under id without consuming it. An expired
// record is deleted lazily and reported as ErrExpired; it is never handed to
// a caller as valid content.
func (s *Store) Fetch(ctx context.Context, id string) (*models.Whisper, error) {
	w, err := s.backend.GetWhisper(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("fetching whisper: %w", err)
	}
	if w.Expired(time.Now().UTC()) {
		if err := s.backend.DeleteWhisper(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("failed to purge expired whisper")
		}
		return nil, ErrExpired
	}
	return w, nil
}

// Burn marks the whisper read and immediately deletes it. The status
// transition closes the access window even if the deletion is briefly
// delayed: a racing second reader fails at MarkWhisperRead.
func (s *Store) Burn(ctx context.Context, id string) error {
	if err := s.backend.MarkWhisperRead(ctx, id); err != nil {
		return err
	}
	if err := s.backend.DeleteWhisper(ctx, id); err != nil {
		return fmt.Errorf("deleting whisper: %w", err)
	}
	return nil
}

// Delete removes the whisper under id. Idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.backend.DeleteWhisper(ctx, id)
}

// Exists is the existence probe used by identifier generation.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.backend.WhisperExists(ctx, id)
}

// GenerateID issues an identifier not currently in use. The exists check is
// best-effort; the residual race is closed by Create's create-if-absent
// contract. After maxGenerateAttempts collisions it gives up with
// ErrGenerationExhausted.
func (s *Store) GenerateID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		taken, err := s.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("probing whisper id: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}
