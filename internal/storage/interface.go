package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/whisper/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when trying to create a resource that already exists.
var ErrAlreadyExists = errors.New("already exists")

// ErrExhausted is returned by ConsumeCredit when the targeted counter is zero.
var ErrExhausted = errors.New("credit exhausted")

// Backend defines the persistence interface for the whisper service.
//
// Every implementation must make ConsumeCredit linearizable per card and
// CreateWhisper an atomic create-if-absent; no caller may read-modify-write
// a counter or status field outside these operations.
type Backend interface {
	// Cards. Absent cards are never auto-created.
	GetCard(ctx context.Context, id string) (*models.Card, error)
	// ConsumeCredit revalidates existence and the active flag inside the same
	// atomic operation that decrements the counter. Returns the post-decrement
	// card on success, ErrNotFound if the card is absent or inactive at
	// transaction time, or ErrExhausted if the targeted counter is already zero.
	ConsumeCredit(ctx context.Context, id string, kind models.CreditKind) (*models.Card, error)

	// Whispers
	CreateWhisper(ctx context.Context, w *models.Whisper) error
	GetWhisper(ctx context.Context, id string) (*models.Whisper, error)
	// MarkWhisperRead transitions waiting → read and stamps ReadAt. Returns
	// ErrNotFound if the record is gone or a racing reader already advanced it.
	MarkWhisperRead(ctx context.Context, id string) error
	// DeleteWhisper is idempotent; deleting a nonexistent id is not an error.
	DeleteWhisper(ctx context.Context, id string) error
	WhisperExists(ctx context.Context, id string) (bool, error)
	// DeleteExpiredWhispers purges whispers whose TTL elapsed before now and
	// reports how many were removed.
	DeleteExpiredWhispers(ctx context.Context, now time.Time) (int64, error)

	// Metrics helpers
	CountWhispers(ctx context.Context) (int64, error)
	CountActiveCards(ctx context.Context) (int64, error)

	// Lifecycle
	Close()
}
