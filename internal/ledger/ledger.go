// Package ledger tracks per-card send and read credits. All mutations go
// through the backend's atomic consume; the ledger itself never
// read-modify-writes a counter.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCard is returned for cards that are not allow-listed, absent, or
// inactive. Callers cannot tell those cases apart.
var ErrInvalidCard = errors.New("invalid card")

// ErrExhausted is returned when the targeted credit counter is already zero.
var ErrExhausted = errors.New("no credits remaining")

// Ledger validates cards against a fixed allow-list and consumes credits
// atomically. Absent cards are never auto-created: an invalid card stays
// invalid permanently.
type Ledger struct {
	backend   storage.Backend
	allowList map[string]struct{}
}

// NewLedger creates a Ledger over the given backend. allowList is the set of
// card ids this deployment accepts; anything else is invalid.
func NewLedger(backend storage.Backend, allowList []string) *Ledger {
	allowed := make(map[string]struct{}, len(allowList))
	for _, id := range allowList {
		allowed[id] = struct{}{}
	}
	return &Ledger{backend: backend, allowList: allowed}
}

// Get returns the caller-visible state of a card. Valid is false whenever the
// card is not allow-listed, the backing record is absent, or it is inactive.
func (l *Ledger) Get(ctx context.Context, cardID string) (*models.CardState, error) {
	if !l.allowed(cardID) {
		return &models.CardState{}, nil
	}
	card, err := l.backend.GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &models.CardState{}, nil
		}
		return nil, fmt.Errorf("fetching card: %w", err)
	}
	return models.StateOf(card), nil
}

// Consume decrements exactly one credit of the given kind and returns the
// post-decrement state. It re-validates the card inside the backend's atomic
// operation, so a concurrent deactivation surfaces as ErrInvalidCard and a
// drained counter as ErrExhausted. Two concurrent consumes against a card
// with one remaining credit see exactly one success.
func (l *Ledger) Consume(ctx context.Context, cardID string, kind models.CreditKind) (*models.CardState, error) {
	if !l.allowed(cardID) {
		return nil, ErrInvalidCard
	}
	card, err := l.backend.ConsumeCredit(ctx, cardID, kind)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrInvalidCard
		case errors.Is(err, storage.ErrExhausted):
			return nil, ErrExhausted
		}
		return nil, fmt.Errorf("consuming %s credit: %w", kind, err)
	}
	log.Debug().
		Str("card", cardID).
		Str("kind", string(kind)).
		Int("sends", card.SendCredits).
		Int("reads", card.ReadCredits).
		Msg("credit consumed")
	return models.StateOf(card), nil
}

func (l *Ledger) allowed(cardID string) bool {
	_, ok := l.allowList[cardID]
	return ok
}
