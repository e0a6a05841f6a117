// Package service composes the credit ledger, the envelope primitive, and the
// whisper store into the two user-facing flows: send and read.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/org/whisper/internal/crypto"
	"github.com/org/whisper/internal/ledger"
	"github.com/org/whisper/internal/notify"
	"github.com/org/whisper/internal/whisper"
	"github.com/org/whisper/pkg/models"
	"github.com/rs/zerolog/log"
)

// Service is the orchestration layer. It sequences ledger checks, encryption
// calls, and store mutations; partial failures leave the system in the
// documented intermediate states (credit spent, no whisper stored — or
// whisper stored, read credit not yet spent).
type Service struct {
	ledger *ledger.Ledger
	store  *whisper.Store
	events notify.Publisher
}

// NewService creates a fully wired Service.
func NewService(l *ledger.Ledger, s *whisper.Store, events notify.Publisher) *Service {
	return &Service{ledger: l, store: s, events: events}
}

// SubmitResult is the outcome of a successful send flow.
type SubmitResult struct {
	ID   string
	Card *models.CardState
}

// RetrieveResult is the outcome of a successful read flow.
type RetrieveResult struct {
	Plaintext string
	Card      *models.CardState
}

// GetCardState reports a card's remaining credits and validity.
func (s *Service) GetCardState(ctx context.Context, cardID string) (*models.CardState, error) {
	return s.ledger.Get(ctx, cardID)
}

// Submit runs the send flow: consume a send credit, encrypt, issue a
// collision-free id, store the envelope, return the id.
//
// The credit is spent first and is not refunded if a later step fails; the
// caller must re-query the ledger to reconcile its view after an error.
func (s *Service) Submit(ctx context.Context, cardID, passphrase, message string) (*SubmitResult, error) {
	state, err := s.ledger.Consume(ctx, cardID, models.CreditSend)
	if err != nil {
		return nil, err
	}

	env, err := crypto.Encrypt(message, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypting message: %w", err)
	}

	id, err := s.store.GenerateID(ctx)
	if err != nil {
		// The send credit stays spent on this path.
		return nil, err
	}

	if err := s.store.Create(ctx, id, env); err != nil {
		return nil, err
	}

	s.events.WhisperCreated(ctx, id)
	log.Info().Str("id", id).Str("card", cardID).Msg("whisper stored")

	return &SubmitResult{ID: id, Card: state}, nil
}

// Retrieve runs the read flow: fetch, decrypt, consume a read credit, burn.
//
// Decryption happens before the credit is spent, so a card is never charged
// for a message it could not read; a wrong passphrase leaves both the record
// and the counter untouched.
func (s *Service) Retrieve(ctx context.Context, cardID, id, passphrase string) (*RetrieveResult, error) {
	w, err := s.store.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, whisper.ErrExpired) {
			s.events.WhisperBurned(ctx, id, "expired")
		}
		return nil, err
	}

	env := &crypto.Envelope{Ciphertext: w.Ciphertext, Salt: w.Salt, IV: w.IV}
	plaintext, err := crypto.Decrypt(env, passphrase)
	if err != nil {
		return nil, err
	}

	state, err := s.ledger.Consume(ctx, cardID, models.CreditRead)
	if err != nil {
		// Decryption succeeded but the card could not pay; the whisper
		// remains intact and unconsumed.
		return nil, err
	}

	if err := s.store.Burn(ctx, id); err != nil {
		// A racing reader already consumed the record; first winner gets
		// the message.
		return nil, err
	}

	s.events.WhisperBurned(ctx, id, "read")
	log.Info().Str("id", id).Str("card", cardID).Msg("whisper burned")

	return &RetrieveResult{Plaintext: plaintext, Card: state}, nil
}
