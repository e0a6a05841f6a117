package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/org/whisper/internal/crypto"
	"github.com/org/whisper/internal/ledger"
	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/internal/whisper"
	"github.com/org/whisper/pkg/models"
)

// Error codes surfaced to callers. Anything retryable is infrastructure;
// the rest the user must correct themselves.
const (
	codeBadRequest          = "bad_request"
	codeInvalidCard         = "invalid_card"
	codeExhausted           = "exhausted"
	codeNotFound            = "not_found"
	codeExpired             = "expired"
	codeDecryptionFailed    = "decryption_failed"
	codeGenerationExhausted = "generation_exhausted"
	codeStorageUnavailable  = "storage_unavailable"
	codeRateLimited         = "rate_limited"
)

const minPassphraseLen = 4

// CardStateHandler handles GET /v1/card/{cardID}
func (s *Server) CardStateHandler(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")

	state, err := s.svc.GetCardState(r.Context(), cardID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeStorageUnavailable, "card lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card": state})
}

// SubmitHandler handles POST /v1/whisper
func (s *Server) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID     string `json:"card_id"`
		Passphrase string `json:"passphrase"`
		Message    string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if len(req.Passphrase) < minPassphraseLen {
		writeError(w, http.StatusBadRequest, codeBadRequest, "passphrase must be at least 4 characters")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "message cannot be empty")
		return
	}

	result, err := s.svc.Submit(r.Context(), req.CardID, req.Passphrase, req.Message)
	if err != nil {
		s.writeFlowError(w, r.Context(), req.CardID, err)
		return
	}

	creditsConsumedTotal.WithLabelValues(string(models.CreditSend)).Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   result.ID,
		"card": result.Card,
	})
}

// RetrieveHandler handles POST /v1/whisper/{id}/read
func (s *Server) RetrieveHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	if !whisper.ValidCode(id) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid whisper id format")
		return
	}

	var req struct {
		CardID     string `json:"card_id"`
		Passphrase string `json:"passphrase"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "passphrase cannot be empty")
		return
	}

	result, err := s.svc.Retrieve(r.Context(), req.CardID, id, req.Passphrase)
	if err != nil {
		s.writeFlowError(w, r.Context(), req.CardID, err)
		return
	}

	creditsConsumedTotal.WithLabelValues(string(models.CreditRead)).Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"plaintext": result.Plaintext,
		"card":      result.Card,
	})
}

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": "1.0.0",
	})
}

// writeFlowError maps send/read flow errors onto the wire taxonomy. The
// response carries the card's current state where a credit may already have
// been spent, so callers can reconcile without a second round trip.
func (s *Server) writeFlowError(w http.ResponseWriter, ctx context.Context, cardID string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidCard):
		writeError(w, http.StatusNotFound, codeInvalidCard, "card is not valid")
	case errors.Is(err, ledger.ErrExhausted):
		writeError(w, http.StatusConflict, codeExhausted, "no credits remaining on this card")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "whisper not found or already burned")
	case errors.Is(err, whisper.ErrExpired):
		writeError(w, http.StatusGone, codeExpired, "whisper has expired and was destroyed")
	case errors.Is(err, crypto.ErrDecryptionFailed):
		writeError(w, http.StatusForbidden, codeDecryptionFailed, "wrong passphrase or message is corrupted")
	case errors.Is(err, whisper.ErrGenerationExhausted):
		s.writeErrorWithCard(w, ctx, cardID, http.StatusServiceUnavailable, codeGenerationExhausted,
			"could not allocate a whisper id; retry later")
	default:
		s.writeErrorWithCard(w, ctx, cardID, http.StatusServiceUnavailable, codeStorageUnavailable,
			"storage unavailable; retry later")
	}
}

// writeErrorWithCard includes the post-failure card state: on these paths a
// credit may already have been consumed and is not refunded.
func (s *Server) writeErrorWithCard(w http.ResponseWriter, ctx context.Context, cardID string, status int, code, msg string) {
	body := map[string]any{
		"error":     msg,
		"code":      code,
		"retryable": status >= 500,
	}
	if state, err := s.svc.GetCardState(ctx, cardID); err == nil {
		body["card"] = state
	}
	writeJSON(w, status, body)
}
