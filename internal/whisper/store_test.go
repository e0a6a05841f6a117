package whisper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/whisper/internal/crypto"
	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/pkg/models"
)

func testEnvelope() *crypto.Envelope {
	return &crypto.Envelope{Ciphertext: "deadbeef", Salt: "cafe", IV: "0123456789abcdef01234567"}
}

func TestCreateAndFetch(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := NewStore(backend)
	ctx := context.Background()

	if err := store.Create(ctx, "ABC234", testEnvelope()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w, err := store.Fetch(ctx, "ABC234")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if w.Status != models.StatusWaiting {
		t.Errorf("expected waiting status, got %q", w.Status)
	}
	if w.Ciphertext != "deadbeef" {
		t.Errorf("unexpected ciphertext %q", w.Ciphertext)
	}
	if got := w.ExpiresAt.Sub(w.CreatedAt); got != models.WhisperTTL {
		t.Errorf("expected TTL %v, got %v", models.WhisperTTL, got)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := NewStore(backend)
	ctx := context.Background()

	if err := store.Create(ctx, "ABC234", testEnvelope()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := store.Create(ctx, "ABC234", testEnvelope())
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFetchMissing(t *testing.T) {
	store := NewStore(storage.NewMemoryBackend())

	_, err := store.Fetch(context.Background(), "NOSUCH")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchExpiredPurges(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := NewStore(backend)
	ctx := context.Background()

	// Insert directly with an expiry in the past
	past := time.Now().UTC().Add(-time.Hour)
	backend.CreateWhisper(ctx, &models.Whisper{
		ID:         "OLDONE",
		Ciphertext: "deadbeef",
		Salt:       "cafe",
		IV:         "0123456789abcdef01234567",
		Status:     models.StatusWaiting,
		CreatedAt:  past.Add(-models.WhisperTTL),
		ExpiresAt:  past,
	})

	_, err := store.Fetch(ctx, "OLDONE")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// The record is gone; a second fetch reports not found
	_, err = store.Fetch(ctx, "OLDONE")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestBurnRemovesRecord(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := NewStore(backend)
	ctx := context.Background()

	store.Create(ctx, "ABC234", testEnvelope())

	if err := store.Burn(ctx, "ABC234"); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if _, err := store.Fetch(ctx, "ABC234"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after burn, got %v", err)
	}

	// Burning again fails at the status transition
	if err := store.Burn(ctx, "ABC234"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double burn, got %v", err)
	}
}

func TestGenerateIDAvoidsCollisions(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := NewStore(backend)
	ctx := context.Background()

	id, err := store.GenerateID(ctx)
	if err != nil {
		t.Fatalf("GenerateID failed: %v", err)
	}
	if !ValidCode(id) {
		t.Errorf("generated id %q is not a valid code", id)
	}

	taken, err := store.Exists(ctx, id)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if taken {
		t.Error("freshly generated id should not exist yet")
	}
}

func TestSweeperPurgesExpired(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	now := time.Now().UTC()
	backend.CreateWhisper(ctx, &models.Whisper{
		ID: "OLDONE", Status: models.StatusWaiting,
		CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	})
	backend.CreateWhisper(ctx, &models.Whisper{
		ID: "FRESH2", Status: models.StatusWaiting,
		CreatedAt: now, ExpiresAt: now.Add(models.WhisperTTL),
	})

	purged, err := backend.DeleteExpiredWhispers(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredWhispers failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
	if ok, _ := backend.WhisperExists(ctx, "FRESH2"); !ok {
		t.Error("unexpired whisper should survive the sweep")
	}
}
