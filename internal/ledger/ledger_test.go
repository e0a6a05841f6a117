package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/org/whisper/internal/storage"
	"github.com/org/whisper/pkg/models"
)

func seededBackend(t *testing.T, cards ...*models.Card) *storage.MemoryBackend {
	t.Helper()
	backend := storage.NewMemoryBackend()
	now := time.Now().UTC()
	for _, c := range cards {
		c.CreatedAt = now
		c.UpdatedAt = now
		backend.SeedCard(c)
	}
	return backend
}

func TestGetValidCard(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	state, err := l.Get(context.Background(), "CARD01")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !state.Valid {
		t.Error("expected valid card")
	}
	if state.SendCredits != 3 || state.ReadCredits != 3 {
		t.Errorf("expected 3/3 credits, got %d/%d", state.SendCredits, state.ReadCredits)
	}
}

func TestGetUnknownCard(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	state, err := l.Get(context.Background(), "NOPE99")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Valid {
		t.Error("unknown card should not be valid")
	}
	if state.SendCredits != 0 || state.ReadCredits != 0 {
		t.Error("unknown card should report zero credits")
	}
}

func TestGetAllowListedButUnprovisioned(t *testing.T) {
	// Card is on the allow-list but has no backing record. It must come back
	// invalid, not be created on the fly.
	backend := storage.NewMemoryBackend()
	l := NewLedger(backend, []string{"CARD01"})

	state, err := l.Get(context.Background(), "CARD01")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Valid {
		t.Error("unprovisioned card should not be valid")
	}
	// Lookup must not create a record
	if _, err := backend.GetCard(context.Background(), "CARD01"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("card should still be absent after lookup, got %v", err)
	}
}

func TestGetInactiveCard(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: false})
	l := NewLedger(backend, []string{"CARD01"})

	state, err := l.Get(context.Background(), "CARD01")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Valid {
		t.Error("inactive card should not be valid")
	}
}

func TestConsumeDecrementsOnlyTargetKind(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	state, err := l.Consume(context.Background(), "CARD01", models.CreditSend)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state.SendCredits != 2 {
		t.Errorf("expected 2 send credits, got %d", state.SendCredits)
	}
	if state.ReadCredits != 3 {
		t.Errorf("read credits should be untouched, got %d", state.ReadCredits)
	}
}

func TestConsumeExhausted(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 0, ReadCredits: 2, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	_, err := l.Consume(context.Background(), "CARD01", models.CreditSend)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}

	// The other counter still works
	if _, err := l.Consume(context.Background(), "CARD01", models.CreditRead); err != nil {
		t.Errorf("read consume should succeed: %v", err)
	}
}

func TestConsumeInvalidCard(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	if _, err := l.Consume(context.Background(), "NOPE99", models.CreditSend); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("expected ErrInvalidCard for unknown card, got %v", err)
	}

	backend.SeedCard(&models.Card{ID: "CARD01", SendCredits: 3, ReadCredits: 3, Active: false})
	if _, err := l.Consume(context.Background(), "CARD01", models.CreditSend); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("expected ErrInvalidCard for inactive card, got %v", err)
	}
}

func TestConcurrentConsumeLastCredit(t *testing.T) {
	backend := seededBackend(t, &models.Card{ID: "CARD01", SendCredits: 1, ReadCredits: 0, Active: true})
	l := NewLedger(backend, []string{"CARD01"})

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Consume(context.Background(), "CARD01", models.CreditSend)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, exhausted int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 successful consume, got %d", successes)
	}
	if exhausted != workers-1 {
		t.Errorf("expected %d ErrExhausted, got %d", workers-1, exhausted)
	}
}
