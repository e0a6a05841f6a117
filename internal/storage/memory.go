package storage

import (
	"context"
	"sync"
	"time"

	"github.com/org/whisper/pkg/models"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-process Backend for development and tests.
// A single mutex serializes all mutations, which trivially satisfies the
// per-key linearizability the Backend contract requires.
type MemoryBackend struct {
	mu       sync.Mutex
	cards    map[string]*models.Card
	whispers map[string]*models.Whisper
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		cards:    map[string]*models.Card{},
		whispers: map[string]*models.Whisper{},
	}
}

// SeedCard installs a card, overwriting any previous record. Dev-mode helper;
// production cards are provisioned out-of-band.
func (m *MemoryBackend) SeedCard(card *models.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *card
	m.cards[card.ID] = &cp
}

func (m *MemoryBackend) GetCard(ctx context.Context, id string) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryBackend) ConsumeCredit(ctx context.Context, id string, kind models.CreditKind) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok || !c.Active {
		return nil, ErrNotFound
	}
	switch kind {
	case models.CreditSend:
		if c.SendCredits <= 0 {
			return nil, ErrExhausted
		}
		c.SendCredits--
	case models.CreditRead:
		if c.ReadCredits <= 0 {
			return nil, ErrExhausted
		}
		c.ReadCredits--
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (m *MemoryBackend) CreateWhisper(ctx context.Context, w *models.Whisper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.whispers[w.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *w
	m.whispers[w.ID] = &cp
	return nil
}

func (m *MemoryBackend) GetWhisper(ctx context.Context, id string) (*models.Whisper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.whispers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryBackend) MarkWhisperRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.whispers[id]
	if !ok || w.Status != models.StatusWaiting {
		return ErrNotFound
	}
	now := time.Now().UTC()
	w.Status = models.StatusRead
	w.ReadAt = &now
	return nil
}

func (m *MemoryBackend) DeleteWhisper(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whispers, id)
	return nil
}

func (m *MemoryBackend) WhisperExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.whispers[id]
	return ok, nil
}

func (m *MemoryBackend) DeleteExpiredWhispers(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, w := range m.whispers {
		if now.After(w.ExpiresAt) {
			delete(m.whispers, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MemoryBackend) CountWhispers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.whispers)), nil
}

func (m *MemoryBackend) CountActiveCards(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.cards {
		if c.Active && (c.SendCredits > 0 || c.ReadCredits > 0) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Close() {}
