package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/whisper/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// --- Cards ---

func (p *PostgresBackend) GetCard(ctx context.Context, id string) (*models.Card, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, send_credits, read_credits, active, created_at, updated_at
		 FROM cards WHERE id = $1`,
		id,
	)
	return scanCard(row)
}

func (p *PostgresBackend) ConsumeCredit(ctx context.Context, id string, kind models.CreditKind) (*models.Card, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Row lock serializes concurrent consumes on the same card.
	row := tx.QueryRow(ctx,
		`SELECT id, send_credits, read_credits, active, created_at, updated_at
		 FROM cards WHERE id = $1 FOR UPDATE`,
		id,
	)
	card, err := scanCard(row)
	if err != nil {
		return nil, err
	}
	if !card.Active {
		return nil, ErrNotFound
	}

	col := "send_credits"
	remaining := card.SendCredits
	if kind == models.CreditRead {
		col = "read_credits"
		remaining = card.ReadCredits
	}
	if remaining <= 0 {
		return nil, ErrExhausted
	}

	row = tx.QueryRow(ctx,
		`UPDATE cards SET `+col+` = `+col+` - 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, send_credits, read_credits, active, created_at, updated_at`,
		id,
	)
	card, err = scanCard(row)
	if err != nil {
		return nil, fmt.Errorf("decrementing %s: %w", col, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return card, nil
}

func scanCard(row pgx.Row) (*models.Card, error) {
	var c models.Card
	err := row.Scan(&c.ID, &c.SendCredits, &c.ReadCredits, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// --- Whispers ---

func (p *PostgresBackend) CreateWhisper(ctx context.Context, w *models.Whisper) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO whispers (id, ciphertext, salt, iv, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		w.ID, w.Ciphertext, w.Salt, w.IV, w.Status, w.CreatedAt, w.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting whisper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *PostgresBackend) GetWhisper(ctx context.Context, id string) (*models.Whisper, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, ciphertext, salt, iv, status, created_at, expires_at, read_at
		 FROM whispers WHERE id = $1`,
		id,
	)
	var w models.Whisper
	err := row.Scan(&w.ID, &w.Ciphertext, &w.Salt, &w.IV, &w.Status, &w.CreatedAt, &w.ExpiresAt, &w.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (p *PostgresBackend) MarkWhisperRead(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE whispers SET status = $1, read_at = NOW()
		 WHERE id = $2 AND status = $3`,
		models.StatusRead, id, models.StatusWaiting,
	)
	if err != nil {
		return fmt.Errorf("marking whisper read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) DeleteWhisper(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM whispers WHERE id = $1`, id)
	return err
}

func (p *PostgresBackend) WhisperExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM whispers WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func (p *PostgresBackend) DeleteExpiredWhispers(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM whispers WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Metrics ---

func (p *PostgresBackend) CountWhispers(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM whispers`).Scan(&count)
	return count, err
}

func (p *PostgresBackend) CountActiveCards(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cards WHERE active AND (send_credits > 0 OR read_credits > 0)`,
	).Scan(&count)
	return count, err
}
