package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultgate/vaultgate/internal/shared"
)

// Repository defines persistence operations for the wallet module.
type Repository interface {
	Append(ctx context.Context, userID uuid.UUID, entry Entry) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	LegacySeed(ctx context.Context, userID uuid.UUID) (*LegacySeed, error)
	ClearLegacySeed(ctx context.Context, userID uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Append inserts one wallet entry. A single INSERT keeps concurrent
// saves for the same user from losing each other.
func (r *PGRepository) Append(ctx context.Context, userID uuid.UUID, entry Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO wallets (user_id, cipher, iv, label, created_at)
VALUES ($1, $2, $3, $4, $5)`, userID, entry.Cipher, entry.IV, entry.Label, entry.CreatedAt.UTC())
	return err
}

// ListByUser returns all wallet entries in insertion order.
func (r *PGRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, cipher, iv, label, created_at
FROM wallets WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Cipher, &e.IV, &e.Label, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LegacySeed fetches the singular encrypted seed, if any.
func (r *PGRepository) LegacySeed(ctx context.Context, userID uuid.UUID) (*LegacySeed, error) {
	var seed LegacySeed
	seed.UserID = userID
	err := r.pool.QueryRow(ctx, `SELECT encrypted_seed, encrypted_seed_created_at
FROM users WHERE id = $1 AND encrypted_seed IS NOT NULL`, userID).Scan(&seed.Seed, &seed.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &seed, nil
}

// ClearLegacySeed removes the singular encrypted seed. Idempotent.
func (r *PGRepository) ClearLegacySeed(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users
SET encrypted_seed = NULL, encrypted_seed_created_at = NULL, updated_at = NOW()
WHERE id = $1`, userID)
	return err
}

var _ Repository = (*PGRepository)(nil)
