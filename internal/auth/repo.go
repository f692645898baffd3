package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultgate/vaultgate/internal/face"
	"github.com/vaultgate/vaultgate/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	SetCode(ctx context.Context, id uuid.UUID, code string, expires time.Time) error
	ConsumeCode(ctx context.Context, id uuid.UUID, code string) (bool, error)
	SaveFace(ctx context.Context, id uuid.UUID, embedding []float64) error
	FaceCandidates(ctx context.Context) ([]face.Candidate, error)
	ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, password_hash, face_registered, face_embedding, otp_code, otp_expires, created_at, updated_at`

// CreateUser inserts a new user record.
func (r *PGRepository) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (id, email, password_hash)
VALUES ($1, $2, $3)
RETURNING `+userColumns, uuid.New(), email, passwordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanNotFound(scanUser(row))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanNotFound(scanUser(row))
}

// SetCode stores a fresh one-time code and its expiry in a single update.
func (r *PGRepository) SetCode(ctx context.Context, id uuid.UUID, code string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET otp_code = $2, otp_expires = $3, updated_at = NOW()
WHERE id = $1`, id, code, expires.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ConsumeCode clears the stored code only when it still matches,
// guaranteeing single use under concurrent verifications.
func (r *PGRepository) ConsumeCode(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET otp_code = NULL, otp_expires = NULL, updated_at = NOW()
WHERE id = $1 AND otp_code = $2`, id, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveFace overwrites the stored embedding and marks the face registered.
func (r *PGRepository) SaveFace(ctx context.Context, id uuid.UUID, embedding []float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET face_embedding = $2, face_registered = TRUE, updated_at = NOW()
WHERE id = $1`, id, embedding)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FaceCandidates lists all registered embeddings in creation order so
// that best-match ties resolve deterministically.
func (r *PGRepository) FaceCandidates(ctx context.Context) ([]face.Candidate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, face_embedding
FROM users
WHERE face_registered AND cardinality(face_embedding) > 0
ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []face.Candidate
	for rows.Next() {
		var id uuid.UUID
		var c face.Candidate
		if err := rows.Scan(&id, &c.Email, &c.Embedding); err != nil {
			return nil, err
		}
		c.ID = id.String()
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ClearExpiredCodes removes one-time codes whose window has passed.
func (r *PGRepository) ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users
SET otp_code = NULL, otp_expires = NULL, updated_at = NOW()
WHERE otp_code IS NOT NULL AND otp_expires < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FaceRegistered,
		&user.FaceEmbedding,
		&user.OTPCode,
		&user.OTPExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanNotFound(user *User, err error) (*User, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

var _ Repository = (*PGRepository)(nil)
