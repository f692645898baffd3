package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vaultgate/vaultgate/internal/shared"
)

// ErrMissingBlob occurs when a save omits the ciphertext or iv.
var ErrMissingBlob = errors.New("wallet: cipher and iv are required")

// Service wraps wallet storage rules. All operations are scoped to the
// authenticated owner; callers supply the id from the auth gate.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Save appends an encrypted wallet entry and returns the full updated list.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, cipher, iv []byte, label string) ([]Entry, error) {
	if len(cipher) == 0 || len(iv) == 0 {
		return nil, ErrMissingBlob
	}
	if label == "" {
		label = DefaultLabel
	}
	entry := Entry{
		Cipher:    cipher,
		IV:        iv,
		Label:     label,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Append(ctx, userID, entry); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// List returns all wallet entries for the user in insertion order.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns the entry at a position in the user's list.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, index int) (*Entry, error) {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(entries) {
		return nil, shared.ErrNotFound
	}
	entry := entries[index]
	return &entry, nil
}

// LegacySeed fetches the singular encrypted seed kept for old clients.
func (s *Service) LegacySeed(ctx context.Context, userID uuid.UUID) (*LegacySeed, error) {
	return s.repo.LegacySeed(ctx, userID)
}

// DeleteLegacySeed clears the singular encrypted seed.
func (s *Service) DeleteLegacySeed(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ClearLegacySeed(ctx, userID)
}
