package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account with its credential state.
type User struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	FaceRegistered bool
	FaceEmbedding  []float64
	OTPCode        *string
	OTPExpires     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FaceLogin is the outcome of a face verification attempt. A mismatch
// is a normal negative result, not an error.
type FaceLogin struct {
	Success  bool
	Token    string
	UserID   string
	Distance float64
}
