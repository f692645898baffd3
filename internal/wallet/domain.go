package wallet

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLabel names wallets saved without an explicit label.
const DefaultLabel = "My Wallet"

// Entry is one encrypted wallet blob. The server never decrypts it;
// cipher and iv are opaque bytes chosen by the client.
type Entry struct {
	ID        int64     `json:"-"`
	Cipher    []byte    `json:"cipher"`
	IV        []byte    `json:"iv"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// LegacySeed is the singular encrypted seed kept for older clients.
type LegacySeed struct {
	UserID    uuid.UUID
	Seed      []byte
	CreatedAt time.Time
}
