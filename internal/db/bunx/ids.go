package bunx

import (
	"crypto/rand"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// ShortIDLength is the length of the public ids used for comments and photos.
const ShortIDLength = 8

// NewUUIDv7 generates a time-ordered UUIDv7 string for user and session primary keys.
// It panics only when the system entropy source fails.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewShortID returns a random base58 token of ShortIDLength characters.
// Eight random bytes never encode to fewer than eight base58 characters.
func NewShortID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return base58.Encode(buf[:])[:ShortIDLength]
}
