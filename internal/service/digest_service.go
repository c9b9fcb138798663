package service

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Blake3DigestService implements ports.DigestService with a keyed BLAKE3 hash.
// Without the key an attacker holding the database cannot test candidate UIDs.
type Blake3DigestService struct {
	key []byte
}

// NewBlake3DigestService creates a digest service from a 32-byte key.
func NewBlake3DigestService(key []byte) (*Blake3DigestService, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("digest key must be 32 bytes, got %d", len(key))
	}
	return &Blake3DigestService{key: append([]byte(nil), key...)}, nil
}

// Digest returns the hex-encoded 256-bit keyed hash of the normalized value.
func (s *Blake3DigestService) Digest(value string) string {
	hasher, err := blake3.NewKeyed(s.key)
	if err != nil {
		// Key length is checked in the constructor.
		panic("blake3 keyed hasher: " + err.Error())
	}
	_, _ = hasher.Write([]byte(NormalizeUID(value)))
	return hex.EncodeToString(hasher.Sum(nil))
}

// NormalizeUID canonicalizes reader output so "04 a1 b2" and "04A1B2" index the same card.
func NormalizeUID(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}
