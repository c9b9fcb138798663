package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	encryptionKeyInfo = "rfid-fare-gateway/field-encryption/v1"
	digestKeyInfo     = "rfid-fare-gateway/card-digest/v1"
)

// Keyring holds the independent keys derived from the process secret.
type Keyring struct {
	EncryptionKey []byte
	DigestKey     []byte
}

// DeriveKeys expands a 32-byte hex secret into one AES key and one digest key.
func DeriveKeys(hexSecret string) (*Keyring, error) {
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding crypto secret: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("crypto secret must be 32 bytes, got %d", len(secret))
	}

	encKey, err := expand(secret, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	digestKey, err := expand(secret, digestKeyInfo)
	if err != nil {
		return nil, err
	}

	return &Keyring{EncryptionKey: encKey, DigestKey: digestKey}, nil
}

func expand(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", info, err)
	}
	return key, nil
}
