package service

import (
	"context"
	"testing"

	"rfid-fare-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid 32-byte secret in hex (64 chars)
const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	keys, err := DeriveKeys(testSecret)
	require.NoError(t, err)
	return keys
}

func newTestCrypto(t *testing.T) (*AESEncryptionService, *Blake3DigestService) {
	t.Helper()
	keys := newTestKeyring(t)
	enc, err := NewAESEncryptionService(keys.EncryptionKey)
	require.NoError(t, err)
	dig, err := NewBlake3DigestService(keys.DigestKey)
	require.NoError(t, err)
	return enc, dig
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
