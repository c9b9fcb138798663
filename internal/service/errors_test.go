package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"rfid-fare-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestStorageError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperror.CodeTransientIO},
		{"canceled", context.Canceled, apperror.CodeTransientIO},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperror.CodeTransientIO},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperror.CodeTransientIO},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, apperror.CodeTransientIO},
		{"connection failure", &pgconn.PgError{Code: "08006"}, apperror.CodeTransientIO},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, apperror.CodeTransientIO},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperror.CodeInternal},
		{"plain", errors.New("boom"), apperror.CodeInternal},
		{"already classified", apperror.ErrNotFound("User"), apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := storageError(tt.err)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantCode == apperror.CodeTransientIO, appErr.Retryable)
		})
	}
}
