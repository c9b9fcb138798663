package service

import (
	"context"
	"errors"
	"net"

	"rfid-fare-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
)

// storageError classifies a repository failure. Errors that are safe to retry
// become TRANSIENT_IO, the rest are internal.
func storageError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isTransient(err) {
		return apperror.ErrTransient(err)
	}
	return apperror.InternalError(err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization_failure, deadlock_detected
			return true
		case pgErr.Code == "55P03": // lock_not_available
			return true
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08": // connection exceptions
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
