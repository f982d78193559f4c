package db

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SQLSTATE codes the storefront reacts to.
const (
	sqlStateCheckViolation  = "23514"
	sqlStateUniqueViolation = "23505"
	sqlStateLockNotAvail    = "55P03"
	sqlStateDeadlock        = "40P01"
	sqlStateSerialization   = "40001"
	sqlStateQueryCanceled   = "57014"
)

// IsUniqueViolation reports whether the provided error references a unique
// violation. When constraintName is provided, the helper looks for the
// constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if constraintName != "" {
		return strings.Contains(err.Error(), constraintName)
	}
	if sqlState(err) == sqlStateUniqueViolation {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsCheckViolation reports whether a CHECK constraint rejected the write.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == sqlStateCheckViolation {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsLockTimeout reports lock waits that gave up: lock_timeout, deadlock
// detection, statement cancellation or a context deadline.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	switch sqlState(err) {
	case sqlStateLockNotAvail, sqlStateDeadlock, sqlStateSerialization, sqlStateQueryCanceled:
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}

// Classify turns a raw persistence error into a typed error. Errors that
// already carry a code pass through untouched.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case IsLockTimeout(err):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	case IsCheckViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, message)
	case IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}

func sqlState(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
