package db

import (
	"strings"

	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation. When constraintName is provided, the constraint must match.
// SQLite messages are matched textually so repository tests share the path.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if pkgerrors.PGCode(err) == sqlStateUniqueViolation {
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsSerializationFailure reports whether Postgres aborted the transaction
// because a concurrent writer won.
func IsSerializationFailure(err error) bool {
	switch pkgerrors.PGCode(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	}
	return false
}

// IsConflict groups every storage error that means "someone else wrote first".
func IsConflict(err error) bool {
	return IsUniqueViolation(err, "") || IsSerializationFailure(err)
}
