package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/taskcore/taskcore/internal/coreerr"
)

// wrapDBError classifies a raw database/sql error into the core's error
// taxonomy, tagging transient busy/locked conditions as retryable so the
// transaction coordinator's backoff loop picks them up. Grounded on the
// teacher's internal/storage/sqlite/errors.go wrapDBError/isRetryableError.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return coreerr.Wrap(coreerr.KindNotFound, err, op)
	}
	if isRetryableSQLiteError(err) {
		return coreerr.Wrap(coreerr.KindStorageIO, err, op).AsRetryable()
	}
	if isCorruption(err) {
		return coreerr.Wrap(coreerr.KindStorageCorrupt, err, op)
	}
	return coreerr.Wrap(coreerr.KindStorageIO, err, op)
}

func isRetryableSQLiteError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"database is locked",
		"busy",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
		"disk i/o error",
		"no such savepoint",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func isCorruption(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt") ||
		strings.Contains(msg, "not a database")
}
