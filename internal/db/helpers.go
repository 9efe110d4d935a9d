package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by repository lookups that find no matching
// row. services.ErrNotFound is defined as an alias of this value, so
// callers in either package can compare against either name.
var ErrNotFound = errors.New("resource not found")

// errNoRows is the sentinel sqlx/database-sql returns when Get finds no
// matching row; repositories translate it into ErrNotFound.
var errNoRows = sql.ErrNoRows

// rowsAffectedEquals reports whether a CAS UPDATE affected exactly n rows.
// Any other count (zero, because a concurrent writer won the race, or more
// than one, which would indicate a broken WHERE clause) is reported as not
// applied; only the zero case is an expected runtime outcome.
func rowsAffectedEquals(res sql.Result, n int64) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == n, nil
}
