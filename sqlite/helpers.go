package sqlite

import (
	"errors"
	"strings"

	"github.com/fwojciec/hcf"
	"github.com/ncruces/go-sqlite3"
)

// appendLimit appends a LIMIT clause to a query builder if limit is > 0.
func appendLimit(query *strings.Builder, args *[]any, limit int) {
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		*args = append(*args, limit)
	}
}

// placeholders returns n comma-separated parameter placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// dbError assigns an application code to SQLite errors. Lock contention is
// transient; constraint violations are invalid input; any other SQLite
// error is fatal. Errors from outside SQLite, such as context
// cancellation, are returned unchanged.
func dbError(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch {
	case errors.Is(err, sqlite3.BUSY), errors.Is(err, sqlite3.LOCKED):
		return hcf.Errorf(hcf.ETRANSIENT, "sqlite: %v", err)
	case errors.Is(err, sqlite3.CONSTRAINT):
		return hcf.Errorf(hcf.EINVALID, "sqlite: %v", err)
	}
	return hcf.Errorf(hcf.EFATAL, "sqlite: %v", err)
}
