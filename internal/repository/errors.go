// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// workflow coordinator and handlers to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
// Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller's role or ownership does not
// allow the operation.  The workflow layer returns it; handlers translate
// it into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a conditional update lost a race (the row
// no longer holds the state it was read in) or a unique key collided.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when an account with the same email exists.
var ErrEmailExists = errors.New("email already exists")

// ErrOutOfStock is returned when an order targets an inventory item whose
// quantity is already zero.
var ErrOutOfStock = errors.New("out of stock")

const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL unique-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors
// through unchanged.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// requireAffected turns a zero-row update or delete into ErrNotFound.
func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
