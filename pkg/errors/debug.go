package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-only view of an error chain. It never reaches clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	DBCode       string `json:"db_code,omitempty"`
	DBConstraint string `json:"db_constraint,omitempty"`
	DBTable      string `json:"db_table,omitempty"`
	DBColumn     string `json:"db_column,omitempty"`
	DBDetail     string `json:"db_detail,omitempty"`
	DBMessage    string `json:"db_message,omitempty"`
}

const sqliteUniquePrefix = "UNIQUE constraint failed: "

// Dump walks err and extracts the typed code plus any database driver details.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	switch {
	case fillFromPgx(&d, err):
	case fillFromPQ(&d, err):
	default:
		fillFromSQLite(&d, err)
	}
	return d
}

func fillFromPgx(d *ErrorDump, err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	d.DBCode = pgErr.Code
	d.DBConstraint = pgErr.ConstraintName
	d.DBTable = pgErr.TableName
	d.DBColumn = pgErr.ColumnName
	d.DBDetail = pgErr.Detail
	d.DBMessage = pgErr.Message
	return true
}

func fillFromPQ(d *ErrorDump, err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	d.DBCode = string(pqErr.Code)
	d.DBConstraint = pqErr.Constraint
	d.DBTable = pqErr.Table
	d.DBColumn = pqErr.Column
	d.DBDetail = pqErr.Detail
	d.DBMessage = pqErr.Message
	return true
}

// sqlite errors only carry text; "UNIQUE constraint failed: shops.email" is split into table/column.
func fillFromSQLite(d *ErrorDump, err error) {
	msg := err.Error()
	idx := strings.Index(msg, sqliteUniquePrefix)
	if idx < 0 {
		return
	}
	target := strings.TrimSpace(msg[idx+len(sqliteUniquePrefix):])
	if comma := strings.Index(target, ","); comma >= 0 {
		target = target[:comma]
	}
	d.DBCode = "sqlite_unique"
	d.DBMessage = strings.TrimSpace(msg[idx:])
	if table, column, ok := strings.Cut(target, "."); ok {
		d.DBTable = table
		d.DBColumn = column
	}
}
