package rdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLFault is a driver error together with the statement that caused it.
type SQLFault struct {
	SQL    string
	Params []Param
	Err    error
}

func newFault(query string, params []Param, err error) *SQLFault {
	return &SQLFault{SQL: query, Params: params, Err: err}
}

func (f *SQLFault) Error() string {
	var sb strings.Builder
	sb.WriteString("sql fault: ")
	if f.Err != nil {
		sb.WriteString(f.Err.Error())
	}
	sb.WriteString("; sql: ")
	sb.WriteString(f.SQL)
	if len(f.Params) > 0 {
		sb.WriteString("; params: ")
		for i, p := range f.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			name := p.Name
			if name == "" {
				name = fmt.Sprintf("$%d", i+1)
			}
			fmt.Fprintf(&sb, "%s(%s)=%v", name, p.Kind, p.Value)
		}
	}
	return sb.String()
}

func (f *SQLFault) Unwrap() error {
	return f.Err
}

// Unique violation codes.
const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	mysqlDuplicateKeyRow = 1022
)

// IsDuplicateKey reports whether err was caused by a unique or primary key
// violation in any of the supported drivers.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry || myErr.Number == mysqlDuplicateKeyRow
	}
	return false
}
