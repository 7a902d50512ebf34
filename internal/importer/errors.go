package importer

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dbsmedya/gorowtree/internal/record"
)

// Reason classifies why a row could not be written.
type Reason int

const (
	ReasonOther Reason = iota
	ReasonDuplicateKey
	ReasonForeignKey
	ReasonNotNull
	ReasonConversion
	ReasonUnresolved
)

func (r Reason) String() string {
	switch r {
	case ReasonDuplicateKey:
		return "duplicate key"
	case ReasonForeignKey:
		return "foreign key violation"
	case ReasonNotNull:
		return "not null violation"
	case ReasonConversion:
		return "value conversion"
	case ReasonUnresolved:
		return "unresolved reference"
	default:
		return "other"
	}
}

// RowWriteError reports a row whose INSERT or UPDATE failed. The import
// continues with the next row.
type RowWriteError struct {
	Row       record.RowLink
	Statement string
	Reason    Reason
	Err       error
}

func (e *RowWriteError) Error() string {
	return fmt.Sprintf("failed to write row %s (%s): %v", e.Row, e.Reason, e.Err)
}

func (e *RowWriteError) Unwrap() error {
	return e.Err
}

// PkGenerationError reports a primary-key column no generator can fill.
type PkGenerationError struct {
	Table   string
	Column  string
	SQLType string
	Err     error
}

func (e *PkGenerationError) Error() string {
	msg := fmt.Sprintf("cannot generate key for %s.%s (%s)", e.Table, e.Column, e.SQLType)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PkGenerationError) Unwrap() error {
	return e.Err
}

// classify maps driver errors to a Reason.
//
// MySQL: 1062 duplicate entry, 1451/1452 foreign key, 1048/1364 not null.
// PostgreSQL: SQLSTATE 23505, 23503, 23502.
func classify(err error) Reason {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return ReasonDuplicateKey
		case 1451, 1452:
			return ReasonForeignKey
		case 1048, 1364:
			return ReasonNotNull
		}
		return ReasonOther
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ReasonDuplicateKey
		case "23503":
			return ReasonForeignKey
		case "23502":
			return ReasonNotNull
		}
		return ReasonOther
	}

	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return ReasonConversion
	}
	return ReasonOther
}
