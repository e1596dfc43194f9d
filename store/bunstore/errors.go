package bunstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/goliatone/go-entity/entity"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ClassifyError converts a driver error raised while operating on table into
// an *entity.StoreError. Errors that already are StoreErrors or NotFound
// errors pass through unchanged.
func ClassifyError(table string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *entity.StoreError
	if errors.As(err, &storeErr) || entity.IsNotFound(err) {
		return err
	}

	kind, constraint := classify(err)
	return entity.NewStoreError(kind, table, constraint, err)
}

func classify(err error) (entity.StoreErrorKind, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return sqlStateKind(string(pqErr.Code)), pqErr.Constraint
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return sqlStateKind(pgErr.Code), pgErr.ConstraintName
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteKind(sqliteErr), ""
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlKind(myErr.Number), ""
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mysql.ErrInvalidConn):
		return entity.StoreErrorTransient, ""
	}

	return entity.StoreErrorUnknown, ""
}

// sqlStateKind maps a Postgres SQLSTATE code.
func sqlStateKind(code string) entity.StoreErrorKind {
	switch code {
	case "23505":
		return entity.StoreErrorUniqueConstraint
	case "23503":
		return entity.StoreErrorForeignKeyConstraint
	case "23502":
		return entity.StoreErrorNotNullConstraint
	case "23514":
		return entity.StoreErrorCheckConstraint
	case "23P01":
		return entity.StoreErrorExclusionConstraint
	}

	switch {
	// connection exceptions, serialization failures and deadlocks,
	// insufficient resources, operator intervention
	case strings.HasPrefix(code, "08"),
		strings.HasPrefix(code, "40"),
		strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "57P"):
		return entity.StoreErrorTransient
	}
	return entity.StoreErrorUnknown
}

func sqliteKind(err sqlite3.Error) entity.StoreErrorKind {
	switch err.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return entity.StoreErrorUniqueConstraint
	case sqlite3.ErrConstraintForeignKey:
		return entity.StoreErrorForeignKeyConstraint
	case sqlite3.ErrConstraintNotNull:
		return entity.StoreErrorNotNullConstraint
	case sqlite3.ErrConstraintCheck:
		return entity.StoreErrorCheckConstraint
	}

	switch err.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return entity.StoreErrorTransient
	}
	return entity.StoreErrorUnknown
}

func mysqlKind(number uint16) entity.StoreErrorKind {
	switch number {
	case 1062, 1586:
		return entity.StoreErrorUniqueConstraint
	case 1216, 1217, 1451, 1452:
		return entity.StoreErrorForeignKeyConstraint
	case 1048, 1364:
		return entity.StoreErrorNotNullConstraint
	case 3819:
		return entity.StoreErrorCheckConstraint
	case 1205, 1213, 1040, 2006, 2013:
		return entity.StoreErrorTransient
	}
	return entity.StoreErrorUnknown
}
