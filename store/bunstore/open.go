package bunstore

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
)

// Open opens a bun.DB for driver and dsn. postgres uses lib/pq, pgx uses
// the pgx stdlib driver.
func Open(driver, dsn string) (*bun.DB, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, ClassifyError("", err)
	}
	if driver == DriverSQLite {
		// in-memory databases are per connection
		sqldb.SetMaxOpenConns(1)
	}

	return bun.NewDB(sqldb, dialect), nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres, DriverPgx:
		return pgdialect.New(), nil
	case DriverMySQL:
		return mysqldialect.New(), nil
	default:
		return nil, fmt.Errorf("bunstore: unsupported driver %q", driver)
	}
}
