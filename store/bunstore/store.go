// Package bunstore implements store.Adapter and store.Transactor on top of
// bun, for SQLite, Postgres and MySQL.
package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/store"
	"github.com/uptrace/bun"
)

// Store runs entity queries through a bun.DB.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

var (
	_ store.Adapter    = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// New creates a Store over db. A nil logger uses slog.Default().
func New(db *bun.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// DB returns the underlying bun.DB.
func (s *Store) DB() *bun.DB { return s.db }

// Conn implements store.Transactor.
func (s *Store) Conn() any { return s.db }

// Begin implements store.Transactor.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ClassifyError("", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a bun.Tx. Nested transactions are savepoints.
type Tx struct {
	tx bun.Tx
}

func (t *Tx) Conn() any { return t.tx }

func (t *Tx) Begin(ctx context.Context) (store.Tx, error) {
	sp, err := t.tx.BeginTx(ctx, nil)
	if err != nil {
		return nil, ClassifyError("", err)
	}
	return &Tx{tx: sp}, nil
}

func (t *Tx) Commit(context.Context) error {
	return ClassifyError("", t.tx.Commit())
}

func (t *Tx) Rollback(context.Context) error {
	return ClassifyError("", t.tx.Rollback())
}

func (s *Store) idb(qc *store.QueryContext) bun.IDB {
	if qc == nil {
		return s.db
	}
	if idb, ok := qc.Conn().(bun.IDB); ok {
		return idb
	}
	return s.db
}

func (s *Store) FetchManyWhere(ctx context.Context, qc *store.QueryContext, table string, columns []string, tuples [][]any) ([]store.Row, error) {
	if len(tuples) == 0 || len(columns) == 0 {
		return nil, nil
	}

	q := s.idb(qc).NewSelect().TableExpr("?", bun.Ident(table))

	if len(columns) == 1 {
		values := make([]any, 0, len(tuples))
		for _, tuple := range tuples {
			values = append(values, tuple[0])
		}
		q = q.Where("? IN (?)", bun.Ident(columns[0]), bun.In(values))
	} else {
		for _, tuple := range tuples {
			if len(tuple) != len(columns) {
				return nil, entity.NewStoreError(entity.StoreErrorUnknown, table, "",
					fmt.Errorf("bunstore: tuple has %d values for %d columns", len(tuple), len(columns)))
			}
		}
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, tuple := range tuples {
				q = q.WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					for i, col := range columns {
						q = whereEqual(q, col, tuple[i])
					}
					return q
				})
			}
			return q
		})
	}

	return s.scan(ctx, table, q)
}

func (s *Store) FetchManyByFieldEquality(ctx context.Context, qc *store.QueryContext, table string, conditions []store.Condition, opts store.QueryOptions) ([]store.Row, error) {
	q := s.idb(qc).NewSelect().TableExpr("?", bun.Ident(table))

	for _, cond := range conditions {
		q = whereCondition(q, cond)
	}

	return s.scan(ctx, table, applyOptions(q, opts))
}

func (s *Store) FetchManyByRawWhere(ctx context.Context, qc *store.QueryContext, table, where string, args []any, opts store.QueryOptions) ([]store.Row, error) {
	q := s.idb(qc).NewSelect().TableExpr("?", bun.Ident(table))
	if where != "" {
		q = q.Where(where, args...)
	}
	return s.scan(ctx, table, applyOptions(q, opts))
}

func (s *Store) Insert(ctx context.Context, qc *store.QueryContext, table string, row store.Row) error {
	values := map[string]interface{}(row)
	_, err := s.idb(qc).NewInsert().
		Model(&values).
		TableExpr("?", bun.Ident(table)).
		Exec(ctx)
	return ClassifyError(table, err)
}

func (s *Store) Update(ctx context.Context, qc *store.QueryContext, table, idColumn string, id any, row store.Row) error {
	if len(row) == 0 {
		return nil
	}

	idb := s.idb(qc)
	values := map[string]interface{}(row)
	res, err := idb.NewUpdate().
		Model(&values).
		TableExpr("?", bun.Ident(table)).
		Where("? = ?", bun.Ident(idColumn), id).
		Exec(ctx)
	if err != nil {
		return ClassifyError(table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ClassifyError(table, err)
	}
	if affected > 0 {
		return nil
	}

	// MySQL reports unchanged rows as not affected.
	exists, err := idb.NewSelect().
		TableExpr("?", bun.Ident(table)).
		Where("? = ?", bun.Ident(idColumn), id).
		Exists(ctx)
	if err != nil {
		return ClassifyError(table, err)
	}
	if !exists {
		return entity.NewNotFoundError(table, idColumn, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, qc *store.QueryContext, table, idColumn string, id any) (int64, error) {
	res, err := s.idb(qc).NewDelete().
		TableExpr("?", bun.Ident(table)).
		Where("? = ?", bun.Ident(idColumn), id).
		Exec(ctx)
	if err != nil {
		return 0, ClassifyError(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ClassifyError(table, err)
	}
	return n, nil
}

func (s *Store) scan(ctx context.Context, table string, q *bun.SelectQuery) ([]store.Row, error) {
	start := time.Now()
	var raw []map[string]interface{}
	if err := q.Scan(ctx, &raw); err != nil && err != sql.ErrNoRows {
		return nil, ClassifyError(table, err)
	}

	s.logger.DebugContext(ctx, "store fetch",
		"table", table,
		"rows", len(raw),
		"duration", time.Since(start),
	)

	rows := make([]store.Row, len(raw))
	for i, r := range raw {
		rows[i] = store.NormalizeRow(store.Row(r))
	}
	return rows, nil
}

func whereEqual(q *bun.SelectQuery, column string, value any) *bun.SelectQuery {
	if value == nil {
		return q.Where("? IS NULL", bun.Ident(column))
	}
	return q.Where("? = ?", bun.Ident(column), value)
}

func whereCondition(q *bun.SelectQuery, cond store.Condition) *bun.SelectQuery {
	var values []any
	hasNull := false
	for _, v := range cond.Values {
		if v == nil {
			hasNull = true
			continue
		}
		values = append(values, v)
	}

	switch {
	case len(values) == 0 && hasNull:
		return q.Where("? IS NULL", bun.Ident(cond.Column))
	case len(values) == 0:
		return q.Where("1 = 0")
	case !hasNull:
		return q.Where("? IN (?)", bun.Ident(cond.Column), bun.In(values))
	}

	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("? IN (?)", bun.Ident(cond.Column), bun.In(values)).
			WhereOr("? IS NULL", bun.Ident(cond.Column))
	})
}

func applyOptions(q *bun.SelectQuery, opts store.QueryOptions) *bun.SelectQuery {
	for _, ob := range opts.OrderBy {
		if ob.Desc {
			q = q.OrderExpr("? DESC", bun.Ident(ob.Column))
		} else {
			q = q.OrderExpr("? ASC", bun.Ident(ob.Column))
		}
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}
