// Package memstore provides an in-memory store.Adapter with journaled,
// nestable transactions, unique constraints and foreign key actions. It backs
// tests and embedded use where no SQL database is available.
//
// Writes made in a transaction are applied immediately and undone on
// rollback. There is no isolation between concurrent transactions.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/store"
)

// OnDelete is the action a foreign key takes when the referenced row is
// deleted.
type OnDelete int

const (
	// Restrict rejects the delete while referencing rows exist.
	Restrict OnDelete = iota
	// Cascade deletes referencing rows.
	Cascade
	// SetNull clears the referencing column.
	SetNull
	// NoAction leaves referencing rows untouched.
	NoAction
)

// WhereFunc evaluates a raw where clause registered with RegisterWhere.
type WhereFunc func(row store.Row, args []any) bool

type record struct {
	seq int64
	row store.Row
}

type uniqueConstraint struct {
	name    string
	columns []string
}

type foreignKey struct {
	table     string
	column    string
	refTable  string
	refColumn string
	onDelete  OnDelete
}

// Store is an in-memory store.Adapter and store.Transactor.
type Store struct {
	mu      sync.Mutex
	seq     int64
	tables  map[string][]*record
	uniques map[string][]uniqueConstraint
	fks     []foreignKey
	wheres  map[string]WhereFunc
	fetches map[string]int
}

var (
	_ store.Adapter    = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		tables:  make(map[string][]*record),
		uniques: make(map[string][]uniqueConstraint),
		wheres:  make(map[string]WhereFunc),
		fetches: make(map[string]int),
	}
}

// AddUniqueConstraint rejects writes that would give two rows of table equal
// non null values in every column.
func (s *Store) AddUniqueConstraint(table string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := table + "_" + strings.Join(columns, "_") + "_key"
	s.uniques[table] = append(s.uniques[table], uniqueConstraint{name: name, columns: columns})
}

// AddForeignKey declares that table.column references refTable.refColumn.
func (s *Store) AddForeignKey(table, column, refTable, refColumn string, onDelete OnDelete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fks = append(s.fks, foreignKey{
		table:     table,
		column:    column,
		refTable:  refTable,
		refColumn: refColumn,
		onDelete:  onDelete,
	})
}

// RegisterWhere makes where usable with FetchManyByRawWhere.
func (s *Store) RegisterWhere(where string, fn WhereFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wheres[where] = fn
}

// Seed inserts rows without checking constraints or journaling.
func (s *Store) Seed(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.appendRecord(table, cloneRow(row))
	}
}

// Rows returns a copy of every row of table in insertion order.
func (s *Store) Rows(table string) []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Row, 0, len(s.tables[table]))
	for _, rec := range s.tables[table] {
		out = append(out, cloneRow(rec.row))
	}
	return out
}

// FetchCount returns the number of fetch calls made against table.
func (s *Store) FetchCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[table]
}

// ResetFetchCounts zeroes every fetch counter.
func (s *Store) ResetFetchCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = make(map[string]int)
}

// Conn implements store.Transactor.
func (s *Store) Conn() any { return s }

// Begin implements store.Transactor.
func (s *Store) Begin(context.Context) (store.Tx, error) {
	return &Tx{store: s}, nil
}

// Tx is a journaled transaction. Nested transactions hand their journal to
// the parent on commit.
type Tx struct {
	store  *Store
	parent *Tx
	undo   []func()
	done   bool
}

func (tx *Tx) Conn() any { return tx }

func (tx *Tx) Begin(context.Context) (store.Tx, error) {
	if tx.done {
		return nil, errTxDone
	}
	return &Tx{store: tx.store, parent: tx}, nil
}

func (tx *Tx) Commit(context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	if tx.parent != nil {
		tx.store.mu.Lock()
		tx.parent.undo = append(tx.parent.undo, tx.undo...)
		tx.store.mu.Unlock()
	}
	tx.undo = nil
	return nil
}

func (tx *Tx) Rollback(context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	return nil
}

var errTxDone = errors.New("memstore: transaction already committed or rolled back")

// journal returns the transaction behind qc, nil outside transactions.
func journal(qc *store.QueryContext) *Tx {
	if qc == nil {
		return nil
	}
	tx, _ := qc.Conn().(*Tx)
	return tx
}

func (s *Store) record(tx *Tx, undo func()) {
	if tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *Store) countFetch(table string) {
	s.fetches[table]++
}

func (s *Store) FetchManyWhere(_ context.Context, _ *store.QueryContext, table string, columns []string, tuples [][]any) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countFetch(table)

	var out []store.Row
	for _, rec := range s.tables[table] {
		for _, tuple := range tuples {
			if len(tuple) != len(columns) {
				return nil, entity.NewStoreError(entity.StoreErrorUnknown, table, "",
					fmt.Errorf("memstore: tuple has %d values for %d columns", len(tuple), len(columns)))
			}
			if matchesTuple(rec.row, columns, tuple) {
				out = append(out, cloneRow(rec.row))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) FetchManyByFieldEquality(_ context.Context, _ *store.QueryContext, table string, conditions []store.Condition, opts store.QueryOptions) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countFetch(table)

	var out []store.Row
	for _, rec := range s.tables[table] {
		if matchesConditions(rec.row, conditions) {
			out = append(out, cloneRow(rec.row))
		}
	}
	return applyOptions(out, opts), nil
}

func (s *Store) FetchManyByRawWhere(_ context.Context, _ *store.QueryContext, table, where string, args []any, opts store.QueryOptions) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countFetch(table)

	fn, ok := s.wheres[where]
	if !ok {
		return nil, entity.NewStoreError(entity.StoreErrorUnknown, table, "",
			fmt.Errorf("memstore: where clause %q is not registered", where))
	}

	var out []store.Row
	for _, rec := range s.tables[table] {
		if fn(rec.row, args) {
			out = append(out, cloneRow(rec.row))
		}
	}
	return applyOptions(out, opts), nil
}

func (s *Store) Insert(_ context.Context, qc *store.QueryContext, table string, row store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row = cloneRow(row)
	if err := s.checkUnique(table, row, nil); err != nil {
		return err
	}

	rec := s.appendRecord(table, row)
	s.record(journal(qc), func() { s.removeRecord(table, rec) })
	return nil
}

func (s *Store) Update(_ context.Context, qc *store.QueryContext, table, idColumn string, id any, row store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.find(table, idColumn, id)
	if rec == nil {
		return entity.NewNotFoundError(table, idColumn, id)
	}

	updated := cloneRow(rec.row)
	for k, v := range row {
		updated[k] = store.NormalizeValue(v)
	}
	if err := s.checkUnique(table, updated, rec); err != nil {
		return err
	}

	previous := rec.row
	rec.row = updated
	s.record(journal(qc), func() { rec.row = previous })
	return nil
}

func (s *Store) Delete(_ context.Context, qc *store.QueryContext, table, idColumn string, id any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := journal(qc)
	var removed int64
	for _, rec := range s.matching(table, idColumn, id) {
		if err := s.deleteRecord(tx, table, rec); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// deleteRecord removes rec and applies the foreign key actions referencing
// it. Callers hold s.mu.
func (s *Store) deleteRecord(tx *Tx, table string, rec *record) error {
	for _, fk := range s.fks {
		if fk.refTable != table {
			continue
		}
		refValue := rec.row[fk.refColumn]
		if refValue == nil {
			continue
		}

		for _, child := range s.matching(fk.table, fk.column, refValue) {
			switch fk.onDelete {
			case Restrict:
				return entity.NewStoreError(entity.StoreErrorForeignKeyConstraint, fk.table,
					fk.table+"_"+fk.column+"_fkey",
					fmt.Errorf("memstore: %s.%s still references %s", fk.table, fk.column, table))
			case Cascade:
				if err := s.deleteRecord(tx, fk.table, child); err != nil {
					return err
				}
			case SetNull:
				previous := child.row
				child.row = cloneRow(child.row)
				child.row[fk.column] = nil
				c := child
				s.record(tx, func() { c.row = previous })
			}
		}
	}

	idx := s.removeRecord(table, rec)
	if idx >= 0 {
		s.record(tx, func() { s.restoreRecord(table, rec) })
	}
	return nil
}

func (s *Store) appendRecord(table string, row store.Row) *record {
	s.seq++
	rec := &record{seq: s.seq, row: store.NormalizeRow(row)}
	s.tables[table] = append(s.tables[table], rec)
	return rec
}

func (s *Store) removeRecord(table string, rec *record) int {
	records := s.tables[table]
	for i, r := range records {
		if r == rec {
			s.tables[table] = append(records[:i:i], records[i+1:]...)
			return i
		}
	}
	return -1
}

func (s *Store) restoreRecord(table string, rec *record) {
	records := append(s.tables[table], rec)
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	s.tables[table] = records
}

func (s *Store) find(table, column string, value any) *record {
	matches := s.matching(table, column, value)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

func (s *Store) matching(table, column string, value any) []*record {
	var out []*record
	for _, rec := range s.tables[table] {
		if equal(rec.row[column], value) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) checkUnique(table string, row store.Row, self *record) error {
	for _, uc := range s.uniques[table] {
		values := make([]any, len(uc.columns))
		skip := false
		for i, col := range uc.columns {
			values[i] = row[col]
			if values[i] == nil {
				skip = true
			}
		}
		if skip {
			continue
		}
		for _, rec := range s.tables[table] {
			if rec == self {
				continue
			}
			if matchesTuple(rec.row, uc.columns, values) {
				return entity.NewStoreError(entity.StoreErrorUniqueConstraint, table, uc.name,
					fmt.Errorf("memstore: duplicate value for %s", uc.name))
			}
		}
	}
	return nil
}

func matchesTuple(row store.Row, columns []string, tuple []any) bool {
	for i, col := range columns {
		if !equal(row[col], tuple[i]) {
			return false
		}
	}
	return true
}

func matchesConditions(row store.Row, conditions []store.Condition) bool {
	for _, cond := range conditions {
		matched := false
		for _, v := range cond.Values {
			if equal(row[cond.Column], v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func applyOptions(rows []store.Row, opts store.QueryOptions) []store.Row {
	if len(opts.OrderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, ob := range opts.OrderBy {
				c := compare(rows[i][ob.Column], rows[j][ob.Column])
				if c == 0 {
					continue
				}
				if ob.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}

func compare(a, b any) int {
	a, b = store.NormalizeValue(a), store.NormalizeValue(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return cmpOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmpOrdered(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equal(a, b any) bool {
	return reflect.DeepEqual(store.NormalizeValue(a), store.NormalizeValue(b))
}

func cloneRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
