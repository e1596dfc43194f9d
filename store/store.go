package store

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Row is one stored record keyed by column name.
type Row map[string]any

// Condition matches rows whose Column equals any of Values. A nil value
// matches NULL.
type Condition struct {
	Column string
	Values []any
}

// OrderBy sorts results by Column.
type OrderBy struct {
	Column string
	Desc   bool
}

// QueryOptions bounds and orders non cached queries.
type QueryOptions struct {
	Limit   int
	Offset  int
	OrderBy []OrderBy
}

// Adapter executes queries against the backing store. Every error it returns
// is an *entity.StoreError.
//
// The connection used for each call comes from the QueryContext, so calls made
// inside a transaction see its uncommitted writes.
type Adapter interface {
	// FetchManyWhere returns rows whose columns equal one of tuples. Each
	// tuple holds one value per column.
	FetchManyWhere(ctx context.Context, qc *QueryContext, table string, columns []string, tuples [][]any) ([]Row, error)

	// FetchManyByFieldEquality returns rows matching every condition.
	FetchManyByFieldEquality(ctx context.Context, qc *QueryContext, table string, conditions []Condition, opts QueryOptions) ([]Row, error)

	// FetchManyByRawWhere passes where and args through to the store.
	FetchManyByRawWhere(ctx context.Context, qc *QueryContext, table, where string, args []any, opts QueryOptions) ([]Row, error)

	Insert(ctx context.Context, qc *QueryContext, table string, row Row) error

	// Update writes row to the record identified by idColumn = id and returns
	// a not found error when nothing matched.
	Update(ctx context.Context, qc *QueryContext, table, idColumn string, id any, row Row) error

	// Delete removes the record identified by idColumn = id and returns the
	// number of rows removed.
	Delete(ctx context.Context, qc *QueryContext, table, idColumn string, id any) (int64, error)
}

// NormalizeValue maps equivalent Go values onto one representation so values
// read from a store compare equal to the values they were queried with:
// integers become int64, floats float64, byte slices and UUIDs strings, and
// times are converted to UTC.
func NormalizeValue(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case string, int64, float64, bool:
		return v
	case int:
		return int64(tv)
	case int8:
		return int64(tv)
	case int16:
		return int64(tv)
	case int32:
		return int64(tv)
	case uint8:
		return int64(tv)
	case uint16:
		return int64(tv)
	case uint32:
		return int64(tv)
	case uint:
		if uint64(tv) <= 1<<63-1 {
			return int64(tv)
		}
		return uint64(tv)
	case uint64:
		if tv <= 1<<63-1 {
			return int64(tv)
		}
		return tv
	case float32:
		return float64(tv)
	case []byte:
		return string(tv)
	case uuid.UUID:
		return tv.String()
	case time.Time:
		return tv.UTC()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// NormalizeRow normalizes every value of row in place and returns it.
func NormalizeRow(row Row) Row {
	for k, v := range row {
		row[k] = NormalizeValue(v)
	}
	return row
}
