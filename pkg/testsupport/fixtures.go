package testsupport

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/goliatone/go-entity/store"
	"github.com/goliatone/go-entity/store/memstore"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t *testing.T, path string, dest interface{}) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// DecodeRows decodes a JSON object of table name to row list. Integral
// numbers decode as int64 and other numbers as float64.
func DecodeRows(data []byte) (map[string][]store.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string][]map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	out := make(map[string][]store.Row, len(raw))
	for table, rows := range raw {
		for _, r := range rows {
			row := make(store.Row, len(r))
			for col, v := range r {
				row[col] = jsonValue(v)
			}
			out[table] = append(out[table], row)
		}
	}
	return out, nil
}

func jsonValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// SeedFixture seeds mem with the rows of a JSON fixture file, see
// DecodeRows. Tables are seeded in name order.
func SeedFixture(t *testing.T, mem *memstore.Store, path string) {
	t.Helper()

	tables, err := DecodeRows(LoadFixture(t, path))
	if err != nil {
		t.Fatalf("failed to decode rows fixture %s: %v", path, err)
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mem.Seed(name, tables[name]...)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
