package table

import (
	"fmt"

	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/record"
)

// Table is an in-memory relation: a schema, its rows, and any ordered
// indexes built over them. The executor reads tables; it never writes them.
type Table struct {
	name    string
	schema  *record.Schema
	rows    []record.Row
	indexes map[string]*Index
}

// NewTable creates a table with the given schema and rows. The schema is
// bound to the table name so joined rows can tell same-named columns of
// different relations apart.
func NewTable(name string, schema *record.Schema, rows []record.Row) *Table {
	schema.Qualify(name)
	return &Table{
		name:    name,
		schema:  schema,
		rows:    rows,
		indexes: make(map[string]*Index),
	}
}

func (t *Table) Name() string           { return t.name }
func (t *Table) Schema() *record.Schema { return t.schema }

// Rows returns the table's rows in heap order.
func (t *Table) Rows() []record.Row { return t.rows }

// RowCount returns the number of rows in the table.
func (t *Table) RowCount() int { return len(t.rows) }

// CreateIndex builds an ordered index over the table per the definition.
func (t *Table) CreateIndex(def metadata.IndexDef) error {
	for _, col := range def.Columns {
		if !t.schema.HasField(col) {
			return fmt.Errorf("index %q: column %q not in table %q", def.Name, col, t.name)
		}
	}
	t.indexes[def.Name] = newIndex(def, t)
	return nil
}

// Index returns the named index, or nil if it does not exist.
func (t *Table) Index(name string) *Index {
	return t.indexes[name]
}

// Store resolves relation names to tables for the executor.
type Store struct {
	tables map[string]*Table
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// AddTable registers a table under its name.
func (s *Store) AddTable(t *Table) {
	s.tables[t.Name()] = t
}

// Table returns the named table.
func (s *Store) Table(name string) (*Table, error) {
	t, exists := s.tables[name]
	if !exists {
		return nil, fmt.Errorf("unknown relation %q", name)
	}
	return t, nil
}
