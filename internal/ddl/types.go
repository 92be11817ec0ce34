// Package ddl defines a small, backend-agnostic model of a warehouse table.
//
// Column types are logical ("text", "bigint", "double"); each storage backend
// maps them to its own SQL types and renders the CREATE TABLE statement in its
// dialect.
package ddl

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Logical column types understood by every backend's MapType.
const (
	Text   = "text"
	BigInt = "bigint"
	Double = "double"
)

// ColumnDef describes a single column.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Type: logical type (Text, BigInt, Double)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
type ColumnDef struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name and an ordered list of columns. FQN is in
// dotted form ("schema.table" or "table").
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Names returns the column names in order.
func (t TableDef) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (t TableDef) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks the invariants every renderer relies on: a non-empty name,
// at least one column, and named, typed columns without duplicates.
func (t TableDef) Validate() error {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return errors.New("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return errors.Newf("ddl: table %s: at least one column is required", fqn)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.Newf("ddl: column with empty name in table %s", fqn)
		}
		if strings.TrimSpace(c.Type) == "" {
			return errors.Newf("ddl: column %s missing type", name)
		}
		if _, dup := seen[name]; dup {
			return errors.Newf("ddl: duplicate column %s in table %s", name, fqn)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Qualify joins an optional schema and a table name.
func Qualify(schema, table string) string {
	if s := strings.TrimSpace(schema); s != "" {
		return s + "." + table
	}
	return table
}
