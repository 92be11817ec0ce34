package ddl

import (
	"strings"
	"testing"

	gddl "datalake/internal/ddl"
)

// TestQuoteIdent verifies Postgres identifier quoting and escaping.
func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "name", want: `"name"`},
		{name: "reserved word", in: "user", want: `"user"`},
		{name: "with space", in: "user name", want: `"user name"`},
		{name: "with double quote", in: `weird"name`, want: `"weird""name"`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := QuoteIdent(tt.in); got != tt.want {
				t.Fatalf("QuoteIdent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestQuoteFQN verifies quoting of schema-qualified table names.
func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "songs", want: `"songs"`},
		{in: "public.songs", want: `"public"."songs"`},
		{in: ".public..songs.", want: `"public"."songs"`},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := QuoteFQN(tt.in); got != tt.want {
			t.Fatalf("QuoteFQN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestBuildCreateTableSQLErrors validates input validation in
// BuildCreateTableSQL.
func TestBuildCreateTableSQLErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  gddl.TableDef
	}{
		{name: "empty FQN", def: gddl.TableDef{FQN: "   ", Columns: []gddl.ColumnDef{{Name: "id", Type: gddl.BigInt}}}},
		{name: "no columns", def: gddl.TableDef{FQN: "public.users"}},
		{name: "column empty name", def: gddl.TableDef{FQN: "public.users", Columns: []gddl.ColumnDef{{Name: " ", Type: gddl.Text}}}},
		{name: "column missing type", def: gddl.TableDef{FQN: "public.users", Columns: []gddl.ColumnDef{{Name: "id"}}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(tt.def)
			if err == nil {
				t.Fatalf("BuildCreateTableSQL(%+v) error = nil, want non-nil", tt.def)
			}
			if got != "" {
				t.Fatalf("BuildCreateTableSQL(%+v) SQL = %q, want empty string on error", tt.def, got)
			}
		})
	}
}

// TestBuildCreateTableSQLSongplays renders the fact table.
func TestBuildCreateTableSQLSongplays(t *testing.T) {
	t.Parallel()

	def := gddl.TableDef{
		FQN: "public.songplays",
		Columns: []gddl.ColumnDef{
			{Name: "songplay_id", Type: gddl.Text, PrimaryKey: true},
			{Name: "session_id", Type: gddl.BigInt, Nullable: true},
			{Name: "artist_latitude", Type: gddl.Double, Nullable: true},
			{Name: "start_time", Type: gddl.Text},
		},
	}

	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL() error = %v", err)
	}

	want := "" +
		`CREATE TABLE IF NOT EXISTS "public"."songplays" (` + "\n" +
		`  "songplay_id" TEXT NOT NULL,` + "\n" +
		`  "session_id" BIGINT,` + "\n" +
		`  "artist_latitude" DOUBLE PRECISION,` + "\n" +
		`  "start_time" TEXT NOT NULL,` + "\n" +
		`  PRIMARY KEY ("songplay_id")` + "\n" +
		`);`

	if got != want {
		t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", got, want)
	}
}

// TestBuildCreateTableSQLPrimaryKeys verifies that primary-key columns are
// forced to NOT NULL and that the PRIMARY KEY clause is sorted alphabetically.
func TestBuildCreateTableSQLPrimaryKeys(t *testing.T) {
	t.Parallel()

	def := gddl.TableDef{
		FQN: "time",
		Columns: []gddl.ColumnDef{
			{Name: "start_time", Type: gddl.Text, PrimaryKey: true, Nullable: true},
			{Name: "hour", Type: gddl.BigInt, PrimaryKey: true, Nullable: true},
		},
	}

	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL() error = %v", err)
	}
	if !strings.Contains(got, `"start_time" TEXT NOT NULL`) {
		t.Fatalf("primary key column start_time not NOT NULL:\n%s", got)
	}
	if !strings.Contains(got, `PRIMARY KEY ("hour", "start_time")`) {
		t.Fatalf("PRIMARY KEY clause not sorted as expected:\n%s", got)
	}
}
