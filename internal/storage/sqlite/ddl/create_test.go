package ddl

import (
	"testing"

	gddl "datalake/internal/ddl"
)

// TestBuildCreateTableSQL renders the time table in SQLite's dialect.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	def := gddl.TableDef{
		FQN: "main.time",
		Columns: []gddl.ColumnDef{
			{Name: "start_time", Type: gddl.Text, PrimaryKey: true},
			{Name: "hour", Type: gddl.BigInt},
			{Name: "lat", Type: gddl.Double, Nullable: true},
		},
	}

	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL() error = %v", err)
	}
	want := "" +
		`CREATE TABLE IF NOT EXISTS "main"."time" (` + "\n" +
		`  "start_time" TEXT NOT NULL,` + "\n" +
		`  "hour" INTEGER NOT NULL,` + "\n" +
		`  "lat" REAL,` + "\n" +
		`  PRIMARY KEY ("start_time")` + "\n" +
		`);`
	if got != want {
		t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", got, want)
	}
}

func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{in: "user", want: `"user"`},
		{in: " main . songs ", want: `"main"."songs"`},
		{in: `we"ird`, want: `"we""ird"`},
	}
	for _, tt := range tests {
		if got := QuoteFQN(tt.in); got != tt.want {
			t.Fatalf("QuoteFQN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
