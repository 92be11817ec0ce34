package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableDef_Validate(t *testing.T) {
	t.Parallel()

	ok := TableDef{FQN: "songs", Columns: []ColumnDef{{Name: "song_id", Type: Text}}}

	tests := []struct {
		name    string
		def     TableDef
		wantErr string
	}{
		{name: "valid", def: ok},
		{name: "empty fqn", def: TableDef{Columns: ok.Columns}, wantErr: "FQN must not be empty"},
		{name: "no columns", def: TableDef{FQN: "songs"}, wantErr: "at least one column"},
		{name: "empty column name", def: TableDef{FQN: "songs", Columns: []ColumnDef{{Type: Text}}}, wantErr: "empty name"},
		{name: "missing type", def: TableDef{FQN: "songs", Columns: []ColumnDef{{Name: "a"}}}, wantErr: "missing type"},
		{
			name:    "duplicate",
			def:     TableDef{FQN: "songs", Columns: []ColumnDef{{Name: "a", Type: Text}, {Name: "a", Type: BigInt}}},
			wantErr: "duplicate column a",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.def.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTableDef_NamesAndIndex(t *testing.T) {
	t.Parallel()

	def := TableDef{FQN: "t", Columns: []ColumnDef{{Name: "a", Type: Text}, {Name: "b", Type: BigInt}}}
	assert.Equal(t, []string{"a", "b"}, def.Names())
	assert.Equal(t, 1, def.Index("b"))
	assert.Equal(t, -1, def.Index("zzz"))
}

func TestQualify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "songs", Qualify("", "songs"))
	assert.Equal(t, "songs", Qualify("  ", "songs"))
	assert.Equal(t, "dbo.songs", Qualify("dbo", "songs"))
}
