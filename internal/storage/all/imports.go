// Package all wires the built-in warehouse backends into the storage factory.
//
// Importing it (as a blank import) runs the init functions of each backend,
// which register their factories and DDL bootstrappers:
//
//   - "postgres" (datalake/internal/storage/postgres)
//   - "mssql"    (datalake/internal/storage/mssql)
//   - "sqlite"   (datalake/internal/storage/sqlite)
//
// A binary that needs only some backends can import them directly instead.
package all

import (
	_ "datalake/internal/storage/mssql"
	_ "datalake/internal/storage/postgres"
	_ "datalake/internal/storage/sqlite"
)
