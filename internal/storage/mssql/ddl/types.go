// Package ddl contains MSSQL-specific helpers for generating DDL.
//
// It maps logical column types into SQL Server types. The mapping is
// intentionally conservative and biased toward safe, widely-supported choices.
package ddl

import "strings"

// MapType maps a logical type string into a SQL Server column type.
//
// Unknown or empty kinds fall back to NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BIT"
	case "date":
		return "DATE"
	case "timestamp", "datetime", "timestamptz":
		return "DATETIME2"
	case "float", "double", "real":
		return "FLOAT"
	case "numeric", "decimal":
		return "DECIMAL(38, 10)"
	case "uuid":
		return "UNIQUEIDENTIFIER"
	default:
		return "NVARCHAR(MAX)"
	}
}

// keyType narrows unbounded string types, which SQL Server cannot index.
func keyType(sqlType string) string {
	if sqlType == "NVARCHAR(MAX)" {
		return "NVARCHAR(255)"
	}
	return sqlType
}
