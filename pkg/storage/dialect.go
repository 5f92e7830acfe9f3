package storage

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect selects the SQL driver and its placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect accepts the dialect names and common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", s)
	}
}

// Driver is the database/sql driver name.
func (d Dialect) Driver() string {
	return string(d)
}

// Placeholder is the squirrel placeholder format of the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// SortCollation is the collation giving byte order on text columns, or ""
// when the default collation already does. Postgres databases usually
// default to a locale collation.
func (d Dialect) SortCollation() string {
	if d == DialectPostgres {
		return "C"
	}
	return ""
}
