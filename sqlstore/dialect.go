package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
)

// ParseDialect accepts the dialect names and common aliases.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported database dialect %q", name)
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return string(d)
}

// migrations is the directory holding the dialect's migrations.
func (d Dialect) migrations() string {
	if d == SQLite {
		return "sqlite3"
	}
	return string(d)
}

// placeholder returns the bind variable for the given 1-based index.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func (d Dialect) placeholder(i int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (d Dialect) placeholders(n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = d.placeholder(i + 1)
	}
	return strings.Join(values, ", ")
}

// upsertSQL returns an insert statement that replaces the row for an existing
// key. Columns after the first are updated on conflict.
func (d Dialect) upsertSQL(table string, columns []string) string {
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), d.placeholders(len(columns)))

	updates := make([]string, 0, len(columns)-1)
	for _, column := range columns[1:] {
		if d == MySQL {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", column, column))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", column, column))
		}
	}
	if d == MySQL {
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, columns[0], strings.Join(updates, ", "))
}

// dsn normalizes a connection string for the driver.
func (d Dialect) dsn(dsn string) string {
	switch d {
	case MySQL:
		return strings.TrimPrefix(dsn, "mysql://")
	case SQLite:
		return strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite3://"), "sqlite://")
	}
	return dsn
}
