package sqlstore

import (
	"database/sql"
	"embed"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the dialect to db.
func Migrate(db *sql.DB, dialect Dialect) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+dialect.migrations())
	if err != nil {
		return errors.Wrap(err, "failed to open migrations")
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}

	var driver database.Driver
	switch dialect {
	case Postgres:
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	case SQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case MySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		return errors.Errorf("unsupported database dialect %q", dialect)
	}
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	// Closing m would close db, which belongs to the caller.
	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration failed")
	}
	return nil
}
