package repo

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to the latest version. Safe to run on every
// startup; a current schema is a no-op.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil { return fmt.Errorf("open database: %w", err) }
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil { return fmt.Errorf("ping database: %w", err) }

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{MigrationsTable: "schema_migrations_dora"})
	if err != nil { return fmt.Errorf("create migrate driver: %w", err) }

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil { return fmt.Errorf("load migrations: %w", err) }

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil { return fmt.Errorf("create migrator: %w", err) }

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
