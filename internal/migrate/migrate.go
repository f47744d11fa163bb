package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// Up applies the embedded schema for driver ("mysql" or "postgres").
func Up(ctx context.Context, db *sql.DB, driver string) error {
	var dialect, dir string
	switch driver {
	case "mysql":
		dialect, dir = "mysql", "migrations/mysql"
	case "postgres":
		dialect, dir = "postgres", "migrations/postgres"
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", driver, err)
	}
	return nil
}

// OpenPostgres opens a database/sql handle through the pgx stdlib driver for goose.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}
