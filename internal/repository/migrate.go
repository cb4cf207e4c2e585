package repository

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending migrations to the database at databaseURL.
func Migrate(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	return migrateDB(db, goose.Up)
}

// Reset rolls every migration back and applies them again, leaving an empty
// schema. Integration tests call it between runs.
func Reset(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database for reset: %w", err)
	}
	defer db.Close()

	if err := migrateDB(db, goose.Reset); err != nil {
		return err
	}
	return migrateDB(db, goose.Up)
}

func migrateDB(db *sql.DB, step func(*sql.DB, string, ...goose.OptionsFunc) error) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := step(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
