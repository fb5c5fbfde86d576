// Package migrations carries the relay schema as embedded goose migrations
// so the binary can bring any database file up to date on startup.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS holds the SQL migration files compiled into the binary.
//
//go:embed *.sql
var FS embed.FS

// Run applies every pending migration to db. Safe to call on every start;
// an up-to-date schema is a no-op.
func Run(db *sql.DB) error {
	goose.SetBaseFS(FS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
