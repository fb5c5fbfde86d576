package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"relay_bot/migrations"
)

const defaultDBPath = "./data/relay.db"

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", defaultDBPath), "path to the relay database")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	if err := run(*dbPath, cmd); err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}

func run(dbPath, cmd string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch cmd {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "reset":
		return goose.Reset(db, ".")
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Manage the relay database schema.

Usage: migrate [-db path] <command>

Commands:
  up       apply all pending migrations
  up-one   apply the next pending migration
  down     roll back the most recent migration
  status   print the status of each migration
  version  print the current schema version
  reset    roll back everything
`)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
