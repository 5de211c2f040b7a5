package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"

	memoryDatabase = ":memory:"
)

func dialectFor(databaseURL string) dialect {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return dialectPostgres
	}
	return dialectSQLite
}

func (d dialect) driver() string {
	if d == dialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d dialect) gooseDialect() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// openDB opens and pings the store named by databaseURL. Anything that is not
// a postgres URL is treated as a SQLite path.
func openDB(ctx context.Context, databaseURL string) (*sql.DB, dialect, error) {
	d := dialectFor(databaseURL)

	db, err := sql.Open(d.driver(), databaseURL)
	if err != nil {
		return nil, d, err
	}

	if d == dialectSQLite {
		// Every pooled connection to ":memory:" would be its own database, and
		// SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, d, err
	}

	return db, d, nil
}

// migrateDB brings the schema up to date. Running it again is a no-op.
func migrateDB(ctx context.Context, db *sql.DB, d dialect) (int64, error) {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(d.gooseDialect()); err != nil {
		return 0, fmt.Errorf("setting migration dialect: %w", err)
	}

	dir := "migrations/" + string(d)
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return 0, fmt.Errorf("running migrations: %w", err)
	}

	return goose.GetDBVersionContext(ctx, db)
}

// seedDB fills an empty store with a few sample entries.
func seedDB(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, storeFailure("counting entries", err)
	}
	if count > 0 {
		return 0, nil
	}

	samples := []Entry{
		{Title: "Hello, journal", Text: "First entry. *Everything* is awesome!"},
		{Title: "Markdown works", Text: "* lists\n* `code`\n* **bold**"},
		{Title: "Some Go", Text: "```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```"},
	}

	err := withTx(ctx, db, func(ctx context.Context, tx DBTX) error {
		store := NewEntryStore(tx)
		for _, e := range samples {
			if _, err := store.Create(ctx, e.Title, e.Text); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(samples), nil
}
