package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DBTX is the subset of database/sql the entry store needs.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction: commit when fn returns nil, roll back
// on error or panic. Failures to begin or commit are store failures; errors
// returned by fn pass through unchanged.
func withTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("beginning transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = storeFailure("committing transaction", cerr)
		}
	}()

	return fn(ctx, tx)
}

// EntryStore owns entry identity and durability. It holds no state of its
// own besides the handle it runs on, so a store built over a *sql.Tx is the
// unit of work for one request.
type EntryStore struct {
	db  DBTX
	now func() time.Time
}

func NewEntryStore(db DBTX) *EntryStore {
	return &EntryStore{db: db, now: time.Now}
}

func validateEntry(title, text string) error {
	if strings.TrimSpace(title) == "" {
		return validationError("title is required")
	}
	if n := utf8.RuneCountInString(title); n > maxTitleLength {
		return validationError("title is %d characters, at most %d allowed", n, maxTitleLength)
	}
	if strings.TrimSpace(text) == "" {
		return validationError("text is required")
	}
	return nil
}

func parseEntryID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, validationError("invalid entry id %q", raw)
	}
	return id, nil
}

// Create inserts a new entry. The returned id and created time are assigned
// by the insert and become durable only when the enclosing transaction commits.
func (s *EntryStore) Create(ctx context.Context, title, text string) (*Entry, error) {
	if err := validateEntry(title, text); err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; truncate so the value read back matches.
	created := s.now().UTC().Truncate(time.Microsecond)

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO entries (title, text, created)
		VALUES ($1, $2, $3)
		RETURNING id`, title, text, created).Scan(&id)
	if err != nil {
		return nil, storeFailure("inserting entry", err)
	}

	return &Entry{ID: id, Title: title, Text: text, Created: created}, nil
}

func (s *EntryStore) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, text, created
		FROM entries
		WHERE id = $1`, id)

	var e Entry
	err := row.Scan(&e.ID, &e.Title, &e.Text, &e.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeFailure("reading entry", err)
	}

	return &e, nil
}

// List returns every entry, most recent first. Entries created in the same
// instant come back in reverse insertion order.
func (s *EntryStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, text, created
		FROM entries
		ORDER BY created DESC, id DESC`)
	if err != nil {
		return nil, storeFailure("listing entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.Text, &e.Created); err != nil {
			return nil, storeFailure("scanning entry", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storeFailure("listing entries", err)
	}

	return entries, nil
}

// Update replaces the title and text of an existing entry. Its id and
// created time never change.
func (s *EntryStore) Update(ctx context.Context, id int64, title, text string) (*Entry, error) {
	if err := validateEntry(title, text); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entries
		SET title = $1, text = $2
		WHERE id = $3`, title, text, id)
	if err != nil {
		return nil, storeFailure("updating entry", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, storeFailure("updating entry", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}

	return s.Get(ctx, id)
}
