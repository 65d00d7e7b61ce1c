package world

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Schema of the roster seed database.
const rosterSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id   INTEGER PRIMARY KEY,
	name TEXT    NOT NULL,
	age  INTEGER NOT NULL CHECK (age >= 0)
);`

// Seed is one row of the roster seed database.
type Seed struct {
	ID   int64
	Name string
	Age  int
}

// openSeedDB opens (creating if needed) the SQLite file at path and
// ensures the entities table exists.
func openSeedDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, rosterSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// LoadRoster reads the entities table at path and spawns one entity per
// row, in id order. Member i of the roster is the row with the i-th
// smallest id.
func LoadRoster(ctx context.Context, path string) (*Roster, error) {
	db, err := openSeedDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT id, name, age FROM entities ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	r := NewRoster()
	for rows.Next() {
		var s Seed
		if err := rows.Scan(&s.ID, &s.Name, &s.Age); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		r.Add(s.Name, s.Age)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	return r, nil
}

// WriteSeeds inserts or replaces seed rows in the database at path.
func WriteSeeds(ctx context.Context, path string, seeds []Seed) error {
	db, err := openSeedDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO entities (id, name, age) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range seeds {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.Age); err != nil {
			return fmt.Errorf("insert entity %d: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
