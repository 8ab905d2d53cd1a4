package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/sqlgen"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is the user_version after every migration ran.
const currentSchemaVersion = ir.SchemaVersion

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("row not found")

// Store executes plans against a SQLite database laid out for one model.
type Store struct {
	db       *sql.DB
	model    *schema.Model
	compiler *sqlgen.Compiler
}

// Open creates or opens the SQLite database at path and creates the
// tables of m. Foreign keys are enforced and not deferrable, so every
// plan must already be in dependency order. Opening an existing database
// again with the same model is safe; path may be ":memory:".
func Open(path string, m *schema.Model) (*Store, error) {
	compiler, err := sqlgen.NewCompiler(m)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out tables: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, compiler); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, model: m, compiler: compiler}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Model returns the model the tables were created for.
func (s *Store) Model() *schema.Model { return s.model }

// pragmas are applied to every connection, in order.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the bookkeeping and model tables if they don't exist
// and runs migrations. This function is idempotent.
func applySchema(db *sql.DB, compiler *sqlgen.Compiler) error {
	stmts := append([]string{schemaSQL}, compiler.CreateTables()...)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return migrate(db)
}

// migrations[i] brings a database from user_version i to i+1.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_flushes_plan_hash ON flushes(plan_hash)`,
}

// migrate applies the migrations a database has not seen yet and records
// the reached version in user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
