package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx, so every store
// method runs unchanged inside or outside a transaction.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Database owns the SQLite connection and hands out store views over it.
type Database struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite database at dbPath and applies
// schema migrations. A nil logger is replaced with a no-op one.
func Open(dbPath string, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("database ready", zap.String("path", dbPath))
	return &Database{db: db, log: log}, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error { return d.db.Close() }

// withTx runs fn inside a single commit-or-rollback boundary. Paired
// mutations (availability change + ledger write) must go through here so
// a failure partway leaves no half-state.
func (d *Database) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Store accessors bound to the plain connection. The engine builds
// transaction-scoped equivalents inside withTx.

func (d *Database) Catalog() *CatalogStore    { return &CatalogStore{q: d.db, log: d.log} }
func (d *Database) Borrowers() *BorrowerStore { return &BorrowerStore{q: d.db, log: d.log} }
func (d *Database) Ledger() *LedgerStore      { return &LedgerStore{q: d.db, log: d.log} }
func (d *Database) Reports() *Reports         { return &Reports{q: d.db} }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL UNIQUE,
            publisher TEXT NOT NULL DEFAULT '',
            publication_year INTEGER NOT NULL DEFAULT 0,
            genre TEXT NOT NULL DEFAULT '',
            total_copies INTEGER NOT NULL DEFAULT 0,
            available_copies INTEGER NOT NULL DEFAULT 0,
            shelf_location TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (available_copies BETWEEN 0 AND total_copies)
        );`,
		`CREATE TABLE IF NOT EXISTS borrowers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            phone TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            membership_type TEXT NOT NULL,
            membership_start DATETIME NOT NULL,
            active BOOLEAN NOT NULL DEFAULT 1,
            max_books INTEGER NOT NULL,
            password_hash TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		// No cascading deletes: rows here are the permanent ledger and
		// parent deletion is blocked at the application level instead.
		`CREATE TABLE IF NOT EXISTS transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
            type TEXT NOT NULL,
            transacted_at DATETIME NOT NULL,
            due_date DATETIME,
            return_date DATETIME,
            fine_amount TEXT NOT NULL DEFAULT '0',
            status TEXT NOT NULL,
            notes TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_borrower ON transactions(borrower_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_book ON transactions(book_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_due ON transactions(status, due_date);`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
            reserved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            fulfilled_at DATETIME,
            UNIQUE(book_id, borrower_id)
        );`,
		// FTS5 virtual table over catalog metadata
		`CREATE VIRTUAL TABLE IF NOT EXISTS books_fts USING fts5(
            title, author, publisher, genre, content='books', content_rowid='id'
        );`,
		// Triggers to keep FTS in sync
		`CREATE TRIGGER IF NOT EXISTS trg_books_ai AFTER INSERT ON books BEGIN
            INSERT INTO books_fts(rowid,title,author,publisher,genre) VALUES(new.id,new.title,new.author,new.publisher,new.genre);
        END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_books_ad AFTER DELETE ON books BEGIN
            INSERT INTO books_fts(books_fts, rowid, title, author, publisher, genre) VALUES('delete',old.id,old.title,old.author,old.publisher,old.genre);
        END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_books_au AFTER UPDATE ON books BEGIN
            INSERT INTO books_fts(books_fts, rowid, title, author, publisher, genre) VALUES('delete',old.id,old.title,old.author,old.publisher,old.genre);
            INSERT INTO books_fts(rowid,title,author,publisher,genre) VALUES(new.id,new.title,new.author,new.publisher,new.genre);
        END;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}
