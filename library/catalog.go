package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

const bookColumns = `id, title, author, isbn, publisher, publication_year, genre,
	total_copies, available_copies, shelf_location, created_at, updated_at`

// CatalogStore persists Book records.
type CatalogStore struct {
	q   querier
	log *zap.Logger
}

// Create validates and inserts a new book. The ISBN must not already be
// in the catalog.
func (s *CatalogStore) Create(ctx context.Context, b *Book) (int64, error) {
	if err := validate.Struct(b); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBook, err)
	}
	if b.PublicationYear != 0 && (b.PublicationYear <= 1000 || b.PublicationYear > time.Now().Year()) {
		return 0, fmt.Errorf("%w: publication year %d out of range", ErrInvalidBook, b.PublicationYear)
	}
	if err := b.validateCopies(); err != nil {
		return 0, err
	}

	if existing, err := s.FindByISBN(ctx, b.ISBN); err == nil && existing != nil {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateISBN, b.ISBN)
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
        INSERT INTO books (title, author, isbn, publisher, publication_year, genre,
            total_copies, available_copies, shelf_location, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		b.Title, b.Author, b.ISBN, b.Publisher, b.PublicationYear, b.Genre,
		b.TotalCopies, b.AvailableCopies, b.ShelfLocation, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateISBN, b.ISBN)
		}
		return 0, fmt.Errorf("insert book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	b.ID = id
	s.log.Info("book added", zap.Int64("book_id", id), zap.String("isbn", b.ISBN))
	return id, nil
}

// FindByID fetches a single book.
func (s *CatalogStore) FindByID(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := s.q.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id=?`, id)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound)
	}
	return &b, nil
}

// FindByISBN fetches a single book by its ISBN.
func (s *CatalogStore) FindByISBN(ctx context.Context, isbn string) (*Book, error) {
	var b Book
	err := s.q.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE isbn=?`, isbn)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound)
	}
	return &b, nil
}

// Update rewrites a book's attributes. Copy counts pass through the same
// invariant check as Create; a changed ISBN must stay unique.
func (s *CatalogStore) Update(ctx context.Context, b *Book) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBook, err)
	}
	if err := b.validateCopies(); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
        UPDATE books SET title=?, author=?, isbn=?, publisher=?, publication_year=?,
            genre=?, total_copies=?, available_copies=?, shelf_location=?, updated_at=?
        WHERE id=?`,
		b.Title, b.Author, b.ISBN, b.Publisher, b.PublicationYear, b.Genre,
		b.TotalCopies, b.AvailableCopies, b.ShelfLocation, time.Now().UTC(), b.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateISBN, b.ISBN)
		}
		return fmt.Errorf("update book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Delete removes a book from the catalog. Deletion is blocked while any
// of the book's loans are still open; the ledger history of closed loans
// stays behind and keeps its book_id reference valid only as long as the
// book exists, so a book with any ledger rows at all cannot go either.
func (s *CatalogStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	var open int
	err := s.q.GetContext(ctx, &open, `
        SELECT COUNT(*) FROM transactions WHERE book_id=? AND status IN (?,?)`,
		id, StatusActive, StatusOverdue)
	if err != nil {
		return fmt.Errorf("count open loans: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: %d open", ErrBookHasOpenLoans, open)
	}

	var total int
	err = s.q.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions WHERE book_id=?`, id)
	if err != nil {
		return fmt.Errorf("count ledger rows: %w", err)
	}
	if total > 0 {
		return fmt.Errorf("%w: %d ledger rows reference it", ErrBookHasHistory, total)
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM reservations WHERE book_id=?`, id); err != nil {
		return fmt.Errorf("delete reservations: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.log.Info("book removed", zap.Int64("book_id", id))
	return nil
}

// List returns the whole catalog ordered by id.
func (s *CatalogStore) List(ctx context.Context) ([]*Book, error) {
	var books []*Book
	err := s.q.SelectContext(ctx, &books, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Search leverages FTS5 over title, author, publisher and genre.
func (s *CatalogStore) Search(ctx context.Context, q string) ([]*Book, error) {
	if strings.TrimSpace(q) == "" {
		return []*Book{}, nil
	}
	var books []*Book
	err := s.q.SelectContext(ctx, &books, `
        SELECT b.id, b.title, b.author, b.isbn, b.publisher, b.publication_year, b.genre,
            b.total_copies, b.available_copies, b.shelf_location, b.created_at, b.updated_at
        FROM books_fts fts
        JOIN books b ON b.id = fts.rowid
        WHERE books_fts MATCH ?
        ORDER BY rank;`, q)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return books, nil
}
