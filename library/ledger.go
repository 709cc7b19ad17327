package library

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dialectSqlite = "sqlite3"

const transactionColumns = `id, book_id, borrower_id, type, transacted_at,
	due_date, return_date, fine_amount, status, notes`

// LedgerStore persists the circulation ledger: Transaction rows and the
// reservation queue. Transactions are append-and-update only; there is
// deliberately no delete.
type LedgerStore struct {
	q   querier
	log *zap.Logger
}

// TransactionFilter narrows a ledger query. Zero-valued fields are
// ignored.
type TransactionFilter struct {
	BookID     int64
	BorrowerID int64
	Type       TransactionType
	Status     TransactionStatus
	// OpenOnly selects Active and Overdue rows regardless of Status.
	OpenOnly  bool
	DueBefore *time.Time
	DueAfter  *time.Time
}

// Insert appends a new transaction and returns its id.
func (s *LedgerStore) Insert(ctx context.Context, t *Transaction) (int64, error) {
	if !t.Type.Valid() || !t.Status.Valid() {
		return 0, fmt.Errorf("insert transaction: bad type %q or status %q", t.Type, t.Status)
	}
	if t.FineAmount.IsNegative() {
		return 0, fmt.Errorf("insert transaction: negative fine %s", t.FineAmount)
	}

	res, err := s.q.ExecContext(ctx, `
        INSERT INTO transactions (book_id, borrower_id, type, transacted_at,
            due_date, return_date, fine_amount, status, notes)
        VALUES (?,?,?,?,?,?,?,?,?)`,
		t.BookID, t.BorrowerID, t.Type, t.TransactedAt,
		t.DueDate, t.ReturnDate, t.FineAmount, t.Status, t.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	t.ID = id
	return id, nil
}

// Update rewrites a transaction's mutable fields.
func (s *LedgerStore) Update(ctx context.Context, t *Transaction) error {
	if !t.Type.Valid() || !t.Status.Valid() {
		return fmt.Errorf("update transaction: bad type %q or status %q", t.Type, t.Status)
	}
	if t.FineAmount.IsNegative() {
		return fmt.Errorf("update transaction: negative fine %s", t.FineAmount)
	}

	res, err := s.q.ExecContext(ctx, `
        UPDATE transactions SET type=?, due_date=?, return_date=?, fine_amount=?, status=?, notes=?
        WHERE id=?`,
		t.Type, t.DueDate, t.ReturnDate, t.FineAmount, t.Status, t.Notes, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// Get fetches a single transaction.
func (s *LedgerStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	var t Transaction
	err := s.q.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id=?`, id)
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &t, nil
}

// Query returns ledger rows matching the filter, oldest first.
func (s *LedgerStore) Query(ctx context.Context, f TransactionFilter) ([]*Transaction, error) {
	ds := goqu.Dialect(dialectSqlite).
		From("transactions").
		Select("id", "book_id", "borrower_id", "type", "transacted_at",
			"due_date", "return_date", "fine_amount", "status", "notes").
		Order(goqu.I("id").Asc())

	if f.BookID != 0 {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.BorrowerID != 0 {
		ds = ds.Where(goqu.C("borrower_id").Eq(f.BorrowerID))
	}
	if f.Type != "" {
		ds = ds.Where(goqu.C("type").Eq(string(f.Type)))
	}
	if f.OpenOnly {
		ds = ds.Where(goqu.C("status").In(string(StatusActive), string(StatusOverdue)))
	} else if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.DueBefore != nil {
		ds = ds.Where(goqu.C("due_date").Lt(*f.DueBefore))
	}
	if f.DueAfter != nil {
		ds = ds.Where(goqu.C("due_date").Gte(*f.DueAfter))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build ledger query: %w", err)
	}

	var rows []*Transaction
	if err := s.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	return rows, nil
}

// FindOpenLoan returns the open loan (Active or Overdue, Borrow or
// Renew) for the given book and borrower pair.
func (s *LedgerStore) FindOpenLoan(ctx context.Context, bookID, borrowerID int64) (*Transaction, error) {
	var t Transaction
	err := s.q.GetContext(ctx, &t, `
        SELECT `+transactionColumns+` FROM transactions
        WHERE book_id=? AND borrower_id=? AND status IN (?,?) AND type IN (?,?)
        ORDER BY id LIMIT 1`,
		bookID, borrowerID, StatusActive, StatusOverdue, TypeBorrow, TypeRenew)
	if err != nil {
		return nil, notFound(err, ErrNoActiveLoan)
	}
	return &t, nil
}

// CountOpenLoans is the borrower's current borrowed count.
func (s *LedgerStore) CountOpenLoans(ctx context.Context, borrowerID int64) (int, error) {
	var n int
	err := s.q.GetContext(ctx, &n, `
        SELECT COUNT(*) FROM transactions WHERE borrower_id=? AND status IN (?,?)`,
		borrowerID, StatusActive, StatusOverdue)
	if err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return n, nil
}

// HasOverdue reports whether the borrower holds any loan that is past
// due as of the given day. A loan counts whether or not a sweep has
// flipped its status yet.
func (s *LedgerStore) HasOverdue(ctx context.Context, borrowerID int64, day time.Time) (bool, error) {
	var n int
	err := s.q.GetContext(ctx, &n, `
        SELECT COUNT(*) FROM transactions
        WHERE borrower_id=? AND (status=? OR (status=? AND due_date IS NOT NULL AND due_date < ?))`,
		borrowerID, StatusOverdue, StatusActive, dateOnly(day))
	if err != nil {
		return false, fmt.Errorf("check overdue: %w", err)
	}
	return n > 0, nil
}

// TotalFines sums every fine on the borrower's ledger rows. Fines are
// stored as decimal strings, so the sum happens here rather than in SQL
// to keep the money math exact.
func (s *LedgerStore) TotalFines(ctx context.Context, borrowerID int64) (decimal.Decimal, error) {
	var fines []decimal.Decimal
	err := s.q.SelectContext(ctx, &fines,
		`SELECT fine_amount FROM transactions WHERE borrower_id=?`, borrowerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum fines: %w", err)
	}
	return decimal.Sum(decimal.Zero, fines...), nil
}

// ---------------------------------------------------------------------------
// Reservations
// ---------------------------------------------------------------------------

// InsertReservation queues the borrower for the book.
func (s *LedgerStore) InsertReservation(ctx context.Context, bookID, borrowerID int64, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO reservations (book_id, borrower_id, reserved_at) VALUES (?,?,?)`,
		bookID, borrowerID, at)
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	return id, nil
}

// PendingReservation returns the borrower's unfulfilled reservation for
// the book, or ErrNoReservation.
func (s *LedgerStore) PendingReservation(ctx context.Context, bookID, borrowerID int64) (*Reservation, error) {
	var r Reservation
	err := s.q.GetContext(ctx, &r, `
        SELECT id, book_id, borrower_id, reserved_at, fulfilled_at FROM reservations
        WHERE book_id=? AND borrower_id=? AND fulfilled_at IS NULL`,
		bookID, borrowerID)
	if err != nil {
		return nil, notFound(err, ErrNoReservation)
	}
	return &r, nil
}

// PendingReservations lists the book's queue, oldest first.
func (s *LedgerStore) PendingReservations(ctx context.Context, bookID int64) ([]*Reservation, error) {
	var rs []*Reservation
	err := s.q.SelectContext(ctx, &rs, `
        SELECT id, book_id, borrower_id, reserved_at, fulfilled_at FROM reservations
        WHERE book_id=? AND fulfilled_at IS NULL ORDER BY reserved_at, id`,
		bookID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rs, nil
}

// FulfillReservation stamps the reservation as satisfied.
func (s *LedgerStore) FulfillReservation(ctx context.Context, id int64, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE reservations SET fulfilled_at=? WHERE id=? AND fulfilled_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("fulfill reservation: %w", err)
	}
	return nil
}

// DeleteReservation cancels an unfulfilled reservation.
func (s *LedgerStore) DeleteReservation(ctx context.Context, bookID, borrowerID int64) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM reservations WHERE book_id=? AND borrower_id=? AND fulfilled_at IS NULL`,
		bookID, borrowerID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if n == 0 {
		return ErrNoReservation
	}
	return nil
}
