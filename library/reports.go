package library

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
)

// Reports is a read-only projection over the ledger for display. No
// business logic lives here beyond grouping and counting.
type Reports struct {
	q querier
}

// PopularBookRow is one row of the most-borrowed-books report.
type PopularBookRow struct {
	BookID      int64  `db:"book_id"`
	Title       string `db:"title"`
	Author      string `db:"author"`
	BorrowCount int    `db:"borrow_count"`
}

// OverdueRow is one row of the overdue report.
type OverdueRow struct {
	TransactionID int64           `db:"transaction_id"`
	BookTitle     string          `db:"book_title"`
	BorrowerName  string          `db:"borrower_name"`
	Email         string          `db:"email"`
	DueDate       time.Time       `db:"due_date"`
	DaysOverdue   int             `db:"-"`
	Fine          decimal.Decimal `db:"fine_amount"`
}

// BorrowerActivityRow is one ledger entry joined with its book, for a
// single borrower's history view.
type BorrowerActivityRow struct {
	TransactionID int64             `db:"transaction_id"`
	BookTitle     string            `db:"book_title"`
	Type          TransactionType   `db:"type"`
	Status        TransactionStatus `db:"status"`
	TransactedAt  time.Time         `db:"transacted_at"`
	DueDate       *time.Time        `db:"due_date"`
	ReturnDate    *time.Time        `db:"return_date"`
	Fine          decimal.Decimal   `db:"fine_amount"`
}

// CirculationSummary is the ledger grouped by status.
type CirculationSummary struct {
	Active    int
	Completed int
	Overdue   int
	Lost      int
}

// PopularBooks returns the most borrowed books, busiest first. Renewals
// count as circulation of the same loan, so they are included.
func (r *Reports) PopularBooks(ctx context.Context, limit int) ([]PopularBookRow, error) {
	if limit <= 0 {
		limit = 10
	}

	ds := goqu.Dialect(dialectSqlite).
		From(goqu.T("transactions").As("t")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		Select(
			goqu.I("t.book_id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("b.author").As("author"),
			goqu.L("COUNT(*)").As("borrow_count"),
		).
		Where(goqu.I("t.type").In(string(TypeBorrow), string(TypeRenew))).
		GroupBy(goqu.I("t.book_id"), goqu.I("b.title"), goqu.I("b.author")).
		Order(goqu.I("borrow_count").Desc(), goqu.I("b.title").Asc()).
		Limit(uint(limit))

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build popular-books query: %w", err)
	}

	var rows []PopularBookRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("popular books: %w", err)
	}
	return rows, nil
}

// Overdue returns every open loan past due as of the given day, joined
// with book and borrower details. Days overdue are computed against the
// given day, not the swept status.
func (r *Reports) Overdue(ctx context.Context, asOf time.Time) ([]OverdueRow, error) {
	day := dateOnly(asOf)

	ds := goqu.Dialect(dialectSqlite).
		From(goqu.T("transactions").As("t")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		Join(goqu.T("borrowers").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("t.borrower_id")))).
		Select(
			goqu.I("t.id").As("transaction_id"),
			goqu.I("b.title").As("book_title"),
			goqu.L("m.first_name || ' ' || m.last_name").As("borrower_name"),
			goqu.I("m.email").As("email"),
			goqu.I("t.due_date").As("due_date"),
			goqu.I("t.fine_amount").As("fine_amount"),
		).
		Where(
			goqu.I("t.status").In(string(StatusActive), string(StatusOverdue)),
			goqu.I("t.due_date").IsNotNull(),
			goqu.I("t.due_date").Lt(day),
		).
		Order(goqu.I("t.due_date").Asc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	var rows []OverdueRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("overdue report: %w", err)
	}
	for i := range rows {
		rows[i].DaysOverdue = daysLate(rows[i].DueDate, day)
	}
	return rows, nil
}

// BorrowerActivity returns a borrower's full ledger history, newest
// first.
func (r *Reports) BorrowerActivity(ctx context.Context, borrowerID int64) ([]BorrowerActivityRow, error) {
	ds := goqu.Dialect(dialectSqlite).
		From(goqu.T("transactions").As("t")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		Select(
			goqu.I("t.id").As("transaction_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("t.type").As("type"),
			goqu.I("t.status").As("status"),
			goqu.I("t.transacted_at").As("transacted_at"),
			goqu.I("t.due_date").As("due_date"),
			goqu.I("t.return_date").As("return_date"),
			goqu.I("t.fine_amount").As("fine_amount"),
		).
		Where(goqu.I("t.borrower_id").Eq(borrowerID)).
		Order(goqu.I("t.id").Desc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build activity query: %w", err)
	}

	var rows []BorrowerActivityRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("borrower activity: %w", err)
	}
	return rows, nil
}

// Summary counts ledger rows by status.
func (r *Reports) Summary(ctx context.Context) (*CirculationSummary, error) {
	var rows []struct {
		Status TransactionStatus `db:"status"`
		N      int               `db:"n"`
	}
	err := r.q.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("circulation summary: %w", err)
	}

	var s CirculationSummary
	for _, row := range rows {
		switch row.Status {
		case StatusActive:
			s.Active = row.N
		case StatusCompleted:
			s.Completed = row.N
		case StatusOverdue:
			s.Overdue = row.N
		case StatusLost:
			s.Lost = row.N
		}
	}
	return &s, nil
}
