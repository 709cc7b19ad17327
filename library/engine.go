package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the circulation business-rule core. It owns every
// invariant-preserving state transition on the ledger: borrowing,
// returning, renewing, overdue detection and fine accrual. All paired
// mutations (copy counts + ledger rows) run inside a single database
// transaction.
type Engine struct {
	db         *Database
	log        *zap.Logger
	now        func() time.Time
	finePerDay decimal.Decimal
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source. Tests use this to pin
// "today".
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithFinePerDay overrides the default 0.50-per-day fine rate.
func WithFinePerDay(rate decimal.Decimal) EngineOption {
	return func(e *Engine) { e.finePerDay = rate }
}

// NewEngine wires the engine to its backing database. A nil logger is
// replaced with a no-op one.
func NewEngine(db *Database, log *zap.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		db:         db,
		log:        log,
		now:        time.Now,
		finePerDay: DefaultFinePerDay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FinePerDay returns the engine's configured fine rate.
func (e *Engine) FinePerDay() decimal.Decimal { return e.finePerDay }

// Borrow checks the book out to the borrower for loanDays (0 means the
// default 14). Preconditions are checked in a fixed order and the first
// failure wins with no mutation: book exists, borrower exists, a copy is
// available, borrower is active, borrower is under their limit, borrower
// has nothing overdue. On success one copy is taken off the shelf and a
// new Active ledger row is written, both in one transaction. Returns the
// new transaction's id.
func (e *Engine) Borrow(ctx context.Context, bookID, borrowerID int64, loanDays int) (int64, error) {
	if loanDays == 0 {
		loanDays = DefaultLoanDays
	}
	if !validLoanDays(loanDays) {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLoanPeriod, loanDays)
	}

	now := e.now()
	var txID int64

	err := e.db.withTx(ctx, func(q querier) error {
		catalog := &CatalogStore{q: q, log: e.log}
		borrowers := &BorrowerStore{q: q, log: e.log}
		ledger := &LedgerStore{q: q, log: e.log}

		book, err := catalog.FindByID(ctx, bookID)
		if err != nil {
			return err
		}
		borrower, err := borrowers.FindByID(ctx, borrowerID)
		if err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return fmt.Errorf("%w: %q", ErrBookUnavailable, book.Title)
		}
		if !borrower.Active {
			return fmt.Errorf("%w: %s", ErrBorrowerInactive, borrower.FullName())
		}

		open, err := ledger.CountOpenLoans(ctx, borrowerID)
		if err != nil {
			return err
		}
		if open >= borrower.MaxBooks {
			return fmt.Errorf("%w: %d of %d", ErrLimitExceeded, open, borrower.MaxBooks)
		}

		overdue, err := ledger.HasOverdue(ctx, borrowerID, now)
		if err != nil {
			return err
		}
		if overdue {
			return ErrHasOverdueBooks
		}

		// Optimistic recheck: the guard in the WHERE clause keeps a
		// concurrent caller from driving available_copies below zero.
		res, err := q.ExecContext(ctx, `
            UPDATE books SET available_copies = available_copies - 1, updated_at=?
            WHERE id=? AND available_copies > 0`, now.UTC(), bookID)
		if err != nil {
			return fmt.Errorf("decrement availability: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement availability: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", ErrBookUnavailable, book.Title)
		}

		due := dateOnly(now).AddDate(0, 0, loanDays)
		txID, err = ledger.Insert(ctx, &Transaction{
			BookID:       bookID,
			BorrowerID:   borrowerID,
			Type:         TypeBorrow,
			TransactedAt: now.UTC(),
			DueDate:      &due,
			FineAmount:   decimal.Zero,
			Status:       StatusActive,
		})
		if err != nil {
			return err
		}

		// A pending reservation by this borrower is satisfied by the
		// borrow itself.
		if r, err := ledger.PendingReservation(ctx, bookID, borrowerID); err == nil {
			if err := ledger.FulfillReservation(ctx, r.ID, now.UTC()); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNoReservation) {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("book borrowed",
		zap.Int64("book_id", bookID),
		zap.Int64("borrower_id", borrowerID),
		zap.Int64("transaction_id", txID),
		zap.Int("loan_days", loanDays))
	return txID, nil
}

// Return closes the open loan for the given book and borrower pair. The
// fine, if any, is computed from the due date and the return day at the
// engine's per-day rate, the row moves to Completed, and the copy goes
// back on the shelf, all in one transaction. A zero returnedAt means
// now; a returnedAt before the loan was made is rejected so the ledger
// never records a return that precedes its borrow. Returns the fine
// charged.
func (e *Engine) Return(ctx context.Context, bookID, borrowerID int64, returnedAt time.Time) (decimal.Decimal, error) {
	if returnedAt.IsZero() {
		returnedAt = e.now()
	}
	returnedAt = returnedAt.UTC()
	fine := decimal.Zero

	err := e.db.withTx(ctx, func(q querier) error {
		ledger := &LedgerStore{q: q, log: e.log}

		loan, err := ledger.FindOpenLoan(ctx, bookID, borrowerID)
		if err != nil {
			return err
		}
		// Same-day returns are fine whatever the clock says; anything
		// before the loan's calendar day would corrupt the ledger.
		if returnedAt.Before(dateOnly(loan.TransactedAt)) {
			return fmt.Errorf("%w: returned %s, loaned %s", ErrReturnBeforeLoan,
				returnedAt.Format("2006-01-02"), loan.TransactedAt.Format("2006-01-02"))
		}

		if loan.DueDate != nil {
			fine = FineFor(*loan.DueDate, returnedAt, e.finePerDay)
		}

		loan.Status = StatusCompleted
		loan.ReturnDate = &returnedAt
		loan.FineAmount = fine
		if err := ledger.Update(ctx, loan); err != nil {
			return err
		}

		// Capped at total_copies: going over means the store already
		// disagreed with the ledger, so the increment becomes a no-op
		// rather than an error.
		if _, err := q.ExecContext(ctx, `
            UPDATE books SET available_copies = MIN(available_copies + 1, total_copies), updated_at=?
            WHERE id=?`, returnedAt, bookID); err != nil {
			return fmt.Errorf("increment availability: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	e.log.Info("book returned",
		zap.Int64("book_id", bookID),
		zap.Int64("borrower_id", borrowerID),
		zap.String("fine", fine.String()))
	return fine, nil
}

// Renew extends an Active loan's due date by extraDays (0 means the
// default 14) and flips the row's type to Renew, leaving copy counts
// untouched. Repeated renewal is permitted. Returns the new due date.
func (e *Engine) Renew(ctx context.Context, transactionID int64, extraDays int) (time.Time, error) {
	if extraDays == 0 {
		extraDays = DefaultLoanDays
	}
	if !validLoanDays(extraDays) {
		return time.Time{}, fmt.Errorf("%w: got %d", ErrInvalidLoanPeriod, extraDays)
	}

	var newDue time.Time
	err := e.db.withTx(ctx, func(q querier) error {
		ledger := &LedgerStore{q: q, log: e.log}

		loan, err := ledger.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			return fmt.Errorf("%w: status is %s", ErrNotRenewable, loan.Status)
		}

		base := dateOnly(e.now())
		if loan.DueDate != nil {
			base = dateOnly(*loan.DueDate)
		}
		newDue = base.AddDate(0, 0, extraDays)

		loan.Type = TypeRenew
		loan.DueDate = &newDue
		return ledger.Update(ctx, loan)
	})
	if err != nil {
		return time.Time{}, err
	}

	e.log.Info("loan renewed",
		zap.Int64("transaction_id", transactionID),
		zap.Time("due_date", newDue))
	return newDue, nil
}

// DetectOverdue sweeps the ledger for loans past due as of today, flips
// them to Overdue and recomputes their fines from the current date, then
// persists every change in one transaction. It is safe to run
// repeatedly: fines are always recomputed from the due date and today,
// so they grow monotonically with elapsed time and never double-apply.
// The returned set includes rows that were already Overdue before the
// call; it is the input for the overdue report.
func (e *Engine) DetectOverdue(ctx context.Context) ([]*Transaction, error) {
	today := dateOnly(e.now())
	var swept []*Transaction

	err := e.db.withTx(ctx, func(q querier) error {
		ledger := &LedgerStore{q: q, log: e.log}

		rows, err := ledger.Query(ctx, TransactionFilter{OpenOnly: true, DueBefore: &today})
		if err != nil {
			return err
		}

		for _, t := range rows {
			if t.DueDate == nil {
				continue
			}
			t.Status = StatusOverdue
			t.FineAmount = FineFor(*t.DueDate, today, e.finePerDay)
			if err := ledger.Update(ctx, t); err != nil {
				return err
			}
			swept = append(swept, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(swept) > 0 {
		e.log.Info("overdue sweep", zap.Int("loans", len(swept)))
	}
	return swept, nil
}

// MarkLost closes an open loan as Lost. The copy leaves circulation:
// total copies drop by one and the shelf count stays put. The final fine
// is whatever overdue fine has accrued plus the replacement fee. Returns
// the total charged.
func (e *Engine) MarkLost(ctx context.Context, transactionID int64, replacementFee decimal.Decimal) (decimal.Decimal, error) {
	if replacementFee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: replacement fee must not be negative", ErrInvalidBook)
	}

	now := e.now()
	total := decimal.Zero

	err := e.db.withTx(ctx, func(q querier) error {
		ledger := &LedgerStore{q: q, log: e.log}

		loan, err := ledger.Get(ctx, transactionID)
		if err != nil {
			return err
		}
		if !loan.Status.Open() {
			return fmt.Errorf("%w: status is %s", ErrNoActiveLoan, loan.Status)
		}

		accrued := decimal.Zero
		if loan.DueDate != nil {
			accrued = FineFor(*loan.DueDate, now, e.finePerDay)
		}
		total = accrued.Add(replacementFee)

		loan.Status = StatusLost
		loan.FineAmount = total
		if err := ledger.Update(ctx, loan); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `
            UPDATE books SET total_copies = total_copies - 1, updated_at=?
            WHERE id=? AND total_copies > 0`, now.UTC(), loan.BookID); err != nil {
			return fmt.Errorf("retire lost copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	e.log.Warn("loan marked lost",
		zap.Int64("transaction_id", transactionID),
		zap.String("charged", total.String()))
	return total, nil
}

// Reserve queues the borrower for a book that currently has no copies on
// the shelf. The queue is first come, first served; the reservation is
// fulfilled automatically when the borrower next borrows the book.
func (e *Engine) Reserve(ctx context.Context, bookID, borrowerID int64) (int64, error) {
	now := e.now()
	var resID int64

	err := e.db.withTx(ctx, func(q querier) error {
		catalog := &CatalogStore{q: q, log: e.log}
		borrowers := &BorrowerStore{q: q, log: e.log}
		ledger := &LedgerStore{q: q, log: e.log}

		book, err := catalog.FindByID(ctx, bookID)
		if err != nil {
			return err
		}
		borrower, err := borrowers.FindByID(ctx, borrowerID)
		if err != nil {
			return err
		}
		if !borrower.Active {
			return fmt.Errorf("%w: %s", ErrBorrowerInactive, borrower.FullName())
		}
		if book.AvailableCopies > 0 {
			return fmt.Errorf("%w: %d on shelf", ErrBookStillAvailable, book.AvailableCopies)
		}

		if _, err := ledger.FindOpenLoan(ctx, bookID, borrowerID); err == nil {
			return ErrAlreadyBorrowed
		} else if !errors.Is(err, ErrNoActiveLoan) {
			return err
		}
		if _, err := ledger.PendingReservation(ctx, bookID, borrowerID); err == nil {
			return ErrDuplicateReservation
		} else if !errors.Is(err, ErrNoReservation) {
			return err
		}

		resID, err = ledger.InsertReservation(ctx, bookID, borrowerID, now.UTC())
		return err
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("book reserved",
		zap.Int64("book_id", bookID),
		zap.Int64("borrower_id", borrowerID))
	return resID, nil
}

// CancelReservation drops the borrower's pending reservation for the
// book.
func (e *Engine) CancelReservation(ctx context.Context, bookID, borrowerID int64) error {
	return e.db.Ledger().DeleteReservation(ctx, bookID, borrowerID)
}

// ReservationQueue lists the book's pending reservations, oldest first.
func (e *Engine) ReservationQueue(ctx context.Context, bookID int64) ([]*Reservation, error) {
	return e.db.Ledger().PendingReservations(ctx, bookID)
}

// BorrowerSummary is the derived circulation view of one borrower.
type BorrowerSummary struct {
	Borrower   *Borrower
	OpenLoans  int
	Remaining  int
	TotalFines decimal.Decimal
	HasOverdue bool
}

// Summarize computes the derived fields for a borrower: open-loan count,
// remaining limit, accumulated fines and whether anything is past due.
func (e *Engine) Summarize(ctx context.Context, borrowerID int64) (*BorrowerSummary, error) {
	borrower, err := e.db.Borrowers().FindByID(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	ledger := e.db.Ledger()

	open, err := ledger.CountOpenLoans(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	fines, err := ledger.TotalFines(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	overdue, err := ledger.HasOverdue(ctx, borrowerID, e.now())
	if err != nil {
		return nil, err
	}

	remaining := borrower.MaxBooks - open
	if remaining < 0 {
		remaining = 0
	}
	return &BorrowerSummary{
		Borrower:   borrower,
		OpenLoans:  open,
		Remaining:  remaining,
		TotalFines: fines,
		HasOverdue: overdue,
	}, nil
}
