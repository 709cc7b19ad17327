package library

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move "today" forward between engine calls.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advanceDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func testEngine(t *testing.T) (*Database, *Engine, *fakeClock) {
	t.Helper()
	db := tempDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)}
	engine := NewEngine(db, nil, WithClock(clock.Now))
	return db, engine, clock
}

func mustBook(t *testing.T, db *Database, isbn string, copies int) int64 {
	t.Helper()
	id, err := db.Catalog().Create(context.Background(), testBook(isbn, copies))
	require.NoError(t, err)
	return id
}

func mustBorrower(t *testing.T, db *Database, email string) int64 {
	t.Helper()
	id, err := db.Borrowers().Create(context.Background(), testBorrower(email))
	require.NoError(t, err)
	return id
}

// requireCopyInvariant asserts 0 <= available <= total for every book.
func requireCopyInvariant(t *testing.T, db *Database) {
	t.Helper()
	books, err := db.Catalog().List(context.Background())
	require.NoError(t, err)
	for _, b := range books {
		require.GreaterOrEqual(t, b.AvailableCopies, 0, "book %d", b.ID)
		require.LessOrEqual(t, b.AvailableCopies, b.TotalCopies, "book %d", b.ID)
	}
}

func TestBorrowHappyPath(t *testing.T) {
	// Scenario A: 3 of 3 copies, active borrower under limit.
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-a", 3)
	borrowerID := mustBorrower(t, db, "x@example.com")

	txID, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	book, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.AvailableCopies)

	loan, err := db.Ledger().Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, TypeBorrow, loan.Type)
	assert.Equal(t, StatusActive, loan.Status)
	require.NotNil(t, loan.DueDate)
	wantDue := dateOnly(clock.Now()).AddDate(0, 0, 14)
	assert.True(t, loan.DueDate.Equal(wantDue), "due = today+14, got %s", loan.DueDate)

	open, err := db.Ledger().CountOpenLoans(ctx, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	requireCopyInvariant(t, db)
}

func TestBorrowRejectsWhenUnavailable(t *testing.T) {
	// Scenario B: zero copies on the shelf.
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-b", 1)
	first := mustBorrower(t, db, "first@example.com")
	second := mustBorrower(t, db, "second@example.com")

	_, err := engine.Borrow(ctx, bookID, first, 0)
	require.NoError(t, err)

	_, err = engine.Borrow(ctx, bookID, second, 0)
	require.ErrorIs(t, err, ErrBookUnavailable)

	// No mutation on the failed path.
	open, err := db.Ledger().CountOpenLoans(ctx, second)
	require.NoError(t, err)
	assert.Zero(t, open)
	requireCopyInvariant(t, db)
}

func TestBorrowRejectsOverLimit(t *testing.T) {
	// Scenario C: borrower at their limit.
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	b := testBorrower("limited@example.com")
	b.MaxBooks = 2
	borrowerID, err := db.Borrowers().Create(ctx, b)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		bookID := mustBook(t, db, fmt.Sprintf("978-c%d", i), 1)
		_, err := engine.Borrow(ctx, bookID, borrowerID, 0)
		require.NoError(t, err)
	}

	extra := mustBook(t, db, "978-c-extra", 1)
	_, err = engine.Borrow(ctx, extra, borrowerID, 0)
	require.ErrorIs(t, err, ErrLimitExceeded)
}

func TestBorrowRejectsInactiveBorrower(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-d", 1)
	borrowerID := mustBorrower(t, db, "inactive@example.com")
	require.NoError(t, db.Borrowers().SetActive(ctx, borrowerID, false))

	_, err := engine.Borrow(ctx, bookID, borrowerID, 0)
	require.ErrorIs(t, err, ErrBorrowerInactive)
}

func TestBorrowRejectsUnknownIDs(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	borrowerID := mustBorrower(t, db, "known@example.com")
	_, err := engine.Borrow(ctx, 404, borrowerID, 0)
	require.ErrorIs(t, err, ErrBookNotFound)

	bookID := mustBook(t, db, "978-e", 1)
	_, err = engine.Borrow(ctx, bookID, 404, 0)
	require.ErrorIs(t, err, ErrBorrowerNotFound)
}

func TestBorrowRejectsBadLoanPeriod(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-f", 1)
	borrowerID := mustBorrower(t, db, "days@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, -3)
	require.ErrorIs(t, err, ErrInvalidLoanPeriod)
	_, err = engine.Borrow(ctx, bookID, borrowerID, 366)
	require.ErrorIs(t, err, ErrInvalidLoanPeriod)
}

func TestBorrowRejectsWithPastDueLoan(t *testing.T) {
	// Scenario E: an Active loan past its due date blocks new borrows
	// even before any sweep has flipped its status.
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-g", 1)
	borrowerID := mustBorrower(t, db, "late@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	clock.advanceDays(16) // due date was 2 days ago, status still Active

	other := mustBook(t, db, "978-h", 1)
	_, err = engine.Borrow(ctx, other, borrowerID, 0)
	require.ErrorIs(t, err, ErrHasOverdueBooks)
}

func TestReturnRoundTrip(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-i", 2)
	borrowerID := mustBorrower(t, db, "round@example.com")

	before, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)

	_, err = engine.Borrow(ctx, bookID, borrowerID, 0)
	require.NoError(t, err)

	fine, err := engine.Return(ctx, bookID, borrowerID, time.Time{})
	require.NoError(t, err)
	assert.True(t, fine.IsZero(), "no fine on an on-time return")

	after, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, before.AvailableCopies, after.AvailableCopies, "round trip restores availability")

	rows, err := db.Ledger().Query(ctx, TransactionFilter{BookID: bookID, BorrowerID: borrowerID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusCompleted, rows[0].Status)
	require.NotNil(t, rows[0].ReturnDate)
}

func TestReturnComputesOverdueFine(t *testing.T) {
	// Scenario D: due 6 days ago at 0.50/day -> 3.00.
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-j", 1)
	borrowerID := mustBorrower(t, db, "fine@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	clock.advanceDays(20)

	fine, err := engine.Return(ctx, bookID, borrowerID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "3.00", fine.StringFixed(2))

	rows, err := db.Ledger().Query(ctx, TransactionFilter{Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "3.00", rows[0].FineAmount.StringFixed(2))
}

func TestReturnRejectsBackdatedReturn(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-v", 1)
	borrowerID := mustBorrower(t, db, "backdate@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	// A return stamped before the loan was made must not close it.
	_, err = engine.Return(ctx, bookID, borrowerID, clock.Now().AddDate(0, 0, -30))
	require.ErrorIs(t, err, ErrReturnBeforeLoan)

	loan, err := db.Ledger().FindOpenLoan(ctx, bookID, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loan.Status, "loan stays open")

	book, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies, "copy stays out")

	// Same calendar day at an earlier clock time is a valid return.
	fine, err := engine.Return(ctx, bookID, borrowerID, dateOnly(clock.Now()))
	require.NoError(t, err)
	assert.True(t, fine.IsZero())

	row, err := db.Ledger().Get(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, row.ReturnDate)
	assert.False(t, row.ReturnDate.Before(dateOnly(row.TransactedAt)),
		"return date never precedes the loan's day")
}

func TestBorrowZeroDaysUsesDefault(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-w", 1)
	borrowerID := mustBorrower(t, db, "default-days@example.com")

	txID, err := engine.Borrow(ctx, bookID, borrowerID, 0)
	require.NoError(t, err)

	loan, err := db.Ledger().Get(ctx, txID)
	require.NoError(t, err)
	require.NotNil(t, loan.DueDate)
	want := dateOnly(clock.Now()).AddDate(0, 0, DefaultLoanDays)
	assert.True(t, loan.DueDate.Equal(want), "zero loan days takes the %d-day default", DefaultLoanDays)
}

func TestReturnWithoutLoan(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-k", 1)
	borrowerID := mustBorrower(t, db, "none@example.com")

	_, err := engine.Return(ctx, bookID, borrowerID, time.Time{})
	require.ErrorIs(t, err, ErrNoActiveLoan)
}

func TestReturnAfterSweepStillWorks(t *testing.T) {
	// A sweep flips the loan to Overdue; the return must still find it
	// and charge the same fine formula.
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-l", 1)
	borrowerID := mustBorrower(t, db, "swept@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	clock.advanceDays(18)
	_, err = engine.DetectOverdue(ctx)
	require.NoError(t, err)

	fine, err := engine.Return(ctx, bookID, borrowerID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "2.00", fine.StringFixed(2), "4 days late at 0.50")
	requireCopyInvariant(t, db)
}

func TestDetectOverdueSweep(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	lateBook := mustBook(t, db, "978-m", 1)
	okBook := mustBook(t, db, "978-n", 1)
	late := mustBorrower(t, db, "late2@example.com")
	punctual := mustBorrower(t, db, "ontime@example.com")

	_, err := engine.Borrow(ctx, lateBook, late, 7)
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, okBook, punctual, 30)
	require.NoError(t, err)

	clock.advanceDays(10) // first loan 3 days late, second well within term

	swept, err := engine.DetectOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, StatusOverdue, swept[0].Status)
	assert.Equal(t, "1.50", swept[0].FineAmount.StringFixed(2))

	// Idempotent: same day, same set, same fines.
	again, err := engine.DetectOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, swept[0].ID, again[0].ID)
	assert.Equal(t, "1.50", again[0].FineAmount.StringFixed(2), "no double-apply")

	// Fines grow monotonically with elapsed time.
	clock.advanceDays(2)
	later, err := engine.DetectOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "2.50", later[0].FineAmount.StringFixed(2))
}

func TestRenewExtendsDueDate(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-o", 1)
	borrowerID := mustBorrower(t, db, "renew@example.com")

	txID, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)

	due, err := engine.Renew(ctx, txID, 7)
	require.NoError(t, err)
	want := dateOnly(clock.Now()).AddDate(0, 0, 21)
	assert.True(t, due.Equal(want), "renew stacks on the existing due date")

	loan, err := db.Ledger().Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, TypeRenew, loan.Type)
	assert.Equal(t, StatusActive, loan.Status)

	// Availability untouched by renewal.
	book, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)

	// Repeated renewal is permitted.
	due, err = engine.Renew(ctx, txID, 7)
	require.NoError(t, err)
	assert.True(t, due.Equal(want.AddDate(0, 0, 7)))
}

func TestRenewOnlyActive(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-p", 1)
	borrowerID := mustBorrower(t, db, "renew2@example.com")

	txID, err := engine.Borrow(ctx, bookID, borrowerID, 7)
	require.NoError(t, err)

	clock.advanceDays(10)
	_, err = engine.DetectOverdue(ctx)
	require.NoError(t, err)

	_, err = engine.Renew(ctx, txID, 7)
	require.ErrorIs(t, err, ErrNotRenewable, "overdue loans cannot be renewed")

	_, err = engine.Renew(ctx, 404, 7)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMarkLost(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-q", 2)
	borrowerID := mustBorrower(t, db, "lost@example.com")

	txID, err := engine.Borrow(ctx, bookID, borrowerID, 14)
	require.NoError(t, err)
	clock.advanceDays(18) // 4 days late when reported lost

	total, err := engine.MarkLost(ctx, txID, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.Equal(t, "27.00", total.StringFixed(2), "accrued fine plus replacement fee")

	loan, err := db.Ledger().Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, StatusLost, loan.Status)

	book, err := db.Catalog().FindByID(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, book.TotalCopies, "lost copy leaves circulation")
	assert.Equal(t, 1, book.AvailableCopies)
	requireCopyInvariant(t, db)

	_, err = engine.MarkLost(ctx, txID, decimal.Zero)
	require.ErrorIs(t, err, ErrNoActiveLoan, "already closed")
}

func TestCustomFineRate(t *testing.T) {
	db := tempDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	engine := NewEngine(db, nil, WithClock(clock.Now), WithFinePerDay(decimal.NewFromInt(2)))
	ctx := context.Background()

	bookID := mustBook(t, db, "978-r", 1)
	borrowerID := mustBorrower(t, db, "rate@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 7)
	require.NoError(t, err)
	clock.advanceDays(10)

	fine, err := engine.Return(ctx, bookID, borrowerID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "6.00", fine.StringFixed(2), "3 days at 2.00")
}

func TestReservations(t *testing.T) {
	db, engine, _ := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-s", 1)
	holder := mustBorrower(t, db, "holder@example.com")
	waiterA := mustBorrower(t, db, "a@example.com")
	waiterB := mustBorrower(t, db, "b@example.com")

	// Reserving a book with copies on the shelf is rejected.
	_, err := engine.Reserve(ctx, bookID, waiterA)
	require.ErrorIs(t, err, ErrBookStillAvailable)

	_, err = engine.Borrow(ctx, bookID, holder, 0)
	require.NoError(t, err)

	// The holder cannot also queue for the same copy.
	_, err = engine.Reserve(ctx, bookID, holder)
	require.ErrorIs(t, err, ErrAlreadyBorrowed)

	_, err = engine.Reserve(ctx, bookID, waiterA)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, bookID, waiterB)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, bookID, waiterA)
	require.ErrorIs(t, err, ErrDuplicateReservation)

	queue, err := engine.ReservationQueue(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, waiterA, queue[0].BorrowerID)
	assert.Equal(t, waiterB, queue[1].BorrowerID)

	// Return frees the copy; the next borrow by a queued borrower
	// fulfills their reservation.
	_, err = engine.Return(ctx, bookID, holder, time.Time{})
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, bookID, waiterA, 0)
	require.NoError(t, err)

	queue, err = engine.ReservationQueue(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, waiterB, queue[0].BorrowerID)

	// Cancelling drops the remaining reservation.
	require.NoError(t, engine.CancelReservation(ctx, bookID, waiterB))
	err = engine.CancelReservation(ctx, bookID, waiterB)
	require.ErrorIs(t, err, ErrNoReservation)
}

func TestSummarize(t *testing.T) {
	db, engine, clock := testEngine(t)
	ctx := context.Background()

	bookID := mustBook(t, db, "978-t", 1)
	other := mustBook(t, db, "978-u", 1)
	borrowerID := mustBorrower(t, db, "summary@example.com")

	_, err := engine.Borrow(ctx, bookID, borrowerID, 7)
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, other, borrowerID, 30)
	require.NoError(t, err)

	s, err := engine.Summarize(ctx, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.OpenLoans)
	assert.Equal(t, 3, s.Remaining, "public default limit 5 minus 2")
	assert.False(t, s.HasOverdue)
	assert.True(t, s.TotalFines.IsZero())

	clock.advanceDays(10)
	fine, err := engine.Return(ctx, bookID, borrowerID, clock.Now())
	require.NoError(t, err)
	require.False(t, fine.IsZero())

	s, err = engine.Summarize(ctx, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenLoans)
	assert.Equal(t, "1.50", s.TotalFines.StringFixed(2))
	assert.False(t, s.HasOverdue, "late loan was returned")
}
