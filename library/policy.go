package library

import (
	"time"

	"github.com/shopspring/decimal"
)

// Circulation policy constants. Loan length and fine rate are defaults
// that individual calls (or engine options) may override; membership
// limits live on MembershipType.
const (
	DefaultLoanDays = 14
	MinLoanDays     = 1
	MaxLoanDays     = 365

	MinMaxBooks = 1
	MaxMaxBooks = 20
)

// DefaultFinePerDay is the monetary penalty accrued per whole day a loan
// is overdue: 0.50.
var DefaultFinePerDay = decimal.New(50, -2)

// dateOnly truncates t to midnight UTC. All due-date arithmetic works on
// whole days, never clock time.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysLate returns the number of whole days between the due date and the
// given day, never negative.
func daysLate(due, day time.Time) int {
	n := int(dateOnly(day).Sub(dateOnly(due)).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// FineFor computes the fine owed on a loan due on `due` as of `day` at
// the given per-day rate. Zero when the loan is not yet late.
func FineFor(due, day time.Time, perDay decimal.Decimal) decimal.Decimal {
	late := daysLate(due, day)
	if late == 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(int64(late)))
}

// validLoanDays reports whether n is an acceptable loan or renewal
// period.
func validLoanDays(n int) bool {
	return n >= MinLoanDays && n <= MaxLoanDays
}
