package library

import (
	"database/sql"
	"errors"
)

// Business-rule failures are sentinel errors so callers can branch with
// errors.Is and display the specific reason. Store helpers wrap them
// with context via fmt.Errorf("...: %w", ...).
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrBorrowerNotFound    = errors.New("borrower not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrBookUnavailable   = errors.New("no copies available")
	ErrBorrowerInactive  = errors.New("borrower is not active")
	ErrLimitExceeded     = errors.New("borrowing limit reached")
	ErrHasOverdueBooks   = errors.New("borrower has overdue books")
	ErrNoActiveLoan      = errors.New("no active loan for this book and borrower")
	ErrNotRenewable      = errors.New("only an active loan can be renewed")
	ErrInvalidLoanPeriod = errors.New("loan period must be between 1 and 365 days")
	ErrReturnBeforeLoan  = errors.New("return date is before the loan was made")

	ErrInvalidBook     = errors.New("invalid book")
	ErrInvalidBorrower = errors.New("invalid borrower")

	ErrDuplicateISBN  = errors.New("a book with this ISBN already exists")
	ErrDuplicateEmail = errors.New("a borrower with this email already exists")

	ErrBookHasOpenLoans     = errors.New("book has loans outstanding")
	ErrBookHasHistory       = errors.New("book has ledger history and cannot be deleted")
	ErrBorrowerHasOpenLoans = errors.New("borrower has loans outstanding")
	ErrBorrowerHasHistory   = errors.New("borrower has ledger history; deactivate instead of deleting")

	ErrBookStillAvailable   = errors.New("book has copies available; borrow it instead of reserving")
	ErrAlreadyBorrowed      = errors.New("borrower already has this book checked out")
	ErrDuplicateReservation = errors.New("borrower already has a reservation for this book")
	ErrNoReservation        = errors.New("no pending reservation for this book and borrower")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPasswordSet      = errors.New("no password set for this borrower")
)

// Kind buckets an error for callers that only care about the class of
// failure, not the exact rule that fired.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPolicyViolation
	KindConflict
	KindStoreFailure
)

// ErrorKind classifies err into the taxonomy above. Anything that is not
// a recognized business-rule sentinel is treated as a store failure.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrBookNotFound),
		errors.Is(err, ErrBorrowerNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrNoReservation):
		return KindNotFound
	case errors.Is(err, ErrBookUnavailable),
		errors.Is(err, ErrBorrowerInactive),
		errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrHasOverdueBooks),
		errors.Is(err, ErrNoActiveLoan),
		errors.Is(err, ErrNotRenewable),
		errors.Is(err, ErrInvalidLoanPeriod),
		errors.Is(err, ErrReturnBeforeLoan),
		errors.Is(err, ErrInvalidBook),
		errors.Is(err, ErrInvalidBorrower),
		errors.Is(err, ErrBookHasOpenLoans),
		errors.Is(err, ErrBookHasHistory),
		errors.Is(err, ErrBorrowerHasOpenLoans),
		errors.Is(err, ErrBorrowerHasHistory),
		errors.Is(err, ErrBookStillAvailable),
		errors.Is(err, ErrNoPasswordSet),
		errors.Is(err, ErrInvalidCredentials):
		return KindPolicyViolation
	case errors.Is(err, ErrDuplicateISBN),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrAlreadyBorrowed),
		errors.Is(err, ErrDuplicateReservation):
		return KindConflict
	default:
		return KindStoreFailure
	}
}

// notFound translates sql.ErrNoRows into the given sentinel, passing
// other errors through untouched.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
