package library

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MembershipType categorizes a borrower and determines their default
// book limit.
type MembershipType string

const (
	MembershipStudent MembershipType = "Student"
	MembershipFaculty MembershipType = "Faculty"
	MembershipPublic  MembershipType = "Public"
	MembershipStaff   MembershipType = "Staff"
)

// Valid reports whether m is one of the known membership types.
func (m MembershipType) Valid() bool {
	switch m {
	case MembershipStudent, MembershipFaculty, MembershipPublic, MembershipStaff:
		return true
	}
	return false
}

// DefaultMaxBooks returns the borrowing limit assigned to new borrowers
// of this membership type when no explicit override is given.
func (m MembershipType) DefaultMaxBooks() int {
	switch m {
	case MembershipStudent:
		return 8
	case MembershipFaculty:
		return 15
	case MembershipStaff:
		return 10
	default:
		return 5 // Public
	}
}

// TransactionType marks what kind of circulation event a ledger row
// records. Renewing a loan overwrites the row's type in place.
type TransactionType string

const (
	TypeBorrow TransactionType = "Borrow"
	TypeReturn TransactionType = "Return"
	TypeRenew  TransactionType = "Renew"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeBorrow, TypeReturn, TypeRenew:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a ledger row.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "Active"
	StatusCompleted TransactionStatus = "Completed"
	StatusOverdue   TransactionStatus = "Overdue"
	StatusLost      TransactionStatus = "Lost"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusOverdue, StatusLost:
		return true
	}
	return false
}

// Open reports whether the status describes a loan that is still out,
// i.e. the copy has not come back and the row may still change.
func (s TransactionStatus) Open() bool {
	return s == StatusActive || s == StatusOverdue
}

// Book is a catalog entry. A book exists as one or more physical copies;
// AvailableCopies tracks how many are currently on the shelf.
type Book struct {
	ID              int64     `db:"id" json:"id"`
	Title           string    `db:"title" json:"title" validate:"required"`
	Author          string    `db:"author" json:"author" validate:"required"`
	ISBN            string    `db:"isbn" json:"isbn" validate:"required"`
	Publisher       string    `db:"publisher" json:"publisher,omitempty"`
	PublicationYear int       `db:"publication_year" json:"publication_year,omitempty"`
	Genre           string    `db:"genre" json:"genre,omitempty"`
	TotalCopies     int       `db:"total_copies" json:"total_copies" validate:"min=0"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	ShelfLocation   string    `db:"shelf_location" json:"shelf_location,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// validateCopies enforces 0 <= available <= total.
func (b *Book) validateCopies() error {
	if b.TotalCopies < 0 {
		return fmt.Errorf("%w: total copies must not be negative", ErrInvalidBook)
	}
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return fmt.Errorf("%w: available copies must be between 0 and %d", ErrInvalidBook, b.TotalCopies)
	}
	return nil
}

// Borrower is a registered library member. Email is the natural lookup
// key and must be unique. PasswordHash is empty until a credential is
// set at the circulation desk.
type Borrower struct {
	ID              int64          `db:"id" json:"id"`
	FirstName       string         `db:"first_name" json:"first_name" validate:"required"`
	LastName        string         `db:"last_name" json:"last_name" validate:"required"`
	Email           string         `db:"email" json:"email" validate:"required,email"`
	Phone           string         `db:"phone" json:"phone,omitempty"`
	Address         string         `db:"address" json:"address,omitempty"`
	MembershipType  MembershipType `db:"membership_type" json:"membership_type"`
	MembershipStart time.Time      `db:"membership_start" json:"membership_start"`
	Active          bool           `db:"active" json:"active"`
	MaxBooks        int            `db:"max_books" json:"max_books"`
	PasswordHash    string         `db:"password_hash" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// FullName concatenates first and last name for display.
func (b *Borrower) FullName() string {
	return b.FirstName + " " + b.LastName
}

// Transaction is one row of the circulation ledger. Rows are never
// deleted; a completed or lost row is the permanent record of the loan.
type Transaction struct {
	ID           int64             `db:"id" json:"id"`
	BookID       int64             `db:"book_id" json:"book_id"`
	BorrowerID   int64             `db:"borrower_id" json:"borrower_id"`
	Type         TransactionType   `db:"type" json:"type"`
	TransactedAt time.Time         `db:"transacted_at" json:"transacted_at"`
	DueDate      *time.Time        `db:"due_date" json:"due_date,omitempty"`
	ReturnDate   *time.Time        `db:"return_date" json:"return_date,omitempty"`
	FineAmount   decimal.Decimal   `db:"fine_amount" json:"fine_amount"`
	Status       TransactionStatus `db:"status" json:"status"`
	Notes        string            `db:"notes" json:"notes,omitempty"`
}

// OverdueAt reports whether the loan is past due as of the given day.
// The answer is computed from the due date alone, so it stays the same
// whether or not a sweep has already flipped the status to Overdue.
// Closed rows are never overdue.
func (t *Transaction) OverdueAt(day time.Time) bool {
	if !t.Status.Open() || t.DueDate == nil {
		return false
	}
	return dateOnly(day).After(dateOnly(*t.DueDate))
}

// Reservation queues a borrower for a book that has no copies on the
// shelf. It is fulfilled when the borrower next borrows the book.
type Reservation struct {
	ID          int64      `db:"id" json:"id"`
	BookID      int64      `db:"book_id" json:"book_id"`
	BorrowerID  int64      `db:"borrower_id" json:"borrower_id"`
	ReservedAt  time.Time  `db:"reserved_at" json:"reserved_at"`
	FulfilledAt *time.Time `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
}
