package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const borrowerColumns = `id, first_name, last_name, email, phone, address,
	membership_type, membership_start, active, max_books, password_hash,
	created_at, updated_at`

// BorrowerStore persists Borrower records.
type BorrowerStore struct {
	q   querier
	log *zap.Logger
}

// Create validates and inserts a new borrower. The email must be unique.
// A zero MaxBooks takes the membership-type default; a zero membership
// start date takes today. New borrowers are active.
func (s *BorrowerStore) Create(ctx context.Context, b *Borrower) (int64, error) {
	if err := validate.Struct(b); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBorrower, err)
	}
	if !b.MembershipType.Valid() {
		return 0, fmt.Errorf("%w: unknown membership type %q", ErrInvalidBorrower, b.MembershipType)
	}
	if b.MaxBooks == 0 {
		b.MaxBooks = b.MembershipType.DefaultMaxBooks()
	}
	if b.MaxBooks < MinMaxBooks || b.MaxBooks > MaxMaxBooks {
		return 0, fmt.Errorf("%w: max books must be between %d and %d", ErrInvalidBorrower, MinMaxBooks, MaxMaxBooks)
	}
	if b.MembershipStart.IsZero() {
		b.MembershipStart = dateOnly(time.Now())
	}

	if existing, err := s.FindByEmail(ctx, b.Email); err == nil && existing != nil {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateEmail, b.Email)
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
        INSERT INTO borrowers (first_name, last_name, email, phone, address,
            membership_type, membership_start, active, max_books, password_hash,
            created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,1,?,?,?,?)`,
		b.FirstName, b.LastName, b.Email, b.Phone, b.Address,
		b.MembershipType, b.MembershipStart, b.MaxBooks, b.PasswordHash, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateEmail, b.Email)
		}
		return 0, fmt.Errorf("insert borrower: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert borrower: %w", err)
	}
	b.ID = id
	b.Active = true
	s.log.Info("borrower registered", zap.Int64("borrower_id", id), zap.String("membership", string(b.MembershipType)))
	return id, nil
}

// FindByID fetches a single borrower.
func (s *BorrowerStore) FindByID(ctx context.Context, id int64) (*Borrower, error) {
	var b Borrower
	err := s.q.GetContext(ctx, &b, `SELECT `+borrowerColumns+` FROM borrowers WHERE id=?`, id)
	if err != nil {
		return nil, notFound(err, ErrBorrowerNotFound)
	}
	return &b, nil
}

// FindByEmail fetches a single borrower by their email, the natural
// lookup key.
func (s *BorrowerStore) FindByEmail(ctx context.Context, email string) (*Borrower, error) {
	var b Borrower
	err := s.q.GetContext(ctx, &b, `SELECT `+borrowerColumns+` FROM borrowers WHERE email=?`, email)
	if err != nil {
		return nil, notFound(err, ErrBorrowerNotFound)
	}
	return &b, nil
}

// Update rewrites a borrower's attributes.
func (s *BorrowerStore) Update(ctx context.Context, b *Borrower) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBorrower, err)
	}
	if !b.MembershipType.Valid() {
		return fmt.Errorf("%w: unknown membership type %q", ErrInvalidBorrower, b.MembershipType)
	}
	if b.MaxBooks < MinMaxBooks || b.MaxBooks > MaxMaxBooks {
		return fmt.Errorf("%w: max books must be between %d and %d", ErrInvalidBorrower, MinMaxBooks, MaxMaxBooks)
	}

	res, err := s.q.ExecContext(ctx, `
        UPDATE borrowers SET first_name=?, last_name=?, email=?, phone=?, address=?,
            membership_type=?, membership_start=?, max_books=?, updated_at=?
        WHERE id=?`,
		b.FirstName, b.LastName, b.Email, b.Phone, b.Address,
		b.MembershipType, b.MembershipStart, b.MaxBooks, time.Now().UTC(), b.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, b.Email)
		}
		return fmt.Errorf("update borrower: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update borrower: %w", err)
	}
	if n == 0 {
		return ErrBorrowerNotFound
	}
	return nil
}

// SetActive toggles a borrower's active flag. Deactivation is rejected
// while the borrower has loans out.
func (s *BorrowerStore) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	if !active {
		var open int
		err := s.q.GetContext(ctx, &open, `
            SELECT COUNT(*) FROM transactions WHERE borrower_id=? AND status IN (?,?)`,
			id, StatusActive, StatusOverdue)
		if err != nil {
			return fmt.Errorf("count open loans: %w", err)
		}
		if open > 0 {
			return fmt.Errorf("%w: %d open", ErrBorrowerHasOpenLoans, open)
		}
	}

	_, err := s.q.ExecContext(ctx,
		`UPDATE borrowers SET active=?, updated_at=? WHERE id=?`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	s.log.Info("borrower active flag changed", zap.Int64("borrower_id", id), zap.Bool("active", active))
	return nil
}

// Delete removes a borrower who has never appeared in the ledger. Anyone
// with history must be deactivated instead so the ledger stays intact.
func (s *BorrowerStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	var total int
	err := s.q.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions WHERE borrower_id=?`, id)
	if err != nil {
		return fmt.Errorf("count ledger rows: %w", err)
	}
	if total > 0 {
		return fmt.Errorf("%w: %d ledger rows", ErrBorrowerHasHistory, total)
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM reservations WHERE borrower_id=?`, id); err != nil {
		return fmt.Errorf("delete reservations: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM borrowers WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete borrower: %w", err)
	}
	s.log.Info("borrower removed", zap.Int64("borrower_id", id))
	return nil
}

// List returns all borrowers ordered by id.
func (s *BorrowerStore) List(ctx context.Context) ([]*Borrower, error) {
	var borrowers []*Borrower
	err := s.q.SelectContext(ctx, &borrowers, `SELECT `+borrowerColumns+` FROM borrowers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list borrowers: %w", err)
	}
	return borrowers, nil
}

// SetPassword hashes and stores a circulation-desk credential.
func (s *BorrowerStore) SetPassword(ctx context.Context, id int64, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidBorrower)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE borrowers SET password_hash=?, updated_at=? WHERE id=?`, string(hash), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if n == 0 {
		return ErrBorrowerNotFound
	}
	return nil
}

// Authenticate verifies a borrower's credential.
func (s *BorrowerStore) Authenticate(ctx context.Context, id int64, password string) error {
	b, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.PasswordHash == "" {
		return ErrNoPasswordSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
