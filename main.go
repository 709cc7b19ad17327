package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"library-circulation/library"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	dbFile   string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "library-circulation",
		Short: "Library catalog and circulation tracker",
		RunE:  runShell,
	}
	root.PersistentFlags().StringVar(&dbFile, "db", envOr("LIBRARY_DB", "library.db"), "path to the SQLite database")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LIBRARY_LOG_LEVEL", "warn"), "log level (debug|info|warn|error)")

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run the overdue sweep once and print the overdue report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, engine, err := openEngine()
			if err != nil {
				return err
			}
			defer db.Close()
			overdue, err := engine.DetectOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d loan(s) overdue.\n", len(overdue))
			printOverdueReport(cmd.Context(), db)
			return nil
		},
	}
	root.AddCommand(sweep)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openEngine() (*library.Database, *library.Engine, error) {
	logger := library.NewLogger(logLevel)
	db, err := library.Open(dbFile, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, library.NewEngine(db, logger), nil
}

func runShell(cmd *cobra.Command, _ []string) error {
	db, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Welcome to the Library Circulation Tracker!")
	fmt.Println("Available commands:")
	fmt.Println("  Catalog: add book, list books, search book, update book, remove book")
	fmt.Println("  Borrowers: add borrower, list borrowers, show borrower, toggle borrower, remove borrower, set password")
	fmt.Println("  Circulation: borrow, return, renew, mark lost, reserve, cancel reservation, list reservations")
	fmt.Println("  Reports: sweep, overdue report, popular books, summary, history")
	fmt.Println("  System: exit")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		cmdLine := strings.TrimSpace(scanner.Text())

		switch cmdLine {
		case "add book":
			handleAddBook(ctx, scanner, db)
		case "list books":
			handleListBooks(ctx, db)
		case "search book":
			handleSearchBooks(ctx, scanner, db)
		case "update book":
			handleUpdateBook(ctx, scanner, db)
		case "remove book":
			handleRemoveBook(ctx, scanner, db)
		case "add borrower":
			handleAddBorrower(ctx, scanner, db)
		case "list borrowers":
			handleListBorrowers(ctx, db)
		case "show borrower":
			handleShowBorrower(ctx, scanner, engine)
		case "toggle borrower":
			handleToggleBorrower(ctx, scanner, db)
		case "remove borrower":
			handleRemoveBorrower(ctx, scanner, db)
		case "set password":
			handleSetPassword(ctx, scanner, db)
		case "borrow":
			handleBorrow(ctx, scanner, db, engine)
		case "return":
			handleReturn(ctx, scanner, db, engine)
		case "renew":
			handleRenew(ctx, scanner, engine)
		case "mark lost":
			handleMarkLost(ctx, scanner, engine)
		case "reserve":
			handleReserve(ctx, scanner, db, engine)
		case "cancel reservation":
			handleCancelReservation(ctx, scanner, engine)
		case "list reservations":
			handleListReservations(ctx, scanner, db, engine)
		case "sweep":
			handleSweep(ctx, engine)
		case "overdue report":
			printOverdueReport(ctx, db)
		case "popular books":
			handlePopularBooks(ctx, db)
		case "summary":
			handleSummary(ctx, db)
		case "history":
			handleHistory(ctx, scanner, db)
		case "exit":
			fmt.Println("Goodbye!")
			return nil
		default:
			fmt.Println("Unknown command. Type one of the available commands listed above.")
		}
	}
	return nil
}

// ------------------ prompt helpers ------------------

func promptString(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func promptInt64(sc *bufio.Scanner, label string) (int64, bool) {
	s, ok := promptString(sc, label)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", s)
		return 0, false
	}
	return n, true
}

func promptIntDefault(sc *bufio.Scanner, label string, def int) (int, bool) {
	s, ok := promptString(sc, label)
	if !ok {
		return 0, false
	}
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", s)
		return 0, false
	}
	return n, true
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticateBorrower prompts for and verifies the borrower's desk
// credential. Borrowers without one set pass through with a notice.
func authenticateBorrower(ctx context.Context, db *library.Database, borrowerID int64) error {
	password, err := readPassword("Borrower password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	err = db.Borrowers().Authenticate(ctx, borrowerID, password)
	if errors.Is(err, library.ErrNoPasswordSet) {
		fmt.Println("(no password on file, continuing)")
		return nil
	}
	return err
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}

// ------------------ catalog ------------------

func handleAddBook(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	b := &library.Book{}
	var ok bool
	if b.Title, ok = promptString(sc, "Title: "); !ok {
		return
	}
	if b.Author, ok = promptString(sc, "Author: "); !ok {
		return
	}
	if b.ISBN, ok = promptString(sc, "ISBN: "); !ok {
		return
	}
	if b.Publisher, ok = promptString(sc, "Publisher (optional): "); !ok {
		return
	}
	if b.PublicationYear, ok = promptIntDefault(sc, "Publication year (optional): ", 0); !ok {
		return
	}
	if b.Genre, ok = promptString(sc, "Genre (optional): "); !ok {
		return
	}
	if b.TotalCopies, ok = promptIntDefault(sc, "Total copies [1]: ", 1); !ok {
		return
	}
	b.AvailableCopies = b.TotalCopies
	if b.ShelfLocation, ok = promptString(sc, "Shelf location (optional): "); !ok {
		return
	}

	id, err := db.Catalog().Create(ctx, b)
	if err != nil {
		fmt.Printf("Error adding book: %v\n", err)
		return
	}
	fmt.Printf("Added book ID %d (%d copies).\n", id, b.TotalCopies)
}

func handleListBooks(ctx context.Context, db *library.Database) {
	books, err := db.Catalog().List(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		fmt.Println("No books in catalog.")
		return
	}
	printBookTable(books)
}

func printBookTable(books []*library.Book) {
	fmt.Printf("%-5s %-30s %-22s %-15s %-10s %-8s\n", "ID", "Title", "Author", "ISBN", "Available", "Shelf")
	fmt.Println(strings.Repeat("-", 95))
	for _, b := range books {
		fmt.Printf("%-5d %-30s %-22s %-15s %d/%-8d %-8s\n",
			b.ID,
			truncateString(b.Title, 30),
			truncateString(b.Author, 22),
			b.ISBN,
			b.AvailableCopies, b.TotalCopies,
			b.ShelfLocation)
	}
}

func handleSearchBooks(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	query, ok := promptString(sc, "Query: ")
	if !ok {
		return
	}
	books, err := db.Catalog().Search(ctx, query)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		fmt.Printf("No books found matching '%s'.\n", query)
		return
	}
	fmt.Printf("Found %d book(s) matching '%s':\n", len(books), query)
	printBookTable(books)
}

func handleUpdateBook(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	book, err := db.Catalog().FindByID(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if v, ok := promptString(sc, fmt.Sprintf("Title [%s]: ", book.Title)); ok && v != "" {
		book.Title = v
	}
	if v, ok := promptString(sc, fmt.Sprintf("Author [%s]: ", book.Author)); ok && v != "" {
		book.Author = v
	}
	if v, ok := promptIntDefault(sc, fmt.Sprintf("Total copies [%d]: ", book.TotalCopies), book.TotalCopies); ok {
		diff := v - book.TotalCopies
		book.TotalCopies = v
		book.AvailableCopies += diff
		if book.AvailableCopies < 0 {
			book.AvailableCopies = 0
		}
	}
	if v, ok := promptString(sc, fmt.Sprintf("Shelf location [%s]: ", book.ShelfLocation)); ok && v != "" {
		book.ShelfLocation = v
	}

	if err := db.Catalog().Update(ctx, book); err != nil {
		fmt.Printf("Error updating book: %v\n", err)
		return
	}
	fmt.Printf("Updated book '%s'.\n", book.Title)
}

func handleRemoveBook(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	if err := db.Catalog().Delete(ctx, id); err != nil {
		fmt.Printf("Error removing book: %v\n", err)
		return
	}
	fmt.Printf("Removed book ID %d.\n", id)
}

// ------------------ borrowers ------------------

func handleAddBorrower(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	b := &library.Borrower{}
	var ok bool
	if b.FirstName, ok = promptString(sc, "First name: "); !ok {
		return
	}
	if b.LastName, ok = promptString(sc, "Last name: "); !ok {
		return
	}
	if b.Email, ok = promptString(sc, "Email: "); !ok {
		return
	}
	if b.Phone, ok = promptString(sc, "Phone (optional): "); !ok {
		return
	}
	if b.Address, ok = promptString(sc, "Address (optional): "); !ok {
		return
	}
	membership, ok := promptString(sc, "Membership (Student/Faculty/Public/Staff) [Public]: ")
	if !ok {
		return
	}
	if membership == "" {
		membership = string(library.MembershipPublic)
	}
	b.MembershipType = library.MembershipType(membership)
	maxBooks, ok := promptIntDefault(sc, "Max books (blank for membership default): ", 0)
	if !ok {
		return
	}
	b.MaxBooks = maxBooks

	id, err := db.Borrowers().Create(ctx, b)
	if err != nil {
		fmt.Printf("Error adding borrower: %v\n", err)
		return
	}
	fmt.Printf("Added borrower '%s' with ID %d (limit %d books).\n", b.FullName(), id, b.MaxBooks)
}

func handleListBorrowers(ctx context.Context, db *library.Database) {
	borrowers, err := db.Borrowers().List(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(borrowers) == 0 {
		fmt.Println("No borrowers registered.")
		return
	}
	fmt.Printf("%-5s %-25s %-28s %-9s %-7s %-5s\n", "ID", "Name", "Email", "Type", "Active", "Limit")
	fmt.Println(strings.Repeat("-", 85))
	for _, b := range borrowers {
		active := "yes"
		if !b.Active {
			active = "no"
		}
		fmt.Printf("%-5d %-25s %-28s %-9s %-7s %-5d\n",
			b.ID, truncateString(b.FullName(), 25), truncateString(b.Email, 28),
			b.MembershipType, active, b.MaxBooks)
	}
}

func handleShowBorrower(ctx context.Context, sc *bufio.Scanner, engine *library.Engine) {
	id, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	s, err := engine.Summarize(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%s <%s>, %s member since %s\n",
		s.Borrower.FullName(), s.Borrower.Email, s.Borrower.MembershipType,
		s.Borrower.MembershipStart.Format("2006-01-02"))
	fmt.Printf("Loans out: %d of %d (%d remaining)\n", s.OpenLoans, s.Borrower.MaxBooks, s.Remaining)
	fmt.Printf("Total fines: %s\n", s.TotalFines.StringFixed(2))
	if s.HasOverdue {
		fmt.Println("HAS OVERDUE BOOKS: borrowing is blocked until they are returned.")
	}
}

func handleToggleBorrower(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	borrower, err := db.Borrowers().FindByID(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := db.Borrowers().SetActive(ctx, id, !borrower.Active); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	state := "activated"
	if borrower.Active {
		state = "deactivated"
	}
	fmt.Printf("Borrower '%s' %s.\n", borrower.FullName(), state)
}

func handleRemoveBorrower(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	if err := db.Borrowers().Delete(ctx, id); err != nil {
		fmt.Printf("Error removing borrower: %v\n", err)
		return
	}
	fmt.Printf("Removed borrower ID %d.\n", id)
}

func handleSetPassword(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	borrower, err := db.Borrowers().FindByID(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	password, err := readPassword(fmt.Sprintf("New password for %s: ", borrower.FullName()))
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	if err := db.Borrowers().SetPassword(ctx, id, password); err != nil {
		fmt.Printf("Error setting password: %v\n", err)
		return
	}
	fmt.Printf("Password set for %s.\n", borrower.FullName())
}

// ------------------ circulation ------------------

func handleBorrow(ctx context.Context, sc *bufio.Scanner, db *library.Database, engine *library.Engine) {
	bookID, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	borrowerID, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	loanDays, ok := promptIntDefault(sc, fmt.Sprintf("Loan days [%d]: ", library.DefaultLoanDays), library.DefaultLoanDays)
	if !ok {
		return
	}
	if err := authenticateBorrower(ctx, db, borrowerID); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}

	txID, err := engine.Borrow(ctx, bookID, borrowerID, loanDays)
	if err != nil {
		fmt.Printf("Borrow rejected: %v\n", err)
		return
	}

	book, _ := db.Catalog().FindByID(ctx, bookID)
	borrower, _ := db.Borrowers().FindByID(ctx, borrowerID)
	loan, _ := db.Ledger().Get(ctx, txID)
	fmt.Printf("Book '%s' borrowed by %s (transaction %d, due %s).\n",
		book.Title, borrower.FullName(), txID, loan.DueDate.Format("2006-01-02"))
}

func handleReturn(ctx context.Context, sc *bufio.Scanner, db *library.Database, engine *library.Engine) {
	bookID, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	borrowerID, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}

	fine, err := engine.Return(ctx, bookID, borrowerID, time.Time{})
	if err != nil {
		fmt.Printf("Return rejected: %v\n", err)
		return
	}

	book, _ := db.Catalog().FindByID(ctx, bookID)
	fmt.Printf("Book '%s' returned.\n", book.Title)
	if fine.IsPositive() {
		fmt.Printf("Overdue fine charged: %s\n", fine.StringFixed(2))
	}

	// Let the desk know who is waiting for the returned copy.
	queue, err := engine.ReservationQueue(ctx, bookID)
	if err == nil && len(queue) > 0 {
		next, err := db.Borrowers().FindByID(ctx, queue[0].BorrowerID)
		if err == nil {
			fmt.Printf("Next in reservation queue: %s (ID %d).\n", next.FullName(), next.ID)
		}
	}
}

func handleRenew(ctx context.Context, sc *bufio.Scanner, engine *library.Engine) {
	txID, ok := promptInt64(sc, "Transaction ID: ")
	if !ok {
		return
	}
	extraDays, ok := promptIntDefault(sc, fmt.Sprintf("Extra days [%d]: ", library.DefaultLoanDays), library.DefaultLoanDays)
	if !ok {
		return
	}
	due, err := engine.Renew(ctx, txID, extraDays)
	if err != nil {
		fmt.Printf("Renew rejected: %v\n", err)
		return
	}
	fmt.Printf("Loan renewed; new due date %s.\n", due.Format("2006-01-02"))
}

func handleMarkLost(ctx context.Context, sc *bufio.Scanner, engine *library.Engine) {
	txID, ok := promptInt64(sc, "Transaction ID: ")
	if !ok {
		return
	}
	feeStr, ok := promptString(sc, "Replacement fee [0]: ")
	if !ok {
		return
	}
	fee := decimal.Zero
	if feeStr != "" {
		var err error
		fee, err = decimal.NewFromString(feeStr)
		if err != nil {
			fmt.Printf("Invalid amount: %s\n", feeStr)
			return
		}
	}
	total, err := engine.MarkLost(ctx, txID, fee)
	if err != nil {
		fmt.Printf("Mark lost rejected: %v\n", err)
		return
	}
	fmt.Printf("Loan marked lost. Total charged: %s\n", total.StringFixed(2))
}

func handleReserve(ctx context.Context, sc *bufio.Scanner, db *library.Database, engine *library.Engine) {
	bookID, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	borrowerID, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	if err := authenticateBorrower(ctx, db, borrowerID); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}

	if _, err := engine.Reserve(ctx, bookID, borrowerID); err != nil {
		fmt.Printf("Reservation rejected: %v\n", err)
		return
	}

	queue, _ := engine.ReservationQueue(ctx, bookID)
	for i, r := range queue {
		if r.BorrowerID == borrowerID {
			fmt.Printf("Reserved. Position in queue: %d\n", i+1)
			return
		}
	}
	fmt.Println("Reserved.")
}

func handleCancelReservation(ctx context.Context, sc *bufio.Scanner, engine *library.Engine) {
	bookID, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	borrowerID, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	if err := engine.CancelReservation(ctx, bookID, borrowerID); err != nil {
		fmt.Printf("Error cancelling reservation: %v\n", err)
		return
	}
	fmt.Println("Reservation cancelled.")
}

func handleListReservations(ctx context.Context, sc *bufio.Scanner, db *library.Database, engine *library.Engine) {
	bookID, ok := promptInt64(sc, "Book ID: ")
	if !ok {
		return
	}
	book, err := db.Catalog().FindByID(ctx, bookID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	queue, err := engine.ReservationQueue(ctx, bookID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(queue) == 0 {
		fmt.Printf("No reservations for '%s'.\n", book.Title)
		return
	}
	fmt.Printf("Reservations for '%s':\n", book.Title)
	for i, r := range queue {
		borrower, err := db.Borrowers().FindByID(ctx, r.BorrowerID)
		name := fmt.Sprintf("ID %d", r.BorrowerID)
		if err == nil {
			name = borrower.FullName()
		}
		fmt.Printf("%2d. %s (since %s)\n", i+1, name, r.ReservedAt.Format("2006-01-02"))
	}
}

// ------------------ reports ------------------

func handleSweep(ctx context.Context, engine *library.Engine) {
	overdue, err := engine.DetectOverdue(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%d loan(s) overdue; fines recomputed.\n", len(overdue))
}

func printOverdueReport(ctx context.Context, db *library.Database) {
	rows, err := db.Reports().Overdue(ctx, time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("Nothing overdue.")
		return
	}
	fmt.Printf("%-6s %-30s %-25s %-12s %-6s %-8s\n", "Tx", "Title", "Borrower", "Due", "Days", "Fine")
	fmt.Println(strings.Repeat("-", 92))
	for _, r := range rows {
		fmt.Printf("%-6d %-30s %-25s %-12s %-6d %-8s\n",
			r.TransactionID,
			truncateString(r.BookTitle, 30),
			truncateString(r.BorrowerName, 25),
			r.DueDate.Format("2006-01-02"),
			r.DaysOverdue,
			r.Fine.StringFixed(2))
	}
}

func handlePopularBooks(ctx context.Context, db *library.Database) {
	rows, err := db.Reports().PopularBooks(ctx, 10)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No circulation yet.")
		return
	}
	fmt.Printf("%-5s %-35s %-25s %-8s\n", "ID", "Title", "Author", "Borrows")
	fmt.Println(strings.Repeat("-", 75))
	for _, r := range rows {
		fmt.Printf("%-5d %-35s %-25s %-8d\n",
			r.BookID, truncateString(r.Title, 35), truncateString(r.Author, 25), r.BorrowCount)
	}
}

func handleSummary(ctx context.Context, db *library.Database) {
	s, err := db.Reports().Summary(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Active: %d | Overdue: %d | Completed: %d | Lost: %d\n",
		s.Active, s.Overdue, s.Completed, s.Lost)
}

func handleHistory(ctx context.Context, sc *bufio.Scanner, db *library.Database) {
	id, ok := promptInt64(sc, "Borrower ID: ")
	if !ok {
		return
	}
	rows, err := db.Reports().BorrowerActivity(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No history for this borrower.")
		return
	}
	fmt.Printf("%-6s %-30s %-8s %-10s %-12s %-12s %-8s\n", "Tx", "Title", "Type", "Status", "Due", "Returned", "Fine")
	fmt.Println(strings.Repeat("-", 92))
	for _, r := range rows {
		due, returned := "-", "-"
		if r.DueDate != nil {
			due = r.DueDate.Format("2006-01-02")
		}
		if r.ReturnDate != nil {
			returned = r.ReturnDate.Format("2006-01-02")
		}
		fmt.Printf("%-6d %-30s %-8s %-10s %-12s %-12s %-8s\n",
			r.TransactionID, truncateString(r.BookTitle, 30), r.Type, r.Status,
			due, returned, r.Fine.StringFixed(2))
	}
}
