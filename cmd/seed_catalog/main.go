package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-circulation/library"
)

// seed_catalog bulk-loads books and borrowers from CSV files so a fresh
// database has something to circulate.
//
// Books CSV columns:     title,author,isbn,publisher,year,genre,copies,shelf
// Borrowers CSV columns: first_name,last_name,email,phone,membership,max_books

func main() {
	dbPath := flag.String("db", "library.db", "path to the SQLite database")
	booksPath := flag.String("books", "", "CSV file of books to load")
	borrowersPath := flag.String("borrowers", "", "CSV file of borrowers to load")
	flag.Parse()

	if *booksPath == "" && *borrowersPath == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -books and/or -borrowers")
		os.Exit(1)
	}

	logger := library.NewLogger("warn")
	db, err := library.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	if *booksPath != "" {
		ok, failed := seedBooks(ctx, db, *booksPath)
		fmt.Printf("Books: %d loaded, %d skipped\n", ok, failed)
	}
	if *borrowersPath != "" {
		ok, failed := seedBorrowers(ctx, db, *borrowersPath)
		fmt.Printf("Borrowers: %d loaded, %d skipped\n", ok, failed)
	}
}

func openCSV(path string) (*csv.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r, f, nil
}

func seedBooks(ctx context.Context, db *library.Database, path string) (ok, failed int) {
	r, f, err := openCSV(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		return 0, 0
	}
	defer f.Close()

	catalog := db.Catalog()
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("line %d: %v\n", line, err)
			failed++
			continue
		}
		if len(rec) < 3 {
			fmt.Printf("line %d: want at least title,author,isbn\n", line)
			failed++
			continue
		}

		b := &library.Book{
			Title:  strings.TrimSpace(rec[0]),
			Author: strings.TrimSpace(rec[1]),
			ISBN:   strings.TrimSpace(rec[2]),
		}
		if len(rec) > 3 {
			b.Publisher = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 && rec[4] != "" {
			b.PublicationYear, _ = strconv.Atoi(strings.TrimSpace(rec[4]))
		}
		if len(rec) > 5 {
			b.Genre = strings.TrimSpace(rec[5])
		}
		b.TotalCopies = 1
		if len(rec) > 6 && rec[6] != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(rec[6])); err == nil && n > 0 {
				b.TotalCopies = n
			}
		}
		b.AvailableCopies = b.TotalCopies
		if len(rec) > 7 {
			b.ShelfLocation = strings.TrimSpace(rec[7])
		}

		id, err := catalog.Create(ctx, b)
		if err != nil {
			fmt.Printf("line %d (%s): %v\n", line, b.Title, err)
			failed++
			continue
		}
		fmt.Printf("Loaded book %d: %s by %s\n", id, b.Title, b.Author)
		ok++
	}
	return ok, failed
}

func seedBorrowers(ctx context.Context, db *library.Database, path string) (ok, failed int) {
	r, f, err := openCSV(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		return 0, 0
	}
	defer f.Close()

	borrowers := db.Borrowers()
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("line %d: %v\n", line, err)
			failed++
			continue
		}
		if len(rec) < 3 {
			fmt.Printf("line %d: want at least first_name,last_name,email\n", line)
			failed++
			continue
		}

		b := &library.Borrower{
			FirstName:      strings.TrimSpace(rec[0]),
			LastName:       strings.TrimSpace(rec[1]),
			Email:          strings.TrimSpace(rec[2]),
			MembershipType: library.MembershipPublic,
		}
		if len(rec) > 3 {
			b.Phone = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 && rec[4] != "" {
			b.MembershipType = library.MembershipType(strings.TrimSpace(rec[4]))
		}
		if len(rec) > 5 && rec[5] != "" {
			b.MaxBooks, _ = strconv.Atoi(strings.TrimSpace(rec[5]))
		}

		id, err := borrowers.Create(ctx, b)
		if err != nil {
			fmt.Printf("line %d (%s): %v\n", line, b.Email, err)
			failed++
			continue
		}
		fmt.Printf("Loaded borrower %d: %s\n", id, b.FullName())
		ok++
	}
	return ok, failed
}
