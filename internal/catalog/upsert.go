// file: internal/catalog/upsert.go
// version: 1.0.0
// guid: 8f0a2b4c-6d8e-4f0a-2b4c-6d8e0f2a4b6c

// Package catalog owns the primary bibliographic store: deciding
// whether an incoming book is new, unchanged, or changed, applying the
// minimal write sequence across the book row and its dependent tables,
// and cascading deletions.
package catalog

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/database"
	"github.com/ebooktools/calibre-manager/internal/fileops"
	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/normalize"
)

// Engine applies create/update/no-op decisions to the catalog store.
// It performs no filesystem writes; the UpsertResult tells the caller
// whether file placement should run.
type Engine struct {
	db         *database.CatalogDB
	clock      clock.Clock
	libraryDir string
}

// NewEngine returns an upsert engine over the given catalog store.
func NewEngine(db *database.CatalogDB, clk clock.Clock, libraryDir string) *Engine {
	return &Engine{db: db, clock: clk, libraryDir: libraryDir}
}

// Upsert reconciles incoming metadata against the catalog. Books are
// matched by the (title, author_sort) natural key; a match with a
// byte-identical placed file is a no-op, a match with changed metadata
// gets per-field column updates, and no match creates a full record.
// Everything runs in one transaction.
func (e *Engine) Upsert(meta models.BookMetadata) (models.UpsertResult, error) {
	var result models.UpsertResult
	err := database.WithTx(e.db.DB, func(tx *sql.Tx) error {
		var err error
		result, err = e.upsert(tx, meta)
		return err
	})
	if err != nil {
		return models.UpsertResult{}, err
	}
	return result, nil
}

func (e *Engine) upsert(tx *sql.Tx, meta models.BookMetadata) (models.UpsertResult, error) {
	authorSort := normalize.AuthorSort(meta.Author)

	var bookID int64
	var bookPath string
	err := tx.QueryRow(
		"SELECT id, path FROM books WHERE title = ? AND author_sort = ?",
		meta.Title, authorSort,
	).Scan(&bookID, &bookPath)
	switch {
	case err == sql.ErrNoRows:
		return e.create(tx, meta, authorSort)
	case err != nil:
		return models.UpsertResult{}, fmt.Errorf("failed to look up book: %w", err)
	}

	fmt.Printf(" -> Found existing book with ID %d. Checking file hash...\n", bookID)

	if e.filesIdentical(meta.SourcePath, bookPath) {
		fmt.Println(" -> Files are identical (same hash). No changes needed.")
		return models.UpsertResult{
			Outcome:  models.OutcomeNoChange,
			BookID:   bookID,
			BookPath: bookPath,
		}, nil
	}

	snapshot, err := e.loadSnapshot(tx, bookID, bookPath)
	if err != nil {
		return models.UpsertResult{}, err
	}
	changes := Compare(snapshot, meta)
	if !changes.Any() {
		fmt.Println(" -> No metadata changes detected. Skipping database update.")
		return models.UpsertResult{
			Outcome:      models.OutcomeNoChange,
			BookID:       bookID,
			BookPath:     bookPath,
			ReplaceFiles: true,
		}, nil
	}

	fmt.Println(" -> Metadata changes detected. Updating database...")
	if err := e.update(tx, bookID, meta, changes); err != nil {
		return models.UpsertResult{}, err
	}
	return models.UpsertResult{
		Outcome:      models.OutcomeUpdated,
		BookID:       bookID,
		BookPath:     bookPath,
		ReplaceFiles: true,
	}, nil
}

// filesIdentical reports whether the incoming file is byte-equal to
// the book's already-placed file. Any failure to locate or hash a file
// counts as "not proven identical" so the caller replaces files.
func (e *Engine) filesIdentical(srcPath, bookPath string) bool {
	existingFile, ok := fileops.FindBookFile(filepath.Join(e.libraryDir, bookPath))
	if !ok {
		return false
	}
	newHash, err := fileops.ComputeFileHash(srcPath)
	if err != nil {
		return false
	}
	existingHash, err := fileops.ComputeFileHash(existingFile)
	if err != nil {
		return false
	}
	return newHash == existingHash
}

func (e *Engine) loadSnapshot(tx *sql.Tx, bookID int64, bookPath string) (models.BookSnapshot, error) {
	snapshot := models.BookSnapshot{ID: bookID, Path: bookPath}

	var pubdate sql.NullString
	err := tx.QueryRow(
		"SELECT pubdate, series_index FROM books WHERE id = ?", bookID,
	).Scan(&pubdate, &snapshot.SeriesIndex)
	if err != nil {
		return snapshot, fmt.Errorf("failed to load book %d: %w", bookID, err)
	}
	if pubdate.Valid {
		if t, ok := clock.Parse(pubdate.String); ok {
			snapshot.PubDate = &t
		}
	}

	var publisher string
	err = tx.QueryRow(
		`SELECT p.name FROM publishers p
		 JOIN books_publishers_link bpl ON p.id = bpl.publisher
		 WHERE bpl.book = ?`, bookID,
	).Scan(&publisher)
	if err == nil {
		snapshot.Publisher = &publisher
	} else if err != sql.ErrNoRows {
		return snapshot, fmt.Errorf("failed to load publisher for book %d: %w", bookID, err)
	}

	var series string
	err = tx.QueryRow(
		`SELECT s.name FROM series s
		 JOIN books_series_link bsl ON s.id = bsl.series
		 WHERE bsl.book = ?`, bookID,
	).Scan(&series)
	if err == nil {
		snapshot.Series = &series
	} else if err != sql.ErrNoRows {
		return snapshot, fmt.Errorf("failed to load series for book %d: %w", bookID, err)
	}

	return snapshot, nil
}

// update writes only the columns whose changed-flags are set, so
// manually curated values in untouched columns survive re-imports.
// last_modified is always refreshed.
func (e *Engine) update(tx *sql.Tx, bookID int64, meta models.BookMetadata, changes models.FieldChanges) error {
	set := []string{"last_modified = ?"}
	args := []interface{}{clock.Format(e.clock.Now())}

	if changes.PubDate && meta.PubDate != nil {
		set = append(set, "pubdate = ?")
		args = append(args, clock.Format(*meta.PubDate))
	}
	if changes.SeriesIndex {
		index := 1.0
		if meta.SeriesIndex != nil {
			index = *meta.SeriesIndex
		}
		set = append(set, "series_index = ?")
		args = append(args, index)
	}
	args = append(args, bookID)

	query := "UPDATE books SET " + strings.Join(set, ", ") + " WHERE id = ?"
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update book %d: %w", bookID, err)
	}

	// Changed entity links are deleted and reinserted, never diffed in
	// place, so a stale link can never survive.
	if changes.Publisher {
		if _, err := tx.Exec("DELETE FROM books_publishers_link WHERE book = ?", bookID); err != nil {
			return fmt.Errorf("failed to unlink publisher for book %d: %w", bookID, err)
		}
		if meta.Publisher != nil {
			publisherID, err := database.ResolveEntity(tx, database.EntityPublisher, *meta.Publisher, *meta.Publisher)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				"INSERT INTO books_publishers_link (book, publisher) VALUES (?, ?)",
				bookID, publisherID,
			); err != nil {
				return fmt.Errorf("failed to link publisher for book %d: %w", bookID, err)
			}
		}
	}

	if changes.Series {
		if _, err := tx.Exec("DELETE FROM books_series_link WHERE book = ?", bookID); err != nil {
			return fmt.Errorf("failed to unlink series for book %d: %w", bookID, err)
		}
		if meta.Series != nil {
			seriesID, err := database.ResolveEntity(tx, database.EntitySeries, *meta.Series, *meta.Series)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				"INSERT INTO books_series_link (book, series) VALUES (?, ?)",
				bookID, seriesID,
			); err != nil {
				return fmt.Errorf("failed to link series for book %d: %w", bookID, err)
			}
		}
	}

	return nil
}

func (e *Engine) create(tx *sql.Tx, meta models.BookMetadata, authorSort string) (models.UpsertResult, error) {
	format, err := fileops.DetectFormat(meta.SourcePath)
	if err != nil {
		return models.UpsertResult{}, err
	}

	authorID, err := database.ResolveEntity(tx, database.EntityAuthor, meta.Author, authorSort)
	if err != nil {
		return models.UpsertResult{}, err
	}

	now := e.clock.Now()
	nowStr := clock.Format(now)
	pubdate := now
	if meta.PubDate != nil {
		pubdate = *meta.PubDate
	}
	seriesIndex := 1.0
	if meta.SeriesIndex != nil {
		seriesIndex = *meta.SeriesIndex
	}

	// Inserted with an empty path first; the final path needs the
	// assigned id.
	res, err := tx.Exec(
		`INSERT INTO books (title, sort, author_sort, timestamp, pubdate, last_modified, path, series_index, uuid)
		 VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		meta.Title,
		normalize.TitleSortEnglish(meta.Title),
		authorSort,
		nowStr,
		clock.Format(pubdate),
		nowStr,
		seriesIndex,
		uuid.NewString(),
	)
	if err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to insert book: %w", err)
	}
	bookID, err := res.LastInsertId()
	if err != nil {
		return models.UpsertResult{}, err
	}

	bookPath := fmt.Sprintf("%s/%s (%d)",
		fileops.SanitizePathComponent(meta.Author),
		fileops.SanitizePathComponent(meta.Title),
		bookID)
	if _, err := tx.Exec("UPDATE books SET path = ? WHERE id = ?", bookPath, bookID); err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to set book path: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO books_authors_link (book, author) VALUES (?, ?)",
		bookID, authorID,
	); err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to link author: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO data (book, format, uncompressed_size, name) VALUES (?, ?, ?, ?)",
		bookID, format.Name, meta.FileSize, fmt.Sprintf("%s - %s", meta.Title, meta.Author),
	); err != nil {
		return models.UpsertResult{}, fmt.Errorf("failed to insert format record: %w", err)
	}

	if comment := buildComment(meta); comment != "" {
		if _, err := tx.Exec(
			"INSERT INTO comments (book, text) VALUES (?, ?)",
			bookID, comment,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("failed to insert comments: %w", err)
		}
	}

	if meta.Language != nil {
		langID, err := database.ResolveEntity(tx, database.EntityLanguage, *meta.Language, "")
		if err != nil {
			return models.UpsertResult{}, err
		}
		// The link column is named lang_code but holds the languages
		// row id, a catalog-schema quirk.
		if _, err := tx.Exec(
			"INSERT INTO books_languages_link (book, lang_code) VALUES (?, ?)",
			bookID, langID,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("failed to link language: %w", err)
		}
	}

	if meta.ISBN != nil {
		if _, err := tx.Exec(
			"INSERT INTO identifiers (book, type, val) VALUES (?, 'ISBN', ?)",
			bookID, *meta.ISBN,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("failed to insert identifier: %w", err)
		}
	}

	if meta.Publisher != nil {
		publisherID, err := database.ResolveEntity(tx, database.EntityPublisher, *meta.Publisher, *meta.Publisher)
		if err != nil {
			return models.UpsertResult{}, err
		}
		if _, err := tx.Exec(
			"INSERT INTO books_publishers_link (book, publisher) VALUES (?, ?)",
			bookID, publisherID,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("failed to link publisher: %w", err)
		}
	}

	if meta.Series != nil {
		seriesID, err := database.ResolveEntity(tx, database.EntitySeries, *meta.Series, *meta.Series)
		if err != nil {
			return models.UpsertResult{}, err
		}
		if _, err := tx.Exec(
			"INSERT INTO books_series_link (book, series) VALUES (?, ?)",
			bookID, seriesID,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("failed to link series: %w", err)
		}
	}

	return models.UpsertResult{
		Outcome:      models.OutcomeCreated,
		BookID:       bookID,
		BookPath:     bookPath,
		ReplaceFiles: true,
	}, nil
}

// buildComment assembles the comments blob from subtitle, description,
// and rights, in that order.
func buildComment(meta models.BookMetadata) string {
	var parts []string
	if meta.Subtitle != nil {
		parts = append(parts, fmt.Sprintf("<h3>%s</h3>", *meta.Subtitle))
	}
	if meta.Description != nil {
		parts = append(parts, *meta.Description)
	}
	if meta.Rights != nil {
		parts = append(parts, fmt.Sprintf("<p>Rights: %s</p>", *meta.Rights))
	}
	return strings.Join(parts, "\n")
}

// SetHasCover records whether a cover.jpg was placed for the book.
func (e *Engine) SetHasCover(bookID int64, hasCover bool) error {
	flag := 0
	if hasCover {
		flag = 1
	}
	if _, err := e.db.Exec("UPDATE books SET has_cover = ? WHERE id = ?", flag, bookID); err != nil {
		return fmt.Errorf("failed to set has_cover for book %d: %w", bookID, err)
	}
	return nil
}
