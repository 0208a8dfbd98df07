// file: internal/catalog/delete.go
// version: 1.0.0
// guid: 9a1b3c5d-7e9f-4a1b-3c5d-7e9f1a3b5c7d

package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ebooktools/calibre-manager/internal/database"
)

// bookDependentTables lists every catalog table holding rows owned by
// a book, in deletion order. The schema declares no foreign keys;
// cascade ordering lives here.
var bookDependentTables = []string{
	"books_authors_link",
	"books_publishers_link",
	"books_series_link",
	"books_tags_link",
	"books_languages_link",
	"books_ratings_link",
	"comments",
	"identifiers",
	"data",
	"metadata_dirtied",
	"annotations_dirtied",
}

// DeleteBookRows removes a book row and all its dependent catalog
// rows, dependents first. Shared by the deletion engine and the
// orphan sweep.
func DeleteBookRows(tx *sql.Tx, bookID int64) error {
	for _, table := range bookDependentTables {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE book = ?", bookID); err != nil {
			return fmt.Errorf("failed to delete from %s for book %d: %w", table, bookID, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM books WHERE id = ?", bookID); err != nil {
		return fmt.Errorf("failed to delete book %d: %w", bookID, err)
	}
	return nil
}

// Deleter removes a book from the catalog, the companion store, and
// the filesystem, in that order.
type Deleter struct {
	catalog    *database.CatalogDB
	app        *database.AppDB
	libraryDir string
}

// NewDeleter returns a deletion engine. The companion store may be an
// absent capability.
func NewDeleter(catalogDB *database.CatalogDB, appDB *database.AppDB, libraryDir string) *Deleter {
	return &Deleter{catalog: catalogDB, app: appDB, libraryDir: libraryDir}
}

// Delete cascades the removal of a book. A missing catalog row is
// tolerated: the companion store and filesystem may still hold
// references after an external deletion, so cleanup proceeds
// regardless. Filesystem steps are best-effort.
func (d *Deleter) Delete(bookID int64) error {
	var title, bookPath string
	err := d.catalog.QueryRow(
		"SELECT title, path FROM books WHERE id = ?", bookID,
	).Scan(&title, &bookPath)
	switch {
	case err == sql.ErrNoRows:
		fmt.Printf("Warning: book %d not found in catalog. Cleaning up companion store and filesystem.\n", bookID)
	case err != nil:
		return fmt.Errorf("failed to look up book %d: %w", bookID, err)
	default:
		fmt.Printf("Deleting book %d: %s\n", bookID, title)
	}

	err = database.WithTx(d.catalog.DB, func(tx *sql.Tx) error {
		return DeleteBookRows(tx, bookID)
	})
	if err != nil {
		return err
	}

	if d.app.Available() {
		if err := d.deleteCompanionRows(bookID); err != nil {
			return err
		}
	}

	if bookPath != "" {
		d.deleteBookFiles(bookPath)
	}

	fmt.Printf(" -> Book %d deleted.\n", bookID)
	return nil
}

// deleteCompanionRows unlinks the book from every shelf, removes now
// empty shelves, and drops all device-sync bookkeeping for the book.
func (d *Deleter) deleteCompanionRows(bookID int64) error {
	return database.WithTx(d.app.DB, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT shelf FROM book_shelf_link WHERE book_id = ?", bookID)
		if err != nil {
			return fmt.Errorf("failed to find shelves for book %d: %w", bookID, err)
		}
		var shelfIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			shelfIDs = append(shelfIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if _, err := tx.Exec("DELETE FROM book_shelf_link WHERE book_id = ?", bookID); err != nil {
			return fmt.Errorf("failed to remove shelf links for book %d: %w", bookID, err)
		}
		if len(shelfIDs) > 0 {
			fmt.Println(" -> Removed book from all shelves.")
		}

		for _, shelfID := range shelfIDs {
			var count int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM book_shelf_link WHERE shelf = ?", shelfID,
			).Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				var name string
				if err := tx.QueryRow("SELECT name FROM shelf WHERE id = ?", shelfID).Scan(&name); err != nil && err != sql.ErrNoRows {
					return err
				}
				if _, err := tx.Exec("DELETE FROM shelf WHERE id = ?", shelfID); err != nil {
					return fmt.Errorf("failed to remove empty shelf %d: %w", shelfID, err)
				}
				fmt.Printf(" -> Removed empty shelf '%s'.\n", name)
			}
		}

		// Sync bookkeeping: bookmark and statistics rows hang off
		// reading states, so they go first.
		if _, err := tx.Exec(
			`DELETE FROM kobo_bookmark WHERE kobo_reading_state_id IN
			 (SELECT id FROM kobo_reading_state WHERE book_id = ?)`, bookID,
		); err != nil {
			return fmt.Errorf("failed to remove bookmarks for book %d: %w", bookID, err)
		}
		if _, err := tx.Exec(
			`DELETE FROM kobo_statistics WHERE kobo_reading_state_id IN
			 (SELECT id FROM kobo_reading_state WHERE book_id = ?)`, bookID,
		); err != nil {
			return fmt.Errorf("failed to remove statistics for book %d: %w", bookID, err)
		}
		for _, table := range []string{"kobo_reading_state", "kobo_synced_books", "archived_book", "downloads", "book_read_link"} {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE book_id = ?", bookID); err != nil {
				return fmt.Errorf("failed to delete from %s for book %d: %w", table, bookID, err)
			}
		}
		return nil
	})
}

// deleteBookFiles removes the cover, the book directory, and the
// author directory when it becomes empty. Each step is independently
// reported; a missing path is not an error.
func (d *Deleter) deleteBookFiles(bookPath string) {
	bookDir := filepath.Join(d.libraryDir, bookPath)

	coverPath := filepath.Join(bookDir, "cover.jpg")
	if _, err := os.Stat(coverPath); err == nil {
		if err := os.Remove(coverPath); err != nil {
			fmt.Printf("Warning: failed to remove cover image %s: %v\n", coverPath, err)
		} else {
			fmt.Println(" -> Cover image deleted.")
		}
	}

	if _, err := os.Stat(bookDir); err == nil {
		if err := os.RemoveAll(bookDir); err != nil {
			fmt.Printf("Warning: failed to delete book directory %s: %v\n", bookDir, err)
			return
		}
		fmt.Printf(" -> Deleted book directory %s\n", bookDir)

		authorDir := filepath.Dir(bookDir)
		entries, err := os.ReadDir(authorDir)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(authorDir); err == nil {
				fmt.Printf(" -> Deleted empty author directory %s\n", authorDir)
			}
		}
	} else {
		fmt.Printf(" -> Book directory not found, skipping filesystem delete: %s\n", bookDir)
	}
}
