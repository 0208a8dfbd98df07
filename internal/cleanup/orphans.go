// file: internal/cleanup/orphans.go
// version: 1.0.0
// guid: 3e5f7a9b-1c3d-4e5f-7a9b-1c3d5e7f9a1b

// Package cleanup implements the consistency sweeps: an orphan pass
// removing rows whose backing content or parent row no longer exists,
// and a repair pass filling NULL timestamps and mending broken
// device-sync bookkeeping. Both are idempotent; running a sweep twice
// over an undamaged pair of stores fixes nothing the second time.
package cleanup

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ebooktools/calibre-manager/internal/catalog"
	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/database"
)

// Sweeper runs the consistency sweeps over the catalog, the optional
// companion store, and the library tree.
type Sweeper struct {
	catalog    *database.CatalogDB
	app        *database.AppDB
	clock      clock.Clock
	libraryDir string
}

// NewSweeper returns a sweeper. The companion store may be absent.
func NewSweeper(catalogDB *database.CatalogDB, appDB *database.AppDB, clk clock.Clock, libraryDir string) *Sweeper {
	return &Sweeper{catalog: catalogDB, app: appDB, clock: clk, libraryDir: libraryDir}
}

// OrphanReport counts removals per category.
type OrphanReport struct {
	Books         int
	Authors       int
	Publishers    int
	Series        int
	Tags          int
	Downloads     int
	Archived      int
	Bookmarks     int
	Statistics    int
	ReadingStates int
	SyncEntries   int
	ShelfLinks    int
	Shelves       int
}

// Total returns the number of rows removed across all categories.
func (r OrphanReport) Total() int {
	return r.Books + r.Authors + r.Publishers + r.Series + r.Tags +
		r.Downloads + r.Archived + r.Bookmarks + r.Statistics +
		r.ReadingStates + r.SyncEntries + r.ShelfLinks + r.Shelves
}

// OrphanSweep removes catalog books whose backing directory holds no
// book content, prunes entities no link references, and removes
// companion rows pointing at book ids the catalog no longer has, in
// dependency order.
func (s *Sweeper) OrphanSweep() (OrphanReport, error) {
	var report OrphanReport

	bookDirs, err := s.walkLibrary()
	if err != nil {
		return report, err
	}

	err = database.WithTx(s.catalog.DB, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, path FROM books")
		if err != nil {
			return fmt.Errorf("failed to query books: %w", err)
		}
		var orphans []int64
		for rows.Next() {
			var id int64
			var path string
			if err := rows.Scan(&id, &path); err != nil {
				rows.Close()
				return err
			}
			if !bookDirs[path] {
				orphans = append(orphans, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range orphans {
			if err := catalog.DeleteBookRows(tx, id); err != nil {
				return err
			}
			fmt.Printf(" -> Removed orphaned book (ID: %d)\n", id)
			report.Books++
		}

		for _, prune := range []struct {
			query string
			dest  *int
			label string
		}{
			{"DELETE FROM authors WHERE NOT EXISTS (SELECT 1 FROM books_authors_link WHERE author = authors.id)", &report.Authors, "author"},
			{"DELETE FROM publishers WHERE NOT EXISTS (SELECT 1 FROM books_publishers_link WHERE publisher = publishers.id)", &report.Publishers, "publisher"},
			{"DELETE FROM series WHERE NOT EXISTS (SELECT 1 FROM books_series_link WHERE series = series.id)", &report.Series, "series"},
			{"DELETE FROM tags WHERE NOT EXISTS (SELECT 1 FROM books_tags_link WHERE tag = tags.id)", &report.Tags, "tag"},
		} {
			res, err := tx.Exec(prune.query)
			if err != nil {
				return fmt.Errorf("failed to prune %s entries: %w", prune.label, err)
			}
			n, _ := res.RowsAffected()
			if n > 0 {
				fmt.Printf(" -> Removed %d orphaned %s entries\n", n, prune.label)
			}
			*prune.dest = int(n)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if s.app.Available() {
		if err := s.pruneCompanion(&report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// walkLibrary returns the set of relative directories that contain at
// least one book file. Cover images and metadata sidecars do not count
// as content, so a directory holding only those is treated as missing.
func (s *Sweeper) walkLibrary() (map[string]bool, error) {
	dirs := make(map[string]bool)
	err := filepath.WalkDir(s.libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.libraryDir, path)
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(rel))
		if ext == ".jpg" || ext == ".opf" {
			return nil
		}
		dirs[filepath.ToSlash(filepath.Dir(rel))] = true
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to walk library directory: %w", err)
	}
	return dirs, nil
}

// pruneCompanion deletes companion rows referencing book ids outside
// the catalog's valid set, leaves before parents: downloads and
// archive marks, then bookmark and statistics children, then reading
// states, then acknowledgments, then shelf links, then shelves that
// ended up empty.
func (s *Sweeper) pruneCompanion(report *OrphanReport) error {
	validIDs, err := s.validBookIDList()
	if err != nil {
		return err
	}

	return database.WithTx(s.app.DB, func(tx *sql.Tx) error {
		for _, prune := range []struct {
			query string
			dest  *int
			label string
		}{
			{"DELETE FROM downloads WHERE book_id NOT IN (" + validIDs + ")", &report.Downloads, "download"},
			{"DELETE FROM archived_book WHERE book_id NOT IN (" + validIDs + ")", &report.Archived, "archived book"},
			{"DELETE FROM kobo_bookmark WHERE kobo_reading_state_id IN (SELECT id FROM kobo_reading_state WHERE book_id NOT IN (" + validIDs + "))", &report.Bookmarks, "bookmark"},
			{"DELETE FROM kobo_statistics WHERE kobo_reading_state_id IN (SELECT id FROM kobo_reading_state WHERE book_id NOT IN (" + validIDs + "))", &report.Statistics, "statistics"},
			{"DELETE FROM kobo_reading_state WHERE book_id NOT IN (" + validIDs + ")", &report.ReadingStates, "reading state"},
			{"DELETE FROM kobo_synced_books WHERE book_id NOT IN (" + validIDs + ")", &report.SyncEntries, "sync"},
			{"DELETE FROM book_shelf_link WHERE book_id NOT IN (" + validIDs + ")", &report.ShelfLinks, "shelf link"},
			{"DELETE FROM shelf WHERE NOT EXISTS (SELECT 1 FROM book_shelf_link WHERE shelf = shelf.id)", &report.Shelves, "empty shelf"},
		} {
			res, err := tx.Exec(prune.query)
			if err != nil {
				return fmt.Errorf("failed to prune %s entries: %w", prune.label, err)
			}
			n, _ := res.RowsAffected()
			if n > 0 {
				fmt.Printf(" -> Removed %d orphaned %s entries\n", n, prune.label)
			}
			*prune.dest = int(n)
		}
		return nil
	})
}

// validBookIDList renders the catalog's book ids as a SQL IN-list.
// The two stores are separate database files, so the id set has to be
// inlined; the values are formatted integers, never raw input.
func (s *Sweeper) validBookIDList() (string, error) {
	rows, err := s.catalog.Query("SELECT id FROM books")
	if err != nil {
		return "", fmt.Errorf("failed to query valid book ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "-1", nil
	}
	return strings.Join(ids, ","), nil
}
