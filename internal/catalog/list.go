// file: internal/catalog/list.go
// version: 1.0.0
// guid: 0b2c4d6e-8f0a-4b2c-4d6e-8f0a2b4c6d8e

package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ebooktools/calibre-manager/internal/database"
	"github.com/ebooktools/calibre-manager/internal/models"
)

// ListOptions filter the book listing. ShelfName and Unshelved both
// need the companion store.
type ListOptions struct {
	ShelfName string
	Unshelved bool
	Verbose   bool
}

// Lister reads denormalized book records for the list and inspect
// commands.
type Lister struct {
	catalog *database.CatalogDB
	app     *database.AppDB
}

// NewLister returns a lister over the catalog and an optional
// companion store.
func NewLister(catalogDB *database.CatalogDB, appDB *database.AppDB) *Lister {
	return &Lister{catalog: catalogDB, app: appDB}
}

// List returns books ordered by title, optionally restricted to one
// shelf or to books on no shelf at all.
func (l *Lister) List(opts ListOptions) ([]models.BookListing, error) {
	var filterIDs []int64
	filtered := false

	switch {
	case opts.Unshelved:
		if !l.app.Available() {
			return nil, fmt.Errorf("companion database is required to find unshelved books")
		}
		ids, err := l.unshelvedBookIDs()
		if err != nil {
			return nil, err
		}
		filterIDs, filtered = ids, true
	case opts.ShelfName != "":
		if !l.app.Available() {
			return nil, fmt.Errorf("companion database is required to filter by shelf")
		}
		ids, err := l.shelfBookIDs(opts.ShelfName)
		if err != nil {
			return nil, err
		}
		filterIDs, filtered = ids, true
	}

	if filtered && len(filterIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, title, sort, author_sort, series_index, pubdate,
	                 timestamp, last_modified, uuid, path, has_cover
	          FROM books`
	var args []interface{}
	if filtered {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filterIDs)), ",")
		query += " WHERE id IN (" + placeholders + ")"
		for _, id := range filterIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY title"

	rows, err := l.catalog.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var listings []models.BookListing
	for rows.Next() {
		var b models.BookListing
		var pubdate, timestamp, lastMod sql.NullString
		var hasCover int
		if err := rows.Scan(&b.ID, &b.Title, &b.Sort, &b.AuthorSort, &b.SeriesIndex,
			&pubdate, &timestamp, &lastMod, &b.UUID, &b.Path, &hasCover); err != nil {
			return nil, err
		}
		b.PubDate = pubdate.String
		b.Timestamp = timestamp.String
		b.LastMod = lastMod.String
		b.HasCover = hasCover != 0
		listings = append(listings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range listings {
		if err := l.fillLinks(&listings[i], opts.Verbose); err != nil {
			return nil, err
		}
	}
	return listings, nil
}

func (l *Lister) fillLinks(b *models.BookListing, verbose bool) error {
	var err error
	if b.Authors, err = l.linkedNames("authors", "books_authors_link", "author", b.ID); err != nil {
		return err
	}
	if b.Series, err = l.linkedNames("series", "books_series_link", "series", b.ID); err != nil {
		return err
	}
	if b.Tags, err = l.linkedNames("tags", "books_tags_link", "tag", b.ID); err != nil {
		return err
	}
	if b.Publishers, err = l.linkedNames("publishers", "books_publishers_link", "publisher", b.ID); err != nil {
		return err
	}

	if l.app.Available() {
		rows, err := l.app.Query(
			`SELECT s.name, COALESCE(u.name, 'admin')
			 FROM shelf s
			 JOIN book_shelf_link bsl ON s.id = bsl.shelf
			 LEFT JOIN user u ON s.user_id = u.id
			 WHERE bsl.book_id = ?`, b.ID)
		if err != nil {
			return fmt.Errorf("failed to query shelves for book %d: %w", b.ID, err)
		}
		for rows.Next() {
			var ref models.ShelfRef
			if err := rows.Scan(&ref.Name, &ref.Username); err != nil {
				rows.Close()
				return err
			}
			b.Shelves = append(b.Shelves, ref)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}

	if !verbose {
		return nil
	}

	var lang string
	err = l.catalog.QueryRow(
		`SELECT lg.lang_code FROM languages lg
		 JOIN books_languages_link bll ON lg.id = bll.lang_code
		 WHERE bll.book = ?`, b.ID,
	).Scan(&lang)
	if err == nil {
		b.Language = lang
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to query language for book %d: %w", b.ID, err)
	}

	rows, err := l.catalog.Query("SELECT type, val FROM identifiers WHERE book = ?", b.ID)
	if err != nil {
		return fmt.Errorf("failed to query identifiers for book %d: %w", b.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var idType, idVal string
		if err := rows.Scan(&idType, &idVal); err != nil {
			return err
		}
		if b.Identifiers == nil {
			b.Identifiers = make(map[string]string)
		}
		b.Identifiers[idType] = idVal
	}
	return rows.Err()
}

func (l *Lister) linkedNames(itemTable, linkTable, itemColumn string, bookID int64) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT t.name FROM %s t JOIN %s lt ON t.id = lt.%s WHERE lt.book = ?",
		itemTable, linkTable, itemColumn)
	rows, err := l.catalog.Query(query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for book %d: %w", itemTable, bookID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (l *Lister) unshelvedBookIDs() ([]int64, error) {
	shelved := make(map[int64]bool)
	rows, err := l.app.Query("SELECT DISTINCT book_id FROM book_shelf_link")
	if err != nil {
		return nil, fmt.Errorf("failed to query shelved books: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		shelved[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	all, err := l.allBookIDs()
	if err != nil {
		return nil, err
	}
	var unshelved []int64
	for _, id := range all {
		if !shelved[id] {
			unshelved = append(unshelved, id)
		}
	}
	return unshelved, nil
}

func (l *Lister) allBookIDs() ([]int64, error) {
	rows, err := l.catalog.Query("SELECT id FROM books")
	if err != nil {
		return nil, fmt.Errorf("failed to query book ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *Lister) shelfBookIDs(shelfName string) ([]int64, error) {
	rows, err := l.app.Query(
		`SELECT bsl.book_id FROM book_shelf_link bsl
		 JOIN shelf s ON s.id = bsl.shelf
		 WHERE s.name = ?`, shelfName)
	if err != nil {
		return nil, fmt.Errorf("failed to query shelf %q: %w", shelfName, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InspectReport is a diagnostic dump of both stores and their cross
// references.
type InspectReport struct {
	Shelves        []ShelfDetail
	BookCount      int64
	AuthorCount    int64
	SeriesCount    int64
	RecentBooks    []RecentBook
	DanglingBookID []int64
}

// ShelfDetail describes one shelf and the catalog books on it.
type ShelfDetail struct {
	ID       int64
	Name     string
	Owner    string
	IsPublic bool
	Books    []ShelfBook
}

// ShelfBook is one catalog book resolved from a shelf link.
type ShelfBook struct {
	ID         int64
	Title      string
	AuthorSort string
}

// RecentBook is a recently added catalog entry.
type RecentBook struct {
	Title      string
	AuthorSort string
	Timestamp  string
}

// Inspect gathers the diagnostic report: shelves with resolved books,
// catalog statistics, the most recently added books, and shelf links
// pointing at books that no longer exist.
func (l *Lister) Inspect() (*InspectReport, error) {
	report := &InspectReport{}

	if l.app.Available() {
		if err := l.inspectShelves(report); err != nil {
			return nil, err
		}
	}

	for _, c := range []struct {
		table string
		dest  *int64
	}{
		{"books", &report.BookCount},
		{"authors", &report.AuthorCount},
		{"series", &report.SeriesCount},
	} {
		if err := l.catalog.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	rows, err := l.catalog.Query(
		"SELECT title, author_sort, timestamp FROM books ORDER BY timestamp DESC LIMIT 5")
	if err != nil {
		return nil, fmt.Errorf("failed to query recent books: %w", err)
	}
	for rows.Next() {
		var r RecentBook
		var ts sql.NullString
		if err := rows.Scan(&r.Title, &r.AuthorSort, &ts); err != nil {
			rows.Close()
			return nil, err
		}
		r.Timestamp = ts.String
		report.RecentBooks = append(report.RecentBooks, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if l.app.Available() {
		if err := l.findDanglingLinks(report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (l *Lister) inspectShelves(report *InspectReport) error {
	rows, err := l.app.Query(
		`SELECT s.id, s.name, COALESCE(u.name, 'Unknown'), s.is_public
		 FROM shelf s LEFT JOIN user u ON s.user_id = u.id
		 ORDER BY s.name`)
	if err != nil {
		return fmt.Errorf("failed to query shelves: %w", err)
	}
	for rows.Next() {
		var d ShelfDetail
		var isPublic int
		if err := rows.Scan(&d.ID, &d.Name, &d.Owner, &isPublic); err != nil {
			rows.Close()
			return err
		}
		d.IsPublic = isPublic != 0
		report.Shelves = append(report.Shelves, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for i := range report.Shelves {
		ids, err := l.shelfLinkBookIDs(report.Shelves[i].ID)
		if err != nil {
			return err
		}
		for _, bookID := range ids {
			var b ShelfBook
			err := l.catalog.QueryRow(
				"SELECT id, title, author_sort FROM books WHERE id = ?", bookID,
			).Scan(&b.ID, &b.Title, &b.AuthorSort)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return err
			}
			report.Shelves[i].Books = append(report.Shelves[i].Books, b)
		}
	}
	return nil
}

func (l *Lister) shelfLinkBookIDs(shelfID int64) ([]int64, error) {
	rows, err := l.app.Query(
		"SELECT book_id FROM book_shelf_link WHERE shelf = ? ORDER BY book_id", shelfID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *Lister) findDanglingLinks(report *InspectReport) error {
	rows, err := l.app.Query("SELECT DISTINCT book_id FROM book_shelf_link ORDER BY book_id")
	if err != nil {
		return err
	}
	var linkedIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		linkedIDs = append(linkedIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range linkedIDs {
		var exists int
		err := l.catalog.QueryRow("SELECT 1 FROM books WHERE id = ?", id).Scan(&exists)
		if err == sql.ErrNoRows {
			report.DanglingBookID = append(report.DanglingBookID, id)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
