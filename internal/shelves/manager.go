// file: internal/shelves/manager.go
// version: 1.0.0
// guid: 1c3d5e7f-9a1b-4c3d-5e7f-9a1b3c5d7e9f

// Package shelves manages named collections in the companion store:
// shelf creation, book membership with positional ordering, and the
// device-sync bookkeeping rows that must move in lockstep with
// membership changes.
package shelves

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/database"
	"github.com/ebooktools/calibre-manager/internal/models"
)

// Manager owns shelf and membership rows in the companion store. The
// catalog store is read-only here, used to validate book references.
type Manager struct {
	app         *database.AppDB
	catalog     *database.CatalogDB
	clock       clock.Clock
	defaultUser string
}

// NewManager returns a shelf manager. defaultUser names the owner used
// when a command gives none; empty falls back to the admin identity.
func NewManager(appDB *database.AppDB, catalogDB *database.CatalogDB, clk clock.Clock, defaultUser string) *Manager {
	return &Manager{app: appDB, catalog: catalogDB, clock: clk, defaultUser: defaultUser}
}

// adminUserID is the fixed fallback owner seeded into every companion
// store.
const adminUserID = 1

// AddBookToShelf adds a book to the named shelf owned by username,
// creating the shelf if needed. Re-adding an existing membership is a
// silent no-op. Returns whether the book was newly added. The whole
// add, including sync bookkeeping, is one transaction.
func (m *Manager) AddBookToShelf(bookID int64, shelfName, username string) (bool, error) {
	if !m.app.Available() {
		return false, fmt.Errorf("companion database is required to manage shelves")
	}

	added := false
	err := database.WithTx(m.app.DB, func(tx *sql.Tx) error {
		userID, err := m.resolveOwner(tx, username)
		if err != nil {
			return err
		}

		shelfID, err := m.findOrCreateShelf(tx, shelfName, userID)
		if err != nil {
			return err
		}

		var exists int
		err = tx.QueryRow(
			"SELECT 1 FROM book_shelf_link WHERE book_id = ? AND shelf = ?",
			bookID, shelfID,
		).Scan(&exists)
		if err == nil {
			fmt.Printf(" -> Book is already on shelf '%s'.\n", shelfName)
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check shelf membership: %w", err)
		}

		// Positions are max+1 and never renumbered, so insertion order
		// stays recoverable even after removals.
		var nextOrder int64
		if err := tx.QueryRow(
			`SELECT COALESCE(MAX("order"), 0) + 1 FROM book_shelf_link WHERE shelf = ?`,
			shelfID,
		).Scan(&nextOrder); err != nil {
			return fmt.Errorf("failed to compute shelf position: %w", err)
		}

		now := clock.Format(m.clock.Now())
		if _, err := tx.Exec(
			`INSERT INTO book_shelf_link (book_id, shelf, "order", date_added) VALUES (?, ?, ?, ?)`,
			bookID, shelfID, nextOrder, now,
		); err != nil {
			return fmt.Errorf("failed to add book to shelf: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE shelf SET last_modified = ? WHERE id = ?", now, shelfID,
		); err != nil {
			return fmt.Errorf("failed to refresh shelf timestamp: %w", err)
		}

		var koboSync int
		if err := tx.QueryRow(
			"SELECT kobo_sync FROM shelf WHERE id = ?", shelfID,
		).Scan(&koboSync); err != nil {
			return fmt.Errorf("failed to read shelf sync flag: %w", err)
		}
		if koboSync != 0 {
			created, err := EnsureReadingState(tx, userID, bookID, now)
			if err != nil {
				return err
			}
			if created {
				fmt.Println(" -> Created reading state for user.")
			}
		}

		// Any membership change invalidates prior sync acknowledgments
		// for this owner so an external sync re-evaluates membership.
		if _, err := tx.Exec(
			"DELETE FROM kobo_synced_books WHERE user_id = ?", userID,
		); err != nil {
			return fmt.Errorf("failed to invalidate sync acknowledgments: %w", err)
		}

		fmt.Printf(" -> Added book to shelf '%s'.\n", shelfName)
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// resolveOwner maps a username to its user id. An empty name falls
// back to the configured default user, then to the admin identity. A
// named user that does not exist is a hard error.
func (m *Manager) resolveOwner(tx *sql.Tx, username string) (int64, error) {
	if username == "" {
		username = m.defaultUser
	}
	if username == "" {
		return adminUserID, nil
	}
	var id int64
	err := tx.QueryRow("SELECT id FROM user WHERE name = ?", username).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user %q: %w", username, err)
	}
	return id, nil
}

func (m *Manager) findOrCreateShelf(tx *sql.Tx, name string, userID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(
		"SELECT id FROM shelf WHERE name = ? AND user_id = ?", name, userID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up shelf %q: %w", name, err)
	}

	now := clock.Format(m.clock.Now())
	res, err := tx.Exec(
		`INSERT INTO shelf (uuid, name, is_public, user_id, kobo_sync, created, last_modified)
		 VALUES (?, ?, 0, ?, 0, ?, ?)`,
		uuid.NewString(), name, userID, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create shelf %q: %w", name, err)
	}
	fmt.Printf(" -> Created new shelf '%s'.\n", name)
	return res.LastInsertId()
}

// EnsureReadingState creates the reading-state row for (user, book) if
// absent, together with its statistics row, a placeholder bookmark,
// and the two-way current-bookmark link. Returns whether anything was
// created. Shared with the repair sweep.
func EnsureReadingState(tx *sql.Tx, userID, bookID int64, now string) (bool, error) {
	var stateID int64
	err := tx.QueryRow(
		"SELECT id FROM kobo_reading_state WHERE user_id = ? AND book_id = ?",
		userID, bookID,
	).Scan(&stateID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to look up reading state: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO kobo_reading_state (user_id, book_id, last_modified, priority_timestamp)
		 VALUES (?, ?, ?, ?)`,
		userID, bookID, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create reading state: %w", err)
	}
	stateID, err = res.LastInsertId()
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(
		"INSERT INTO kobo_statistics (kobo_reading_state_id, last_modified) VALUES (?, ?)",
		stateID, now,
	); err != nil {
		return false, fmt.Errorf("failed to create statistics row: %w", err)
	}

	bookmarkID, err := CreateDefaultBookmark(tx, stateID, now)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(
		"UPDATE kobo_reading_state SET current_bookmark = ? WHERE id = ?",
		bookmarkID, stateID,
	); err != nil {
		return false, fmt.Errorf("failed to link current bookmark: %w", err)
	}
	return true, nil
}

// CreateDefaultBookmark inserts a placeholder bookmark for a reading
// state and returns its id. The caller owns pointing current_bookmark
// at it.
func CreateDefaultBookmark(tx *sql.Tx, stateID int64, now string) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO kobo_bookmark (kobo_reading_state_id, last_modified) VALUES (?, ?)",
		stateID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create bookmark: %w", err)
	}
	return res.LastInsertId()
}

// ListShelves returns every shelf with its owner and member count,
// ordered by name.
func (m *Manager) ListShelves() ([]models.ShelfEntry, error) {
	if !m.app.Available() {
		return nil, fmt.Errorf("companion database is required to list shelves")
	}

	rows, err := m.app.Query(
		`SELECT s.id, s.name, s.user_id, COALESCE(s.uuid, ''), s.is_public, s.kobo_sync,
		        COALESCE(u.name, 'admin'), COUNT(bsl.book_id)
		 FROM shelf s
		 LEFT JOIN user u ON s.user_id = u.id
		 LEFT JOIN book_shelf_link bsl ON s.id = bsl.shelf
		 GROUP BY s.id
		 ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shelves: %w", err)
	}
	defer rows.Close()

	var entries []models.ShelfEntry
	for rows.Next() {
		var e models.ShelfEntry
		var isPublic, koboSync int
		if err := rows.Scan(&e.ID, &e.Name, &e.UserID, &e.UUID, &isPublic, &koboSync,
			&e.Username, &e.BookCount); err != nil {
			return nil, err
		}
		e.IsPublic = isPublic != 0
		e.KoboSync = koboSync != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveEmptyShelves deletes membership links pointing at books the
// catalog no longer has, then deletes shelves left with zero members.
// Returns (orphan links removed, shelves removed).
func (m *Manager) RemoveEmptyShelves() (int, int, error) {
	if !m.app.Available() {
		return 0, 0, fmt.Errorf("companion database is required to clean shelves")
	}

	linksRemoved := 0
	shelvesRemoved := 0
	err := database.WithTx(m.app.DB, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, name FROM shelf")
		if err != nil {
			return fmt.Errorf("failed to query shelves: %w", err)
		}
		type shelfRow struct {
			id   int64
			name string
		}
		var allShelves []shelfRow
		for rows.Next() {
			var s shelfRow
			if err := rows.Scan(&s.id, &s.name); err != nil {
				rows.Close()
				return err
			}
			allShelves = append(allShelves, s)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, shelf := range allShelves {
			linkRows, err := tx.Query(
				"SELECT id, book_id FROM book_shelf_link WHERE shelf = ?", shelf.id)
			if err != nil {
				return fmt.Errorf("failed to query links for shelf %q: %w", shelf.name, err)
			}
			type link struct {
				id     int64
				bookID int64
			}
			var links []link
			for linkRows.Next() {
				var l link
				if err := linkRows.Scan(&l.id, &l.bookID); err != nil {
					linkRows.Close()
					return err
				}
				links = append(links, l)
			}
			if err := linkRows.Err(); err != nil {
				linkRows.Close()
				return err
			}
			linkRows.Close()

			orphaned := 0
			for _, l := range links {
				var exists int
				err := m.catalog.QueryRow("SELECT 1 FROM books WHERE id = ?", l.bookID).Scan(&exists)
				if err == sql.ErrNoRows {
					if _, err := tx.Exec("DELETE FROM book_shelf_link WHERE id = ?", l.id); err != nil {
						return fmt.Errorf("failed to remove orphaned link %d: %w", l.id, err)
					}
					orphaned++
					continue
				}
				if err != nil {
					return err
				}
			}
			if orphaned > 0 {
				fmt.Printf(" -> Removed %d orphaned book links from shelf '%s'.\n", orphaned, shelf.name)
				linksRemoved += orphaned
			}

			var count int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM book_shelf_link WHERE shelf = ?", shelf.id,
			).Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				if _, err := tx.Exec("DELETE FROM shelf WHERE id = ?", shelf.id); err != nil {
					return fmt.Errorf("failed to remove empty shelf %q: %w", shelf.name, err)
				}
				fmt.Printf(" -> Removed empty shelf '%s'.\n", shelf.name)
				shelvesRemoved++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return linksRemoved, shelvesRemoved, nil
}
