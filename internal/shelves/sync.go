// file: internal/shelves/sync.go
// version: 1.0.0
// guid: 2d4e6f8a-0b2c-4d4e-6f8a-0b2c4d6e8f0a

package shelves

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/database"
)

// SyncRepairReport counts the fixes applied by RepairSync, one counter
// per fix category.
type SyncRepairReport struct {
	SyncEntries   int
	ReadingStates int
	Timestamps    int
}

// HasFixes reports whether any category fixed anything.
func (r SyncRepairReport) HasFixes() bool {
	return r.SyncEntries > 0 || r.ReadingStates > 0 || r.Timestamps > 0
}

type syncMember struct {
	bookID   int64
	shelfID  int64
	userID   int64
	username string
}

// RepairSync walks every book on a sync-enabled shelf and repairs its
// device-sync bookkeeping: missing acknowledgment rows, missing
// reading states (with statistics and bookmark), and degraded
// timestamps. Shelves that received a fix get their last_modified
// reset so an external sync re-evaluates them. Idempotent: a second
// run over an undamaged store applies zero fixes.
func (m *Manager) RepairSync() (SyncRepairReport, error) {
	var report SyncRepairReport
	if !m.app.Available() {
		return report, fmt.Errorf("companion database is required to repair sync state")
	}

	err := database.WithTx(m.app.DB, func(tx *sql.Tx) error {
		members, err := syncShelfMembers(tx)
		if err != nil {
			return err
		}

		now := clock.Format(m.clock.Now())
		touchedShelves := make(map[int64]bool)

		for _, member := range members {
			fixed := false

			var exists int
			err := tx.QueryRow(
				"SELECT 1 FROM kobo_synced_books WHERE book_id = ? AND user_id = ?",
				member.bookID, member.userID,
			).Scan(&exists)
			if err == sql.ErrNoRows {
				if _, err := tx.Exec(
					"INSERT INTO kobo_synced_books (user_id, book_id) VALUES (?, ?)",
					member.userID, member.bookID,
				); err != nil {
					return fmt.Errorf("failed to add sync entry for book %d: %w", member.bookID, err)
				}
				fmt.Printf(" -> Added book %d to sync list for user %s\n", member.bookID, member.username)
				report.SyncEntries++
				fixed = true
			} else if err != nil {
				return err
			}

			created, err := EnsureReadingState(tx, member.userID, member.bookID, now)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf(" -> Created reading state for book %d for user %s\n", member.bookID, member.username)
				report.ReadingStates++
				fixed = true
			} else {
				standardized, err := standardizeStateTimestamps(tx, member.userID, member.bookID, now)
				if err != nil {
					return err
				}
				if standardized {
					fmt.Printf(" -> Standardized timestamps for book %d reading state\n", member.bookID)
					report.Timestamps++
					fixed = true
				}
			}

			if fixed {
				touchedShelves[member.shelfID] = true
			}
		}

		for shelfID := range touchedShelves {
			if _, err := tx.Exec(
				"UPDATE shelf SET last_modified = ? WHERE id = ?", now, shelfID,
			); err != nil {
				return fmt.Errorf("failed to reset shelf %d timestamp: %w", shelfID, err)
			}
		}

		// Cross-fill timestamp siblings before falling back to now.
		res, err := tx.Exec(
			`UPDATE kobo_reading_state SET last_modified = priority_timestamp
			 WHERE last_modified IS NULL AND priority_timestamp IS NOT NULL`)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			fmt.Printf(" -> Fixed %d reading states with NULL last_modified\n", n)
			report.Timestamps += int(n)
		}
		res, err = tx.Exec(
			`UPDATE kobo_reading_state SET priority_timestamp = last_modified
			 WHERE priority_timestamp IS NULL AND last_modified IS NOT NULL`)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			fmt.Printf(" -> Fixed %d reading states with NULL priority_timestamp\n", n)
			report.Timestamps += int(n)
		}
		return nil
	})
	if err != nil {
		return SyncRepairReport{}, err
	}
	return report, nil
}

func syncShelfMembers(tx *sql.Tx) ([]syncMember, error) {
	rows, err := tx.Query(
		`SELECT DISTINCT bsl.book_id, s.id, s.user_id, COALESCE(u.name, 'unknown')
		 FROM book_shelf_link bsl
		 JOIN shelf s ON bsl.shelf = s.id
		 LEFT JOIN user u ON s.user_id = u.id
		 WHERE s.kobo_sync = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync shelf members: %w", err)
	}
	defer rows.Close()

	var members []syncMember
	for rows.Next() {
		var m syncMember
		if err := rows.Scan(&m.bookID, &m.shelfID, &m.userID, &m.username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// standardizeStateTimestamps rewrites a reading state's timestamps
// when they lack microsecond precision, which confuses the external
// sync consumer's change detection.
func standardizeStateTimestamps(tx *sql.Tx, userID, bookID int64, now string) (bool, error) {
	var stateID int64
	var lastModified sql.NullString
	err := tx.QueryRow(
		"SELECT id, last_modified FROM kobo_reading_state WHERE user_id = ? AND book_id = ?",
		userID, bookID,
	).Scan(&stateID, &lastModified)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if lastModified.Valid && strings.Contains(lastModified.String, ".") && len(lastModified.String) >= 26 {
		return false, nil
	}
	if _, err := tx.Exec(
		"UPDATE kobo_reading_state SET last_modified = ?, priority_timestamp = ? WHERE id = ?",
		now, now, stateID,
	); err != nil {
		return false, fmt.Errorf("failed to standardize timestamps for state %d: %w", stateID, err)
	}
	return true, nil
}

// DiagnoseSync prints a report of the device-sync setup: owners of
// sync-enabled shelves, the shelves themselves, and the per-book sync
// status.
func (m *Manager) DiagnoseSync() error {
	if !m.app.Available() {
		return fmt.Errorf("companion database is required to diagnose sync state")
	}

	fmt.Println("Sync Diagnostic Report")
	fmt.Println("======================")

	fmt.Println("\nUsers with sync-enabled shelves:")
	userRows, err := m.app.Query(
		`SELECT id, name FROM user
		 WHERE id IN (SELECT DISTINCT user_id FROM shelf WHERE kobo_sync = 1)`)
	if err != nil {
		return fmt.Errorf("failed to query sync users: %w", err)
	}
	userCount := 0
	for userRows.Next() {
		var id int64
		var name string
		if err := userRows.Scan(&id, &name); err != nil {
			userRows.Close()
			return err
		}
		fmt.Printf("  - %s (ID: %d)\n", name, id)
		userCount++
	}
	if err := userRows.Err(); err != nil {
		userRows.Close()
		return err
	}
	userRows.Close()
	if userCount == 0 {
		fmt.Println("  (none)")
	}

	fmt.Println("\nSync-enabled shelves:")
	shelfRows, err := m.app.Query(
		`SELECT s.id, s.name, COALESCE(u.name, 'unknown'), s.created, s.last_modified,
		        COUNT(bsl.book_id)
		 FROM shelf s
		 LEFT JOIN user u ON s.user_id = u.id
		 LEFT JOIN book_shelf_link bsl ON s.id = bsl.shelf
		 WHERE s.kobo_sync = 1
		 GROUP BY s.id`)
	if err != nil {
		return fmt.Errorf("failed to query sync shelves: %w", err)
	}
	type shelfInfo struct {
		id                            int64
		name, owner, created, lastMod string
		bookCount                     int64
	}
	var shelvesFound []shelfInfo
	for shelfRows.Next() {
		var s shelfInfo
		var created, lastMod sql.NullString
		if err := shelfRows.Scan(&s.id, &s.name, &s.owner, &created, &lastMod, &s.bookCount); err != nil {
			shelfRows.Close()
			return err
		}
		s.created = created.String
		s.lastMod = lastMod.String
		shelvesFound = append(shelvesFound, s)
	}
	if err := shelfRows.Err(); err != nil {
		shelfRows.Close()
		return err
	}
	shelfRows.Close()
	if len(shelvesFound) == 0 {
		fmt.Println("  (none)")
	}

	for _, s := range shelvesFound {
		fmt.Printf("  - %s (ID: %d) - Owner: %s - Books: %d\n", s.name, s.id, s.owner, s.bookCount)
		fmt.Printf("    Created: %s | Last Modified: %s\n", s.created, s.lastMod)
		if err := m.printShelfBookStatus(s.id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) printShelfBookStatus(shelfID int64) error {
	rows, err := m.app.Query(
		`SELECT book_id, COALESCE(date_added, ''), "order"
		 FROM book_shelf_link WHERE shelf = ? ORDER BY "order"`, shelfID)
	if err != nil {
		return fmt.Errorf("failed to query shelf %d links: %w", shelfID, err)
	}
	type linkInfo struct {
		bookID    int64
		dateAdded string
		order     int64
	}
	var links []linkInfo
	for rows.Next() {
		var l linkInfo
		if err := rows.Scan(&l.bookID, &l.dateAdded, &l.order); err != nil {
			rows.Close()
			return err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, l := range links {
		title := fmt.Sprintf("Unknown (ID: %d)", l.bookID)
		var t string
		if err := m.catalog.QueryRow("SELECT title FROM books WHERE id = ?", l.bookID).Scan(&t); err == nil {
			title = t
		}

		inSync, err := m.rowExists("SELECT 1 FROM kobo_synced_books WHERE book_id = ?", l.bookID)
		if err != nil {
			return err
		}
		hasState, err := m.rowExists("SELECT 1 FROM kobo_reading_state WHERE book_id = ?", l.bookID)
		if err != nil {
			return err
		}

		var status string
		switch {
		case inSync && hasState:
			status = "full sync setup"
		case inSync:
			status = "missing reading state"
		case hasState:
			status = "missing sync entry"
		default:
			status = "no sync setup"
		}
		fmt.Printf("    [%d] %s - %s (Added: %s)\n", l.order, title, status, l.dateAdded)
	}
	return nil
}

func (m *Manager) rowExists(query string, args ...interface{}) (bool, error) {
	var one int
	err := m.app.QueryRow(query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
