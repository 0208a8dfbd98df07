// file: internal/cleanup/repair.go
// version: 1.0.0
// guid: 4f6a8b0c-2d4e-4f6a-8b0c-2d4e6f8a0b2c

package cleanup

import (
	"database/sql"
	"fmt"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/database"
	"github.com/ebooktools/calibre-manager/internal/shelves"
)

// RepairReport counts the fixes applied by the repair sweep, one
// counter per category.
type RepairReport struct {
	CatalogTimestamps  int
	ShelfTimestamps    int
	LinkTimestamps     int
	StateTimestamps    int
	DuplicateStates    int
	BookmarksCreated   int
	PointersBackfilled int
	AcksRemoved        int
	AcksAdded          int
}

// Total returns the number of fixes across all categories.
func (r RepairReport) Total() int {
	return r.CatalogTimestamps + r.ShelfTimestamps + r.LinkTimestamps +
		r.StateTimestamps + r.DuplicateStates + r.BookmarksCreated +
		r.PointersBackfilled + r.AcksRemoved + r.AcksAdded
}

// RepairSweep fixes NULL timestamps across both stores, deduplicates
// reading states, restores the two-way current-bookmark link, and
// reconciles device acknowledgments with sync-shelf membership. Each
// category runs in its own transaction so one failure does not undo
// the others' fixes.
func (s *Sweeper) RepairSweep() (RepairReport, error) {
	var report RepairReport

	if err := s.repairCatalogTimestamps(&report); err != nil {
		return report, err
	}

	if !s.app.Available() {
		return report, nil
	}

	if err := s.repairCompanionTimestamps(&report); err != nil {
		return report, err
	}
	if err := s.dedupeReadingStates(&report); err != nil {
		return report, err
	}
	if err := s.repairBookmarks(&report); err != nil {
		return report, err
	}
	if err := s.reconcileAcknowledgments(&report); err != nil {
		return report, err
	}
	if err := s.touchSyncShelves(report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Sweeper) repairCatalogTimestamps(report *RepairReport) error {
	now := clock.Format(s.clock.Now())
	return database.WithTx(s.catalog.DB, func(tx *sql.Tx) error {
		for _, fix := range []struct {
			query string
			args  []interface{}
		}{
			{"UPDATE books SET timestamp = last_modified WHERE timestamp IS NULL AND last_modified IS NOT NULL", nil},
			{"UPDATE books SET last_modified = timestamp WHERE last_modified IS NULL AND timestamp IS NOT NULL", nil},
			{"UPDATE books SET timestamp = ?, last_modified = ? WHERE timestamp IS NULL AND last_modified IS NULL", []interface{}{now, now}},
		} {
			res, err := tx.Exec(fix.query, fix.args...)
			if err != nil {
				return fmt.Errorf("failed to repair catalog timestamps: %w", err)
			}
			n, _ := res.RowsAffected()
			report.CatalogTimestamps += int(n)
		}
		if report.CatalogTimestamps > 0 {
			fmt.Printf(" -> Fixed %d catalog rows with missing timestamps\n", report.CatalogTimestamps)
		}
		return nil
	})
}

// repairCompanionTimestamps cross-fills a NULL timestamp from its
// sibling column first and falls back to the clock only when both
// sides are missing.
func (s *Sweeper) repairCompanionTimestamps(report *RepairReport) error {
	now := clock.Format(s.clock.Now())
	return database.WithTx(s.app.DB, func(tx *sql.Tx) error {
		shelfFixes := []struct {
			query string
			args  []interface{}
		}{
			{"UPDATE shelf SET created = last_modified WHERE created IS NULL AND last_modified IS NOT NULL", nil},
			{"UPDATE shelf SET last_modified = created WHERE last_modified IS NULL AND created IS NOT NULL", nil},
			{"UPDATE shelf SET created = ?, last_modified = ? WHERE created IS NULL AND last_modified IS NULL", []interface{}{now, now}},
		}
		for _, fix := range shelfFixes {
			res, err := tx.Exec(fix.query, fix.args...)
			if err != nil {
				return fmt.Errorf("failed to repair shelf timestamps: %w", err)
			}
			n, _ := res.RowsAffected()
			report.ShelfTimestamps += int(n)
		}
		if report.ShelfTimestamps > 0 {
			fmt.Printf(" -> Fixed %d shelf records with missing timestamps\n", report.ShelfTimestamps)
		}

		res, err := tx.Exec("UPDATE book_shelf_link SET date_added = ? WHERE date_added IS NULL", now)
		if err != nil {
			return fmt.Errorf("failed to repair shelf link timestamps: %w", err)
		}
		n, _ := res.RowsAffected()
		report.LinkTimestamps = int(n)
		if n > 0 {
			fmt.Printf(" -> Fixed %d shelf links with missing timestamp\n", n)
		}

		stateFixes := []struct {
			query string
			args  []interface{}
		}{
			{"UPDATE kobo_reading_state SET last_modified = priority_timestamp WHERE last_modified IS NULL AND priority_timestamp IS NOT NULL", nil},
			{"UPDATE kobo_reading_state SET priority_timestamp = last_modified WHERE priority_timestamp IS NULL AND last_modified IS NOT NULL", nil},
			{"UPDATE kobo_reading_state SET last_modified = ?, priority_timestamp = ? WHERE last_modified IS NULL AND priority_timestamp IS NULL", []interface{}{now, now}},
		}
		for _, fix := range stateFixes {
			res, err := tx.Exec(fix.query, fix.args...)
			if err != nil {
				return fmt.Errorf("failed to repair reading state timestamps: %w", err)
			}
			n, _ := res.RowsAffected()
			report.StateTimestamps += int(n)
		}
		if report.StateTimestamps > 0 {
			fmt.Printf(" -> Fixed %d reading states with missing timestamps\n", report.StateTimestamps)
		}
		return nil
	})
}

// dedupeReadingStates collapses duplicate (owner, book) reading states
// down to the highest-id row. Bookmarks on the losing rows are
// relocated to the keeper before the rows go, so no bookmark is ever
// left referencing a deleted state.
func (s *Sweeper) dedupeReadingStates(report *RepairReport) error {
	return database.WithTx(s.app.DB, func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT user_id, book_id, MAX(id) FROM kobo_reading_state
			 GROUP BY user_id, book_id HAVING COUNT(*) > 1`)
		if err != nil {
			return fmt.Errorf("failed to find duplicate reading states: %w", err)
		}
		type dupe struct {
			userID, bookID, keeper int64
		}
		var dupes []dupe
		for rows.Next() {
			var d dupe
			if err := rows.Scan(&d.userID, &d.bookID, &d.keeper); err != nil {
				rows.Close()
				return err
			}
			dupes = append(dupes, d)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, d := range dupes {
			if _, err := tx.Exec(
				`UPDATE kobo_bookmark SET kobo_reading_state_id = ?
				 WHERE kobo_reading_state_id IN
				 (SELECT id FROM kobo_reading_state WHERE user_id = ? AND book_id = ? AND id != ?)`,
				d.keeper, d.userID, d.bookID, d.keeper,
			); err != nil {
				return fmt.Errorf("failed to relocate bookmarks: %w", err)
			}
			if _, err := tx.Exec(
				`DELETE FROM kobo_statistics WHERE kobo_reading_state_id IN
				 (SELECT id FROM kobo_reading_state WHERE user_id = ? AND book_id = ? AND id != ?)`,
				d.userID, d.bookID, d.keeper,
			); err != nil {
				return fmt.Errorf("failed to remove duplicate statistics: %w", err)
			}
			res, err := tx.Exec(
				"DELETE FROM kobo_reading_state WHERE user_id = ? AND book_id = ? AND id != ?",
				d.userID, d.bookID, d.keeper,
			)
			if err != nil {
				return fmt.Errorf("failed to remove duplicate reading states: %w", err)
			}
			n, _ := res.RowsAffected()
			report.DuplicateStates += int(n)
		}
		if report.DuplicateStates > 0 {
			fmt.Printf(" -> Removed %d duplicate reading states\n", report.DuplicateStates)
		}
		return nil
	})
}

// repairBookmarks restores the two-way current-bookmark invariant:
// every reading state ends up with a current_bookmark referencing a
// bookmark that references it back.
func (s *Sweeper) repairBookmarks(report *RepairReport) error {
	now := clock.Format(s.clock.Now())
	return database.WithTx(s.app.DB, func(tx *sql.Tx) error {
		// A pointer at a missing bookmark, or at another state's
		// bookmark, counts as no pointer at all.
		if _, err := tx.Exec(
			`UPDATE kobo_reading_state SET current_bookmark = NULL
			 WHERE current_bookmark IS NOT NULL AND NOT EXISTS
			 (SELECT 1 FROM kobo_bookmark b
			  WHERE b.id = kobo_reading_state.current_bookmark
			    AND b.kobo_reading_state_id = kobo_reading_state.id)`); err != nil {
			return fmt.Errorf("failed to clear broken bookmark pointers: %w", err)
		}

		rows, err := tx.Query(
			`SELECT id FROM kobo_reading_state
			 WHERE NOT EXISTS (SELECT 1 FROM kobo_bookmark WHERE kobo_reading_state_id = kobo_reading_state.id)`)
		if err != nil {
			return fmt.Errorf("failed to find states without bookmarks: %w", err)
		}
		var bare []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			bare = append(bare, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, stateID := range bare {
			bookmarkID, err := shelves.CreateDefaultBookmark(tx, stateID, now)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				"UPDATE kobo_reading_state SET current_bookmark = ? WHERE id = ?",
				bookmarkID, stateID,
			); err != nil {
				return fmt.Errorf("failed to link default bookmark: %w", err)
			}
			report.BookmarksCreated++
		}
		if report.BookmarksCreated > 0 {
			fmt.Printf(" -> Created %d default bookmarks\n", report.BookmarksCreated)
		}

		// Backfill: states that have bookmarks but a NULL pointer get
		// pointed at their newest bookmark.
		res, err := tx.Exec(
			`UPDATE kobo_reading_state SET current_bookmark =
			 (SELECT MAX(id) FROM kobo_bookmark WHERE kobo_reading_state_id = kobo_reading_state.id)
			 WHERE current_bookmark IS NULL
			   AND EXISTS (SELECT 1 FROM kobo_bookmark WHERE kobo_reading_state_id = kobo_reading_state.id)`)
		if err != nil {
			return fmt.Errorf("failed to backfill bookmark pointers: %w", err)
		}
		backfilled, _ := res.RowsAffected()
		report.PointersBackfilled = int(backfilled)
		if report.PointersBackfilled > 0 {
			fmt.Printf(" -> Backfilled %d bookmark pointers\n", report.PointersBackfilled)
		}
		return nil
	})
}

// reconcileAcknowledgments aligns kobo_synced_books with sync-shelf
// membership: acknowledgments with no matching membership are stale
// and removed, memberships with no acknowledgment get one.
func (s *Sweeper) reconcileAcknowledgments(report *RepairReport) error {
	return database.WithTx(s.app.DB, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`DELETE FROM kobo_synced_books WHERE NOT EXISTS
			 (SELECT 1 FROM book_shelf_link bsl
			  JOIN shelf s ON bsl.shelf = s.id
			  WHERE s.kobo_sync = 1
			    AND bsl.book_id = kobo_synced_books.book_id
			    AND s.user_id = kobo_synced_books.user_id)`)
		if err != nil {
			return fmt.Errorf("failed to remove stale acknowledgments: %w", err)
		}
		n, _ := res.RowsAffected()
		report.AcksRemoved = int(n)
		if n > 0 {
			fmt.Printf(" -> Removed %d stale sync acknowledgments\n", n)
		}

		res, err = tx.Exec(
			`INSERT INTO kobo_synced_books (user_id, book_id)
			 SELECT DISTINCT s.user_id, bsl.book_id
			 FROM book_shelf_link bsl
			 JOIN shelf s ON bsl.shelf = s.id
			 WHERE s.kobo_sync = 1
			   AND NOT EXISTS (SELECT 1 FROM kobo_synced_books k
			                   WHERE k.user_id = s.user_id AND k.book_id = bsl.book_id)`)
		if err != nil {
			return fmt.Errorf("failed to recreate acknowledgments: %w", err)
		}
		n, _ = res.RowsAffected()
		report.AcksAdded = int(n)
		if n > 0 {
			fmt.Printf(" -> Recreated %d sync acknowledgments\n", n)
		}
		return nil
	})
}

// touchSyncShelves resets last_modified on sync-enabled shelves, but
// only when this sweep actually fixed something, so an external sync
// re-evaluates and a clean re-run stays a no-op.
func (s *Sweeper) touchSyncShelves(report RepairReport) error {
	if report.Total() == 0 {
		return nil
	}
	now := clock.Format(s.clock.Now())
	if _, err := s.app.Exec("UPDATE shelf SET last_modified = ? WHERE kobo_sync = 1", now); err != nil {
		return fmt.Errorf("failed to reset sync shelf timestamps: %w", err)
	}
	return nil
}
