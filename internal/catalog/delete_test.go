// file: internal/catalog/delete_test.go
// version: 1.0.0
// guid: 2f4a6b8c-0d2e-4f4a-6b8c-0d2e4f6a8b0c

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/testutil"
)

func seedCompanionRows(t *testing.T, env *testutil.Env, bookID, userID int64) int64 {
	t.Helper()

	res, err := env.App.Exec(
		`INSERT INTO shelf (name, user_id, uuid, is_public, kobo_sync, created, last_modified)
		 VALUES ('Favorites', ?, 'uuid-1', 0, 0, '2024-01-01 00:00:00.000000', '2024-01-01 00:00:00.000000')`,
		userID)
	require.NoError(t, err)
	shelfID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = env.App.Exec(
		`INSERT INTO book_shelf_link (book_id, "order", shelf, date_added)
		 VALUES (?, 1, ?, '2024-01-01 00:00:00.000000')`, bookID, shelfID)
	require.NoError(t, err)

	res, err = env.App.Exec(
		`INSERT INTO kobo_reading_state (user_id, book_id, last_modified, priority_timestamp)
		 VALUES (?, ?, '2024-01-01 00:00:00.000000', '2024-01-01 00:00:00.000000')`,
		userID, bookID)
	require.NoError(t, err)
	stateID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = env.App.Exec(
		"INSERT INTO kobo_bookmark (kobo_reading_state_id, last_modified) VALUES (?, '2024-01-01 00:00:00.000000')",
		stateID)
	require.NoError(t, err)
	_, err = env.App.Exec(
		"INSERT INTO kobo_statistics (kobo_reading_state_id, last_modified) VALUES (?, '2024-01-01 00:00:00.000000')",
		stateID)
	require.NoError(t, err)
	_, err = env.App.Exec(
		"INSERT INTO kobo_synced_books (user_id, book_id) VALUES (?, ?)", userID, bookID)
	require.NoError(t, err)
	_, err = env.App.Exec(
		"INSERT INTO downloads (book_id, user_id) VALUES (?, ?)", bookID, userID)
	require.NoError(t, err)

	return shelfID
}

func TestDeleteCascadesCatalogRows(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	result, err := engine.Upsert(meta)
	require.NoError(t, err)

	deleter := NewDeleter(env.Catalog, nil, env.LibraryDir)
	require.NoError(t, deleter.Delete(result.BookID))

	for _, table := range []string{
		"books", "books_authors_link", "books_publishers_link",
		"books_series_link", "books_languages_link", "comments",
		"identifiers", "data",
	} {
		assert.Equal(t, 0, testutil.CountRows(t, env.Catalog.DB, table), table)
	}
	// Entity rows survive; the orphan sweep prunes them.
	assert.Equal(t, 1, testutil.CountRows(t, env.Catalog.DB, "authors"))
}

func TestDeleteRemovesCompanionRows(t *testing.T) {
	env := testutil.Setup(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	result, err := engine.Upsert(meta)
	require.NoError(t, err)

	userID := env.CreateUser(t, "alice")
	seedCompanionRows(t, env, result.BookID, userID)

	deleter := NewDeleter(env.Catalog, env.App, env.LibraryDir)
	require.NoError(t, deleter.Delete(result.BookID))

	for _, table := range []string{
		"book_shelf_link", "kobo_reading_state", "kobo_bookmark",
		"kobo_statistics", "kobo_synced_books", "downloads",
	} {
		assert.Equal(t, 0, testutil.CountRows(t, env.App.DB, table), table)
	}
	assert.Equal(t, 0, testutil.CountRows(t, env.App.DB, "shelf"),
		"shelf left empty by the deletion goes with it")
}

func TestDeleteKeepsShelfWithOtherBooks(t *testing.T) {
	env := testutil.Setup(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)

	first, err := engine.Upsert(fullMetadata(t, env.TempDir))
	require.NoError(t, err)
	src := writeSourceFile(t, env.TempDir, "other.epub", []byte("other"))
	second, err := engine.Upsert(models.BookMetadata{
		Title: "The Lathe of Heaven", Author: "Ursula K. Le Guin", SourcePath: src,
	})
	require.NoError(t, err)

	userID := env.CreateUser(t, "alice")
	shelfID := seedCompanionRows(t, env, first.BookID, userID)
	_, err = env.App.Exec(
		`INSERT INTO book_shelf_link (book_id, "order", shelf, date_added)
		 VALUES (?, 2, ?, '2024-01-01 00:00:00.000000')`, second.BookID, shelfID)
	require.NoError(t, err)

	deleter := NewDeleter(env.Catalog, env.App, env.LibraryDir)
	require.NoError(t, deleter.Delete(first.BookID))

	assert.Equal(t, 1, testutil.CountRows(t, env.App.DB, "shelf"))
	assert.Equal(t, 1, testutil.CountRows(t, env.App.DB, "book_shelf_link"))
}

func TestDeleteRemovesFiles(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	result, err := engine.Upsert(meta)
	require.NoError(t, err)

	env.WriteBookDir(t, result.BookPath, "The Dispossessed - Ursula K. Le Guin.epub", []byte("epub-bytes"))
	env.WriteBookDir(t, result.BookPath, "cover.jpg", []byte("jpeg"))

	deleter := NewDeleter(env.Catalog, nil, env.LibraryDir)
	require.NoError(t, deleter.Delete(result.BookID))

	bookDir := filepath.Join(env.LibraryDir, result.BookPath)
	_, err = os.Stat(bookDir)
	assert.True(t, os.IsNotExist(err), "book directory should be gone")
	_, err = os.Stat(filepath.Dir(bookDir))
	assert.True(t, os.IsNotExist(err), "empty author directory should be gone")
}

func TestDeleteMissingBookStillCleansCompanion(t *testing.T) {
	env := testutil.Setup(t)
	userID := env.CreateUser(t, "alice")
	seedCompanionRows(t, env, 99, userID)

	deleter := NewDeleter(env.Catalog, env.App, env.LibraryDir)
	require.NoError(t, deleter.Delete(99))

	assert.Equal(t, 0, testutil.CountRows(t, env.App.DB, "book_shelf_link"))
	assert.Equal(t, 0, testutil.CountRows(t, env.App.DB, "kobo_reading_state"))
}
