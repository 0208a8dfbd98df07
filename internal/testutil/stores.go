// file: internal/testutil/stores.go
// version: 1.0.0
// guid: 8b0c2d4e-6f8a-4b0c-2d4e-6f8a0b2c4d6e

package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebooktools/calibre-manager/internal/database"
)

// Env holds the stores and directories a reconciliation test needs:
// a real temp catalog database, a real temp companion database, and a
// library directory tree.
type Env struct {
	Catalog    *database.CatalogDB
	App        *database.AppDB
	LibraryDir string
	TempDir    string
}

// Setup creates temp catalog and companion stores plus a library
// directory. Everything is cleaned up with the test's temp dir.
func Setup(t *testing.T) *Env {
	t.Helper()

	tmp := t.TempDir()
	libraryDir := filepath.Join(tmp, "library")
	require.NoError(t, os.MkdirAll(libraryDir, 0755))

	catalog, err := database.OpenCatalog(filepath.Join(libraryDir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	app, err := database.InitApp(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	return &Env{
		Catalog:    catalog,
		App:        app,
		LibraryDir: libraryDir,
		TempDir:    tmp,
	}
}

// SetupCatalogOnly creates a temp catalog store without a companion
// store, for tests exercising the absent-capability path.
func SetupCatalogOnly(t *testing.T) *Env {
	t.Helper()

	tmp := t.TempDir()
	libraryDir := filepath.Join(tmp, "library")
	require.NoError(t, os.MkdirAll(libraryDir, 0755))

	catalog, err := database.OpenCatalog(filepath.Join(libraryDir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	return &Env{
		Catalog:    catalog,
		LibraryDir: libraryDir,
		TempDir:    tmp,
	}
}

// CreateUser inserts a companion-store user and returns its id.
func (e *Env) CreateUser(t *testing.T, name string) int64 {
	t.Helper()
	res, err := e.App.Exec("INSERT INTO user (name) VALUES (?)", name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// WriteBookDir materializes a book directory with a dummy book file
// under the library tree, mirroring what the placement driver writes.
func (e *Env) WriteBookDir(t *testing.T, bookPath, fileName string, content []byte) string {
	t.Helper()
	dir := filepath.Join(e.LibraryDir, bookPath)
	require.NoError(t, os.MkdirAll(dir, 0755))
	full := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(full, content, 0644))
	return full
}

// CountRows returns the number of rows in a table of the given store.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}
