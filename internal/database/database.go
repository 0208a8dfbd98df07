// file: internal/database/database.go
// version: 1.0.0
// guid: 5e7f9a1b-3c5d-4e7f-9a1b-3c5d7e9f1a2b

package database

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/ebooktools/calibre-manager/internal/normalize"
)

const driverName = "sqlite3_calibre"

func init() {
	// The catalog schema carries triggers written by Calibre that call
	// two custom SQL functions. Registering them on every connection
	// keeps those triggers working when we insert through them.
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("title_sort", normalize.TitleSort, true); err != nil {
				return err
			}
			return conn.RegisterFunc("uuid4", func() string {
				return uuid.NewString()
			}, false)
		},
	})
}

// CatalogDB is the primary bibliographic store (metadata.db).
type CatalogDB struct {
	*sql.DB
}

// AppDB is the optional companion store (app.db) holding shelves,
// membership, and device-sync bookkeeping. A nil *AppDB means the
// companion capability is absent; callers must check Available.
type AppDB struct {
	*sql.DB
}

// Available reports whether the companion store was configured.
func (a *AppDB) Available() bool {
	return a != nil && a.DB != nil
}

func open(path string, mustExist bool) (*sql.DB, error) {
	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("database file does not exist: %s", path)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", path, err)
	}

	// The tool is the sole writer; the busy timeout only guards
	// against concurrent readers holding the file briefly.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// OpenCatalog opens (or initializes) the catalog store and ensures its
// schema exists.
func OpenCatalog(path string) (*CatalogDB, error) {
	db, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure catalog schema: %w", err)
	}
	return &CatalogDB{DB: db}, nil
}

// OpenApp opens the companion store at path. An empty path returns a
// nil store, modeling the absent capability. Unlike the catalog, an
// explicitly configured companion database must already exist.
func OpenApp(path string) (*AppDB, error) {
	if path == "" {
		return nil, nil
	}
	db, err := open(path, true)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(appSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure companion schema: %w", err)
	}
	return &AppDB{DB: db}, nil
}

// InitApp initializes a companion store even when the file does not
// exist yet. First-run setups and test fixtures use it.
func InitApp(path string) (*AppDB, error) {
	db, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(appSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure companion schema: %w", err)
	}
	return &AppDB{DB: db}, nil
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error. Every unit of reconciliation work is
// scoped to exactly one of these.
func WithTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
