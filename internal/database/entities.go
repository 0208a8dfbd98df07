// file: internal/database/entities.go
// version: 1.0.0
// guid: 7a9b1c3d-5e7f-4a9b-1c3d-5e7f9a1b3c5d

package database

import (
	"database/sql"
	"fmt"
)

// EntityKind enumerates the normalized entity tables. The descriptor
// registry below is the only place table and column identifiers for
// these entities are spelled out; no caller-supplied string ever
// reaches the SQL layer.
type EntityKind int

const (
	EntityAuthor EntityKind = iota
	EntityPublisher
	EntitySeries
	EntityTag
	EntityLanguage
)

func (k EntityKind) String() string {
	if d, ok := entityDescriptors[k]; ok {
		return d.table
	}
	return "unknown"
}

type entityDescriptor struct {
	table      string
	keyColumn  string
	sortColumn string // empty when the table has no sort companion
}

var entityDescriptors = map[EntityKind]entityDescriptor{
	EntityAuthor:    {table: "authors", keyColumn: "name", sortColumn: "sort"},
	EntityPublisher: {table: "publishers", keyColumn: "name", sortColumn: "sort"},
	EntitySeries:    {table: "series", keyColumn: "name", sortColumn: "sort"},
	EntityTag:       {table: "tags", keyColumn: "name"},
	EntityLanguage:  {table: "languages", keyColumn: "lang_code"},
}

// ResolveEntity implements find-or-create for a normalized entity row.
// An existing row is returned untouched; its sort column is never
// rewritten. It must run inside the caller's transaction so that a
// created entity and the book referencing it commit as one unit.
func ResolveEntity(tx *sql.Tx, kind EntityKind, value, sortValue string) (int64, error) {
	desc, ok := entityDescriptors[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind %d", kind)
	}

	var id int64
	findQuery := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", desc.table, desc.keyColumn)
	err := tx.QueryRow(findQuery, value).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("failed to look up %s %q: %w", desc.table, value, err)
	}

	var res sql.Result
	if desc.sortColumn != "" {
		insertQuery := fmt.Sprintf(
			"INSERT INTO %s (%s, %s) VALUES (?, ?)",
			desc.table, desc.keyColumn, desc.sortColumn,
		)
		res, err = tx.Exec(insertQuery, value, sortValue)
	} else {
		insertQuery := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?)",
			desc.table, desc.keyColumn,
		)
		res, err = tx.Exec(insertQuery, value)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create %s %q: %w", desc.table, value, err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new %s id: %w", desc.table, err)
	}
	return id, nil
}
