// file: internal/database/schema.go
// version: 1.0.0
// guid: 6f8a0b2c-4d6e-4f8a-0b2c-4d6e8f0a2b4c

package database

// Neither schema declares FOREIGN KEY constraints: referential
// integrity between books, link tables, and companion rows is owned
// explicitly by the upsert engine, the cascade deletion engine, and
// the consistency sweep, so the behavior does not depend on any
// storage-engine cascade dialect.

const catalogSchema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT 'Unknown',
	sort TEXT,
	timestamp TEXT,
	pubdate TEXT,
	series_index REAL NOT NULL DEFAULT 1.0,
	author_sort TEXT,
	path TEXT NOT NULL DEFAULT '',
	has_cover BOOL DEFAULT 0,
	last_modified TEXT,
	uuid TEXT
);

CREATE INDEX IF NOT EXISTS idx_books_title_author ON books(title, author_sort);

CREATE TABLE IF NOT EXISTS authors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	sort TEXT
);

CREATE TABLE IF NOT EXISTS publishers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	sort TEXT
);

CREATE TABLE IF NOT EXISTS series (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	sort TEXT
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS ratings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rating INTEGER
);

CREATE TABLE IF NOT EXISTS languages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	lang_code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS books_authors_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	author INTEGER NOT NULL,
	UNIQUE(book, author)
);

CREATE TABLE IF NOT EXISTS books_publishers_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	publisher INTEGER NOT NULL,
	UNIQUE(book)
);

CREATE TABLE IF NOT EXISTS books_series_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	series INTEGER NOT NULL,
	UNIQUE(book)
);

CREATE TABLE IF NOT EXISTS books_tags_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	tag INTEGER NOT NULL,
	UNIQUE(book, tag)
);

CREATE TABLE IF NOT EXISTS books_ratings_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	rating INTEGER NOT NULL,
	UNIQUE(book)
);

CREATE TABLE IF NOT EXISTS books_languages_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	lang_code INTEGER NOT NULL,
	item_order INTEGER NOT NULL DEFAULT 0,
	UNIQUE(book, lang_code)
);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	text TEXT NOT NULL,
	UNIQUE(book)
);

CREATE TABLE IF NOT EXISTS identifiers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT 'isbn',
	val TEXT NOT NULL,
	UNIQUE(book, type)
);

CREATE TABLE IF NOT EXISTS data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL,
	format TEXT NOT NULL,
	uncompressed_size INTEGER NOT NULL,
	name TEXT NOT NULL,
	UNIQUE(book, format)
);

CREATE TABLE IF NOT EXISTS metadata_dirtied (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations_dirtied (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book INTEGER NOT NULL
);
`

const appSchema = `
CREATE TABLE IF NOT EXISTS user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kobo_only_shelves_sync INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO user (id, name) VALUES (1, 'admin');

CREATE TABLE IF NOT EXISTS shelf (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT,
	name TEXT,
	is_public INTEGER NOT NULL DEFAULT 0,
	user_id INTEGER NOT NULL,
	kobo_sync INTEGER NOT NULL DEFAULT 0,
	created TEXT,
	last_modified TEXT,
	UNIQUE(name, user_id)
);

CREATE TABLE IF NOT EXISTS book_shelf_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL,
	"order" INTEGER NOT NULL DEFAULT 1,
	shelf INTEGER NOT NULL,
	date_added TEXT
);

CREATE TABLE IF NOT EXISTS kobo_synced_books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	book_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kobo_reading_state (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	book_id INTEGER NOT NULL,
	last_modified TEXT,
	priority_timestamp TEXT,
	current_bookmark INTEGER
);

CREATE TABLE IF NOT EXISTS kobo_bookmark (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kobo_reading_state_id INTEGER NOT NULL,
	last_modified TEXT,
	location_source TEXT,
	location_type TEXT,
	location_value TEXT,
	progress_percent REAL,
	content_source_progress_percent REAL
);

CREATE TABLE IF NOT EXISTS kobo_statistics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kobo_reading_state_id INTEGER NOT NULL,
	last_modified TEXT,
	remaining_time_minutes INTEGER,
	spent_reading_minutes INTEGER
);

CREATE TABLE IF NOT EXISTS archived_book (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	book_id INTEGER NOT NULL,
	is_archived INTEGER NOT NULL DEFAULT 0,
	last_modified TEXT
);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS book_read_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	read_status INTEGER NOT NULL DEFAULT 0
);
`
