// file: internal/models/book.go
// version: 1.0.0
// guid: 4d6e8f0a-2b4c-4d6e-8f0a-2b4c6d8e0f1a

package models

import "time"

// BookMetadata is the record produced by the metadata extractor for an
// incoming book file. Title and Author are mandatory; everything else
// is optional.
type BookMetadata struct {
	Title       string
	Author      string
	SourcePath  string
	Description *string
	Language    *string
	ISBN        *string
	Rights      *string
	Subtitle    *string
	Series      *string
	SeriesIndex *float64
	Publisher   *string
	PubDate     *time.Time
	FileSize    int64
}

// BookSnapshot holds the comparable fields of an existing catalog row,
// read once before an update decision.
type BookSnapshot struct {
	ID          int64
	Path        string
	PubDate     *time.Time
	SeriesIndex float64
	Publisher   *string
	Series      *string
}

// FieldChanges is the comparator's output: one independent flag per
// comparable field. A clear flag is a hard skip of that column's write.
type FieldChanges struct {
	PubDate     bool
	SeriesIndex bool
	Publisher   bool
	Series      bool
}

// Any reports whether at least one field differs.
func (c FieldChanges) Any() bool {
	return c.PubDate || c.SeriesIndex || c.Publisher || c.Series
}

// UpsertOutcome describes what the upsert engine decided to do.
type UpsertOutcome int

const (
	// OutcomeCreated means a new catalog row was inserted.
	OutcomeCreated UpsertOutcome = iota
	// OutcomeUpdated means an existing row had at least one field rewritten.
	OutcomeUpdated
	// OutcomeNoChange means no database write beyond the transaction itself.
	OutcomeNoChange
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// UpsertResult is returned by the catalog upsert engine. The engine
// itself never touches the filesystem; ReplaceFiles tells the caller
// whether the file placement driver should run. It is false only when
// a byte-identical existing file was proven by hash.
type UpsertResult struct {
	Outcome      UpsertOutcome
	BookID       int64
	BookPath     string
	ReplaceFiles bool
}

// Shelf is a named collection in the companion store, scoped to one
// owner.
type Shelf struct {
	ID           int64
	Name         string
	UserID       int64
	UUID         string
	IsPublic     bool
	KoboSync     bool
	Created      string
	LastModified string
}

// ShelfEntry pairs a shelf with its owner's display name for listings.
type ShelfEntry struct {
	Shelf
	Username  string
	BookCount int64
}

// BookListing is a denormalized catalog row for the list and inspect
// commands.
type BookListing struct {
	ID          int64
	Title       string
	Sort        string
	AuthorSort  string
	Authors     []string
	Series      []string
	SeriesIndex float64
	Tags        []string
	Publishers  []string
	PubDate     string
	Timestamp   string
	LastMod     string
	UUID        string
	Path        string
	HasCover    bool
	Language    string
	Identifiers map[string]string
	Shelves     []ShelfRef
}

// ShelfRef names a shelf and its owner on a book listing.
type ShelfRef struct {
	Name     string
	Username string
}

// ImportSummary tallies a directory import.
type ImportSummary struct {
	Created   int
	Updated   int
	Unchanged int
	Failed    int
	Errors    []error
}

// Total returns the number of files attempted.
func (s ImportSummary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Failed
}
