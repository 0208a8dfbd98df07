// file: internal/catalog/upsert_test.go
// version: 1.0.0
// guid: 1e3f5a7b-9c1d-4e3f-5a7b-9c1d3e5f7a9b

package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/testutil"
)

func strPtr(s string) *string        { return &s }
func floatPtr(f float64) *float64    { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func writeSourceFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func fullMetadata(t *testing.T, dir string) models.BookMetadata {
	t.Helper()
	src := writeSourceFile(t, dir, "dispossessed.epub", []byte("epub-bytes"))
	return models.BookMetadata{
		Title:       "The Dispossessed",
		Author:      "Ursula K. Le Guin",
		SourcePath:  src,
		Description: strPtr("An ambiguous utopia."),
		Language:    strPtr("eng"),
		ISBN:        strPtr("9780061054884"),
		Subtitle:    strPtr("An Ambiguous Utopia"),
		Series:      strPtr("Hainish Cycle"),
		SeriesIndex: floatPtr(6),
		Publisher:   strPtr("Harper & Row"),
		PubDate:     timePtr(time.Date(1974, time.May, 1, 0, 0, 0, 0, time.UTC)),
		FileSize:    9,
	}
}

func TestUpsertCreatesFullRecord(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	result, err := engine.Upsert(meta)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, result.Outcome)
	assert.True(t, result.ReplaceFiles)
	assert.Equal(t, "Ursula K. Le Guin/The Dispossessed (1)", result.BookPath)

	var sort, authorSort, path, uuid string
	err = env.Catalog.QueryRow(
		"SELECT sort, author_sort, path, uuid FROM books WHERE id = ?", result.BookID,
	).Scan(&sort, &authorSort, &path, &uuid)
	require.NoError(t, err)
	assert.Equal(t, "Dispossessed, The", sort)
	assert.Equal(t, "Guin, Ursula K. Le", authorSort)
	assert.Equal(t, result.BookPath, path)
	assert.NotEmpty(t, uuid)

	var format string
	var size int64
	err = env.Catalog.QueryRow(
		"SELECT format, uncompressed_size FROM data WHERE book = ?", result.BookID,
	).Scan(&format, &size)
	require.NoError(t, err)
	assert.Equal(t, "EPUB", format)
	assert.Equal(t, int64(9), size)

	var comment string
	err = env.Catalog.QueryRow(
		"SELECT text FROM comments WHERE book = ?", result.BookID,
	).Scan(&comment)
	require.NoError(t, err)
	assert.Contains(t, comment, "<h3>An Ambiguous Utopia</h3>")
	assert.Contains(t, comment, "An ambiguous utopia.")

	var isbn string
	err = env.Catalog.QueryRow(
		"SELECT val FROM identifiers WHERE book = ? AND type = 'ISBN'", result.BookID,
	).Scan(&isbn)
	require.NoError(t, err)
	assert.Equal(t, "9780061054884", isbn)

	var publisher string
	err = env.Catalog.QueryRow(
		`SELECT p.name FROM publishers p
		 JOIN books_publishers_link bpl ON p.id = bpl.publisher
		 WHERE bpl.book = ?`, result.BookID,
	).Scan(&publisher)
	require.NoError(t, err)
	assert.Equal(t, "Harper & Row", publisher)

	var series string
	err = env.Catalog.QueryRow(
		`SELECT s.name FROM series s
		 JOIN books_series_link bsl ON s.id = bsl.series
		 WHERE bsl.book = ?`, result.BookID,
	).Scan(&series)
	require.NoError(t, err)
	assert.Equal(t, "Hainish Cycle", series)

	var lang string
	err = env.Catalog.QueryRow(
		`SELECT l.lang_code FROM languages l
		 JOIN books_languages_link bll ON l.id = bll.lang_code
		 WHERE bll.book = ?`, result.BookID,
	).Scan(&lang)
	require.NoError(t, err)
	assert.Equal(t, "eng", lang)
}

func TestUpsertKepubFormat(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)

	src := writeSourceFile(t, env.TempDir, "book.kepub.epub", []byte("kepub-bytes"))
	result, err := engine.Upsert(models.BookMetadata{
		Title:      "Rocannon's World",
		Author:     "Ursula K. Le Guin",
		SourcePath: src,
		FileSize:   11,
	})
	require.NoError(t, err)

	var format string
	err = env.Catalog.QueryRow(
		"SELECT format FROM data WHERE book = ?", result.BookID,
	).Scan(&format)
	require.NoError(t, err)
	assert.Equal(t, "KEPUB", format)
}

func TestUpsertRejectsUnknownExtension(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)

	src := writeSourceFile(t, env.TempDir, "book.mobi", []byte("mobi"))
	_, err := engine.Upsert(models.BookMetadata{
		Title:      "City of Illusions",
		Author:     "Ursula K. Le Guin",
		SourcePath: src,
	})
	require.Error(t, err)

	assert.Equal(t, 0, testutil.CountRows(t, env.Catalog.DB, "books"))
}

func TestUpsertIdenticalFileIsNoOp(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	created, err := engine.Upsert(meta)
	require.NoError(t, err)

	// Mirror what file placement would have written.
	content, err := os.ReadFile(meta.SourcePath)
	require.NoError(t, err)
	env.WriteBookDir(t, created.BookPath, "The Dispossessed - Ursula K. Le Guin.epub", content)

	again, err := engine.Upsert(meta)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoChange, again.Outcome)
	assert.Equal(t, created.BookID, again.BookID)
	assert.False(t, again.ReplaceFiles)
	assert.Equal(t, 1, testutil.CountRows(t, env.Catalog.DB, "books"))
}

func TestUpsertUnchangedMetadataSkipsWrite(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	mock := clock.NewMock()
	engine := NewEngine(env.Catalog, mock, env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	created, err := engine.Upsert(meta)
	require.NoError(t, err)

	var lastModBefore string
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT last_modified FROM books WHERE id = ?", created.BookID,
	).Scan(&lastModBefore))

	// No placed file exists, so the hash fast path cannot prove
	// identity; the comparator still finds nothing to write.
	mock.SetNow(mock.Now().Add(time.Hour))
	again, err := engine.Upsert(meta)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoChange, again.Outcome)
	assert.Equal(t, created.BookID, again.BookID)
	assert.True(t, again.ReplaceFiles)

	var lastModAfter string
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT last_modified FROM books WHERE id = ?", created.BookID,
	).Scan(&lastModAfter))
	assert.Equal(t, lastModBefore, lastModAfter)
}

func TestUpsertUpdatesChangedFields(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	mock := clock.NewMock()
	engine := NewEngine(env.Catalog, mock, env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	created, err := engine.Upsert(meta)
	require.NoError(t, err)

	var pathBefore, timestampBefore string
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT path, timestamp FROM books WHERE id = ?", created.BookID,
	).Scan(&pathBefore, &timestampBefore))

	mock.SetNow(mock.Now().Add(time.Hour))
	changed := meta
	changed.Publisher = strPtr("Avon Books")
	changed.SeriesIndex = floatPtr(7)

	updated, err := engine.Upsert(changed)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, updated.Outcome)
	assert.Equal(t, created.BookID, updated.BookID)
	assert.True(t, updated.ReplaceFiles)

	var pathAfter, timestampAfter string
	var seriesIndex float64
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT path, timestamp, series_index FROM books WHERE id = ?", created.BookID,
	).Scan(&pathAfter, &timestampAfter, &seriesIndex))
	assert.Equal(t, pathBefore, pathAfter, "path is assigned once and never regenerated")
	assert.Equal(t, timestampBefore, timestampAfter, "creation timestamp survives updates")
	assert.Equal(t, 7.0, seriesIndex)

	var publisher string
	require.NoError(t, env.Catalog.QueryRow(
		`SELECT p.name FROM publishers p
		 JOIN books_publishers_link bpl ON p.id = bpl.publisher
		 WHERE bpl.book = ?`, created.BookID,
	).Scan(&publisher))
	assert.Equal(t, "Avon Books", publisher)

	var linkCount int
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT COUNT(*) FROM books_publishers_link WHERE book = ?", created.BookID,
	).Scan(&linkCount))
	assert.Equal(t, 1, linkCount, "changed links are replaced, not accumulated")
}

func TestUpsertClearedSeriesRemovesLink(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	created, err := engine.Upsert(meta)
	require.NoError(t, err)

	changed := meta
	changed.Series = nil
	changed.SeriesIndex = nil

	updated, err := engine.Upsert(changed)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, updated.Outcome)

	var linkCount int
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT COUNT(*) FROM books_series_link WHERE book = ?", created.BookID,
	).Scan(&linkCount))
	assert.Equal(t, 0, linkCount)
}

func TestUpsertReusesExistingEntities(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)

	first := writeSourceFile(t, env.TempDir, "first.epub", []byte("a"))
	second := writeSourceFile(t, env.TempDir, "second.epub", []byte("b"))

	_, err := engine.Upsert(models.BookMetadata{
		Title: "Planet of Exile", Author: "Ursula K. Le Guin", SourcePath: first,
	})
	require.NoError(t, err)
	_, err = engine.Upsert(models.BookMetadata{
		Title: "The Word for World Is Forest", Author: "Ursula K. Le Guin", SourcePath: second,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CountRows(t, env.Catalog.DB, "books"))
	assert.Equal(t, 1, testutil.CountRows(t, env.Catalog.DB, "authors"))
}

func TestSetHasCover(t *testing.T) {
	env := testutil.SetupCatalogOnly(t)
	engine := NewEngine(env.Catalog, clock.NewMock(), env.LibraryDir)
	meta := fullMetadata(t, env.TempDir)

	result, err := engine.Upsert(meta)
	require.NoError(t, err)

	require.NoError(t, engine.SetHasCover(result.BookID, true))
	var hasCover int
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT has_cover FROM books WHERE id = ?", result.BookID,
	).Scan(&hasCover))
	assert.Equal(t, 1, hasCover)

	require.NoError(t, engine.SetHasCover(result.BookID, false))
	require.NoError(t, env.Catalog.QueryRow(
		"SELECT has_cover FROM books WHERE id = ?", result.BookID,
	).Scan(&hasCover))
	assert.Equal(t, 0, hasCover)
}

func TestCompare(t *testing.T) {
	base := models.BookSnapshot{
		SeriesIndex: 1,
		Publisher:   strPtr("Ace"),
		Series:      strPtr("Hainish Cycle"),
	}

	same := Compare(base, models.BookMetadata{
		Publisher: strPtr("Ace"),
		Series:    strPtr("Hainish Cycle"),
	})
	assert.False(t, same.Any())

	diff := Compare(base, models.BookMetadata{
		Publisher:   strPtr("Tor"),
		Series:      strPtr("Hainish Cycle"),
		SeriesIndex: floatPtr(2),
	})
	assert.True(t, diff.Publisher)
	assert.True(t, diff.SeriesIndex)
	assert.False(t, diff.Series)
	assert.False(t, diff.PubDate)
}

func TestCompareSeriesIndexEpsilon(t *testing.T) {
	base := models.BookSnapshot{SeriesIndex: 1.5}
	changes := Compare(base, models.BookMetadata{SeriesIndex: floatPtr(1.5 + 1e-12)})
	assert.False(t, changes.SeriesIndex)
}
