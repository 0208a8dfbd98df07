// file: internal/operations/import.go
// version: 1.0.0
// guid: 5a7b9c1d-3e5f-4a7b-9c1d-3e5f7a9b1c3d

// Package operations orchestrates the import flows: metadata
// extraction, catalog upsert, shelf assignment, and file placement,
// for one file or a directory batch.
package operations

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/ebooktools/calibre-manager/internal/catalog"
	"github.com/ebooktools/calibre-manager/internal/epub"
	"github.com/ebooktools/calibre-manager/internal/fileops"
	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/shelves"
)

// Importer wires the import collaborators together.
type Importer struct {
	engine     *catalog.Engine
	shelves    *shelves.Manager
	libraryDir string
}

// NewImporter returns an importer. The shelf manager may sit on an
// absent companion store; shelf assignment then fails with a clear
// error only when actually requested.
func NewImporter(engine *catalog.Engine, shelfManager *shelves.Manager, libraryDir string) *Importer {
	return &Importer{engine: engine, shelves: shelfManager, libraryDir: libraryDir}
}

// ImportFile ingests one book file: extract metadata, upsert the
// catalog, optionally add to a shelf, then place files unless the
// upsert proved the placed file identical. Database commits happen
// before file placement; a crash in between is healed by the orphan
// sweep.
func (i *Importer) ImportFile(file, shelfName, username string) (models.UpsertResult, error) {
	meta, err := epub.ReadMetadata(file)
	if err != nil {
		return models.UpsertResult{}, err
	}

	fmt.Printf("Importing %q by %s...\n", meta.Title, meta.Author)
	result, err := i.engine.Upsert(meta)
	if err != nil {
		return models.UpsertResult{}, err
	}

	if shelfName != "" {
		if _, err := i.shelves.AddBookToShelf(result.BookID, shelfName, username); err != nil {
			return models.UpsertResult{}, err
		}
	}

	if result.ReplaceFiles {
		coverSaved, err := i.placeFiles(file, result.BookPath, meta)
		if err != nil {
			return models.UpsertResult{}, err
		}
		if err := i.engine.SetHasCover(result.BookID, coverSaved); err != nil {
			return models.UpsertResult{}, err
		}
	}

	fmt.Printf(" -> Book %d %s.\n", result.BookID, result.Outcome)
	return result, nil
}

// placeFiles copies the book into the library and writes a cover: the
// one embedded in the EPUB when present, otherwise a cover.jpg sitting
// next to the source file.
func (i *Importer) placeFiles(file, bookPath string, meta models.BookMetadata) (bool, error) {
	coverData, err := epub.ExtractCover(file)
	if err != nil {
		fmt.Printf("Warning: could not extract cover from %s: %v\n", file, err)
	}
	if len(coverData) == 0 {
		sibling := filepath.Join(filepath.Dir(file), "cover.jpg")
		if data, err := os.ReadFile(sibling); err == nil {
			coverData = data
		}
	}
	return fileops.PlaceBookFiles(i.libraryDir, file, bookPath, meta.Title, meta.Author, coverData)
}

// ImportDirectory walks dir for book files and imports each one,
// catching per-file failures and continuing. Returns the batch tally.
func (i *Importer) ImportDirectory(dir, shelfName, username string) (models.ImportSummary, error) {
	var summary models.ImportSummary

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && fileops.IsSupportedBookFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	if len(files) == 0 {
		fmt.Printf("No book files found under %s.\n", dir)
		return summary, nil
	}

	fmt.Printf("Importing %d book files from %s...\n", len(files), dir)
	bar := progressbar.Default(int64(len(files)))

	for _, file := range files {
		result, err := i.ImportFile(file, shelfName, username)
		if err != nil {
			fmt.Printf("Error importing %s: %v\n", file, err)
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", file, err))
			bar.Add(1)
			continue
		}
		switch result.Outcome {
		case models.OutcomeCreated:
			summary.Created++
		case models.OutcomeUpdated:
			summary.Updated++
		default:
			summary.Unchanged++
		}
		bar.Add(1)
	}

	fmt.Printf("\nImport complete: %d created, %d updated, %d unchanged, %d failed.\n",
		summary.Created, summary.Updated, summary.Unchanged, summary.Failed)
	return summary, nil
}
