// file: internal/fileops/format.go
// version: 1.0.0
// guid: 2f4a6b8c-0d2e-4f4a-6b8c-0d2e4f6a8b0c

package fileops

import (
	"fmt"
	"strings"
)

// BookFormat identifies a supported book file format.
type BookFormat struct {
	// Name is the catalog format label (EPUB or KEPUB).
	Name string
	// Extension is the extension the placed file carries.
	Extension string
}

// DetectFormat maps a source file name to its catalog format. Kobo
// variants (.kepub and the double-barreled .kepub.epub) are KEPUB and
// are placed with a bare .kepub extension. Anything else is a hard
// error for that book.
func DetectFormat(path string) (BookFormat, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".kepub.epub"), strings.HasSuffix(lower, ".kepub"):
		return BookFormat{Name: "KEPUB", Extension: ".kepub"}, nil
	case strings.HasSuffix(lower, ".epub"):
		return BookFormat{Name: "EPUB", Extension: ".epub"}, nil
	default:
		return BookFormat{}, fmt.Errorf("unsupported file extension for %q: file must end in .epub, .kepub, or .kepub.epub", path)
	}
}

// IsSupportedBookFile reports whether path names an importable book
// file. Directory import uses it to filter a walk.
func IsSupportedBookFile(path string) bool {
	_, err := DetectFormat(path)
	return err == nil
}
