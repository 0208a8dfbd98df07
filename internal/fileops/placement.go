// file: internal/fileops/placement.go
// version: 1.0.0
// guid: 4b6c8d0e-2f4a-4b6c-8d0e-2f4a6b8c0d2e

package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SanitizePathComponent strips characters that are unsafe in directory
// or file names so the `{author}/{title} (id)` convention works on any
// filesystem. Interior structure is preserved; only the offending
// characters are replaced.
func SanitizePathComponent(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// PlaceBookFiles copies the source book file into the book's library
// directory as "{title} - {author}{ext}" and writes cover.jpg from
// coverData when present, re-encoded within the cover size budget. Any
// previously placed book files are removed first so a replaced import
// never leaves two formats side by side. Returns whether a cover was
// saved.
func PlaceBookFiles(libraryDir, srcPath, bookPath, title, author string, coverData []byte) (bool, error) {
	format, err := DetectFormat(srcPath)
	if err != nil {
		return false, err
	}

	destDir := filepath.Join(libraryDir, bookPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create book directory %s: %w", destDir, err)
	}

	if err := removePlacedBookFiles(destDir); err != nil {
		return false, err
	}

	fileName := SanitizePathComponent(fmt.Sprintf("%s - %s", title, author)) + format.Extension
	destPath := filepath.Join(destDir, fileName)
	if err := copyFile(srcPath, destPath); err != nil {
		return false, fmt.Errorf("failed to copy book file to %s: %w", destPath, err)
	}

	if len(coverData) == 0 {
		return false, nil
	}

	fitted, err := FitCover(coverData)
	if err != nil {
		return false, fmt.Errorf("failed to process cover: %w", err)
	}
	coverPath := filepath.Join(destDir, "cover.jpg")
	if err := os.WriteFile(coverPath, fitted, 0644); err != nil {
		return false, fmt.Errorf("failed to write cover to %s: %w", coverPath, err)
	}
	return true, nil
}

func removePlacedBookFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read book directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".epub") || strings.HasSuffix(name, ".kepub") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove old book file %s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
