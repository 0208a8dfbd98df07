// file: internal/fileops/hash.go
// version: 1.0.0
// guid: 1e3f5a7b-9c1d-4e3f-5a7b-9c1d3e5f7a9b

package fileops

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ComputeFileHash computes the SHA256 content digest of a file. The
// digest is used only for byte-equality checks between an incoming
// file and an already-placed one; it is never persisted.
func ComputeFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FindBookFile locates the placed book file inside a book directory,
// returning ok=false when the directory or file is absent. Cover and
// sidecar files are ignored.
func FindBookFile(bookDir string) (string, bool) {
	entries, err := os.ReadDir(bookDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".epub") || strings.HasSuffix(name, ".kepub") {
			return filepath.Join(bookDir, entry.Name()), true
		}
	}
	return "", false
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
