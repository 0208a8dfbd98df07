// file: internal/fileops/fileops_test.go
// version: 1.0.0
// guid: 5c7d9e1f-3a5b-4c7d-9e1f-3a5b7c9d1e3f

package fileops

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		name    string
		ext     string
		wantErr bool
	}{
		{"book.epub", "EPUB", ".epub", false},
		{"Book.EPUB", "EPUB", ".epub", false},
		{"book.kepub", "KEPUB", ".kepub", false},
		{"book.kepub.epub", "KEPUB", ".kepub", false},
		{"/some/dir/novel.Kepub.Epub", "KEPUB", ".kepub", false},
		{"book.mobi", "", "", true},
		{"book.pdf", "", "", true},
		{"book", "", "", true},
	}

	for _, tt := range tests {
		format, err := DetectFormat(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DetectFormat(%q) expected error, got %+v", tt.path, format)
			}
			continue
		}
		if err != nil {
			t.Errorf("DetectFormat(%q) unexpected error: %v", tt.path, err)
			continue
		}
		if format.Name != tt.name || format.Extension != tt.ext {
			t.Errorf("DetectFormat(%q) = {%s %s}, want {%s %s}",
				tt.path, format.Name, format.Extension, tt.name, tt.ext)
		}
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Great Gatsby", "The Great Gatsby"},
		{"What If?: Serious Answers", "What If__ Serious Answers"},
		{"A/B Testing", "A_B Testing"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := SanitizePathComponent(tt.in); got != tt.want {
			t.Errorf("SanitizePathComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComputeFileHash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.epub")
	b := filepath.Join(dir, "b.epub")
	c := filepath.Join(dir, "c.epub")
	if err := os.WriteFile(a, []byte("same content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("same content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c, []byte("other content"), 0644); err != nil {
		t.Fatal(err)
	}

	hashA, err := ComputeFileHash(a)
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}
	hashB, err := ComputeFileHash(b)
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}
	hashC, err := ComputeFileHash(c)
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}

	if hashA != hashB {
		t.Errorf("identical content produced different hashes: %s vs %s", hashA, hashB)
	}
	if hashA == hashC {
		t.Error("different content produced identical hashes")
	}
	if len(hashA) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(hashA))
	}
}

func TestFindBookFile(t *testing.T) {
	dir := t.TempDir()
	if _, ok := FindBookFile(dir); ok {
		t.Error("expected no book file in empty directory")
	}

	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := FindBookFile(dir); ok {
		t.Error("cover.jpg should not count as a book file")
	}

	want := filepath.Join(dir, "Title - Author.kepub")
	if err := os.WriteFile(want, []byte("book"), 0644); err != nil {
		t.Fatal(err)
	}
	got, ok := FindBookFile(dir)
	if !ok {
		t.Fatal("expected to find placed book file")
	}
	if got != want {
		t.Errorf("FindBookFile = %q, want %q", got, want)
	}

	if _, ok := FindBookFile(filepath.Join(dir, "missing")); ok {
		t.Error("missing directory should report no book file")
	}
}

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), uint8((x + y) % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFitCoverSmallImageUnchanged(t *testing.T) {
	data := encodeTestPNG(t, 300, 450)
	if len(data) > maxCoverBytes {
		t.Fatalf("test image unexpectedly large: %d bytes", len(data))
	}

	out, err := FitCover(data)
	if err != nil {
		t.Fatalf("FitCover: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("data within budget should be returned unchanged")
	}
}

func TestFitCoverDownscalesLargeImage(t *testing.T) {
	// Pseudo-random pixels defeat JPEG compression so the encode is
	// guaranteed over budget at full size.
	img := image.NewRGBA(image.Rect(0, 0, 1600, 2400))
	seed := uint32(2463534242)
	for i := range img.Pix {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		img.Pix[i] = uint8(seed)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	out, err := FitCover(buf.Bytes())
	if err != nil {
		t.Fatalf("FitCover: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() >= 1600 {
		t.Errorf("expected downscaled output, got width %d", decoded.Bounds().Dx())
	}
	if decoded.Bounds().Dx() < minCoverWidth {
		t.Errorf("downscale went below floor: width %d", decoded.Bounds().Dx())
	}
}

func TestFitCoverRejectsGarbage(t *testing.T) {
	// Over budget so the decode path actually runs.
	garbage := bytes.Repeat([]byte("not an image"), 20*1024)
	if _, err := FitCover(garbage); err == nil {
		t.Error("expected decode error for non-image data")
	}
}

func TestPlaceBookFiles(t *testing.T) {
	tmp := t.TempDir()
	libraryDir := filepath.Join(tmp, "library")
	src := filepath.Join(tmp, "incoming.kepub.epub")
	if err := os.WriteFile(src, []byte("book bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	bookPath := filepath.Join("Jane Austen", "Emma (7)")
	coverSaved, err := PlaceBookFiles(libraryDir, src, bookPath, "Emma", "Jane Austen", encodeTestPNG(t, 120, 180))
	if err != nil {
		t.Fatalf("PlaceBookFiles: %v", err)
	}
	if !coverSaved {
		t.Error("expected cover to be saved")
	}

	destDir := filepath.Join(libraryDir, bookPath)
	placed := filepath.Join(destDir, "Emma - Jane Austen.kepub")
	data, err := os.ReadFile(placed)
	if err != nil {
		t.Fatalf("placed file missing: %v", err)
	}
	if string(data) != "book bytes" {
		t.Errorf("placed content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(destDir, "cover.jpg")); err != nil {
		t.Errorf("cover.jpg missing: %v", err)
	}
}

func TestPlaceBookFilesReplacesOldFormat(t *testing.T) {
	tmp := t.TempDir()
	libraryDir := filepath.Join(tmp, "library")
	bookPath := filepath.Join("Author", "Title (3)")
	destDir := filepath.Join(libraryDir, bookPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(destDir, "Title - Author.epub")
	if err := os.WriteFile(old, []byte("old edition"), 0644); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(tmp, "new.kepub")
	if err := os.WriteFile(src, []byte("new edition"), 0644); err != nil {
		t.Fatal(err)
	}

	coverSaved, err := PlaceBookFiles(libraryDir, src, bookPath, "Title", "Author", nil)
	if err != nil {
		t.Fatalf("PlaceBookFiles: %v", err)
	}
	if coverSaved {
		t.Error("no cover data given, coverSaved should be false")
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old format file should have been removed")
	}
	data, err := os.ReadFile(filepath.Join(destDir, "Title - Author.kepub"))
	if err != nil {
		t.Fatalf("new file missing: %v", err)
	}
	if string(data) != "new edition" {
		t.Errorf("placed content = %q", data)
	}
}

func TestPlaceBookFilesRejectsUnknownExtension(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "book.mobi")
	if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := PlaceBookFiles(tmp, src, "A/B (1)", "B", "A", nil); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
