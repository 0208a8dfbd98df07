// file: cmd/root_test.go
// version: 1.0.0
// guid: 8d0e2f4a-6b8c-4d0e-2f4a-6b8c0d2e4f6a

package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/ebooktools/calibre-manager/internal/config"
	"github.com/ebooktools/calibre-manager/internal/models"
)

func TestParseBookID(t *testing.T) {
	id, err := parseBookID("42")
	if err != nil {
		t.Fatalf("parseBookID failed: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}
	if _, err := parseBookID("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestJoinOrPlaceholder(t *testing.T) {
	if got := joinOrPlaceholder(nil); got != "(unknown)" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := joinOrPlaceholder([]string{"A", "B"}); got != "A, B" {
		t.Fatalf("expected joined values, got %q", got)
	}
}

func TestRequireAppDBWithoutCompanion(t *testing.T) {
	s := &stores{}
	if err := requireAppDB(s); err == nil {
		t.Fatal("expected error when companion database is absent")
	}
}

func TestInitConfigDefaultsMetadataDB(t *testing.T) {
	tempDir := t.TempDir()

	origCfgFile := cfgFile
	origConfig := config.AppConfig
	defer func() {
		cfgFile = origCfgFile
		config.AppConfig = origConfig
		viper.Reset()
	}()

	viper.Reset()
	cfgFile = filepath.Join(tempDir, "config.yaml")
	configYAML := "library_dir: " + filepath.Join(tempDir, "library") + "\n"
	if err := os.WriteFile(cfgFile, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	initConfig()

	want := filepath.Join(tempDir, "library", "metadata.db")
	if config.AppConfig.MetadataDB != want {
		t.Fatalf("expected metadata db %q, got %q", want, config.AppConfig.MetadataDB)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "library")); err != nil {
		t.Fatalf("expected library directory to exist: %v", err)
	}
}

func TestPrintBookListings(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	origStdout := os.Stdout
	os.Stdout = w
	defer func() {
		os.Stdout = origStdout
	}()

	printBookListings([]models.BookListing{
		{
			ID:          1,
			Title:       "The Left Hand of Darkness",
			Authors:     []string{"Ursula K. Le Guin"},
			Series:      []string{"Hainish Cycle"},
			SeriesIndex: 4,
		},
	})
	_ = w.Close()

	output, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	got := string(output)
	if !strings.Contains(got, "The Left Hand of Darkness") {
		t.Fatalf("expected title in output, got %q", got)
	}
	if !strings.Contains(got, "Hainish Cycle") {
		t.Fatalf("expected series in output, got %q", got)
	}
}
