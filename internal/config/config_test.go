// file: internal/config/config_test.go
// version: 1.0.0
// guid: 8f1a3b5c-7d9e-4f1a-3b5c-7d9e1f3a5b7c

package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	InitConfig()

	if AppConfig.LibraryDir != "." {
		t.Errorf("expected library dir '.', got %q", AppConfig.LibraryDir)
	}
	if AppConfig.MetadataDB != filepath.Join(".", "metadata.db") {
		t.Errorf("expected metadata db under the library dir, got %q", AppConfig.MetadataDB)
	}
	if AppConfig.AppDB != "" {
		t.Errorf("expected empty app db, got %q", AppConfig.AppDB)
	}
}

func TestInitConfigExplicitValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("library_dir", "/books")
	viper.Set("metadata_db", "/elsewhere/metadata.db")
	viper.Set("app_db", "/elsewhere/app.db")
	viper.Set("default_user", "alice")

	InitConfig()

	if AppConfig.MetadataDB != "/elsewhere/metadata.db" {
		t.Errorf("explicit metadata db not honored: %q", AppConfig.MetadataDB)
	}
	if AppConfig.AppDB != "/elsewhere/app.db" {
		t.Errorf("explicit app db not honored: %q", AppConfig.AppDB)
	}
	if AppConfig.DefaultUser != "alice" {
		t.Errorf("default user not honored: %q", AppConfig.DefaultUser)
	}
}

func TestInitConfigMetadataDBFollowsLibraryDir(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("library_dir", "/books")

	InitConfig()

	if AppConfig.MetadataDB != filepath.Join("/books", "metadata.db") {
		t.Errorf("expected metadata db inside library dir, got %q", AppConfig.MetadataDB)
	}
}
