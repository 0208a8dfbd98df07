// file: internal/config/config.go
// version: 1.0.0
// guid: 6b8c0d2e-4f6a-4b8c-0d2e-4f6a8b0c2d4e

package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// LibraryDir is the root of the library tree; metadata.db lives
	// inside it unless overridden.
	LibraryDir string
	// MetadataDB is the path of the catalog database.
	MetadataDB string
	// AppDB is the path of the companion database. Empty means the
	// companion capability is absent.
	AppDB string
	// DefaultUser is the shelf owner used when a command names none.
	// Empty resolves to the admin identity.
	DefaultUser string
}

var AppConfig Config

// InitConfig initializes the application configuration
func InitConfig() {
	viper.SetDefault("library_dir", ".")

	AppConfig = Config{
		LibraryDir:  viper.GetString("library_dir"),
		MetadataDB:  viper.GetString("metadata_db"),
		AppDB:       viper.GetString("app_db"),
		DefaultUser: viper.GetString("default_user"),
	}

	if AppConfig.MetadataDB == "" {
		AppConfig.MetadataDB = filepath.Join(AppConfig.LibraryDir, "metadata.db")
	}
}
