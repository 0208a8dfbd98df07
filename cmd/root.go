// file: cmd/root.go
// version: 1.0.0
// guid: 7c9d1e3f-5a7b-4c9d-1e3f-5a7b9c1d3e5f

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ebooktools/calibre-manager/internal/catalog"
	"github.com/ebooktools/calibre-manager/internal/cleanup"
	"github.com/ebooktools/calibre-manager/internal/clock"
	"github.com/ebooktools/calibre-manager/internal/config"
	"github.com/ebooktools/calibre-manager/internal/database"
	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/operations"
	"github.com/ebooktools/calibre-manager/internal/shelves"
)

var cfgFile string
var libraryDir string
var metadataDB string
var appDBPath string
var defaultUser string

var shelfFlag string
var unshelvedFlag bool
var verboseFlag bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "calibre-manager",
	Short: "Manage a Calibre library and its companion web database",
	Long: `Calibre Manager imports EPUB and KEPUB files into a Calibre library,
keeping the metadata database, the optional Calibre-Web companion
database, and the files on disk consistent with each other.

It can also assign books to shelves, repair Kobo device-sync
bookkeeping, and sweep both databases for orphaned rows.`,
}

// stores bundles the open database handles for one command run.
type stores struct {
	catalog *database.CatalogDB
	app     *database.AppDB
}

func (s *stores) Close() {
	if s.app.Available() {
		s.app.Close()
	}
	if s.catalog != nil {
		s.catalog.Close()
	}
}

// openStores opens the catalog and, when configured, the companion
// database. The companion handle is nil-safe: commands that do not
// need it work without one.
func openStores() (*stores, error) {
	catalogDB, err := database.OpenCatalog(config.AppConfig.MetadataDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	appDB, err := database.OpenApp(config.AppConfig.AppDB)
	if err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to open companion database: %w", err)
	}
	return &stores{catalog: catalogDB, app: appDB}, nil
}

func requireAppDB(s *stores) error {
	if !s.app.Available() {
		return fmt.Errorf("this command needs the companion database; set --app-db or app_db in the config file")
	}
	return nil
}

func newImporter(s *stores) *operations.Importer {
	engine := catalog.NewEngine(s.catalog, clock.New(), config.AppConfig.LibraryDir)
	manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
	return operations.NewImporter(engine, manager, config.AppConfig.LibraryDir)
}

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add a single book file to the library",
	Long: `Add one EPUB or KEPUB file to the library. The book is matched
against the catalog by title and author; an existing entry is updated
in place, an identical one is left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		if shelfFlag != "" {
			if err := requireAppDB(s); err != nil {
				return err
			}
		}

		_, err = newImporter(s).ImportFile(args[0], shelfFlag, defaultUser)
		return err
	},
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Import every book file under a directory",
	Long: `Recursively import all EPUB and KEPUB files under a directory.
A failure on one file is reported and the rest of the batch continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		if shelfFlag != "" {
			if err := requireAppDB(s); err != nil {
				return err
			}
		}

		summary, err := newImporter(s).ImportDirectory(args[0], shelfFlag, defaultUser)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d files failed to import", summary.Failed, summary.Total())
		}
		return nil
	},
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List books in the catalog",
	Long: `List catalog books with their authors, series, and shelves.
Use --shelf to restrict to one shelf, --unshelved for books on no
shelf, and --verbose for identifiers and languages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		if shelfFlag != "" || unshelvedFlag {
			if err := requireAppDB(s); err != nil {
				return err
			}
		}
		if shelfFlag != "" && unshelvedFlag {
			return fmt.Errorf("--shelf and --unshelved are mutually exclusive")
		}

		lister := catalog.NewLister(s.catalog, s.app)
		books, err := lister.List(catalog.ListOptions{
			ShelfName: shelfFlag,
			Unshelved: unshelvedFlag,
			Verbose:   verboseFlag,
		})
		if err != nil {
			return err
		}
		printBookListings(books)
		return nil
	},
}

// shelvesCmd represents the shelves command
var shelvesCmd = &cobra.Command{
	Use:   "shelves",
	Short: "List shelves in the companion database",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireAppDB(s); err != nil {
			return err
		}

		manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
		entries, err := manager.ListShelves()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No shelves found.")
			return nil
		}
		for _, e := range entries {
			sync := ""
			if e.KoboSync {
				sync = " [kobo sync]"
			}
			fmt.Printf("%s (owner: %s, %d books)%s\n", e.Name, e.Username, e.BookCount, sync)
		}
		return nil
	},
}

// shelveCmd represents the shelve command
var shelveCmd = &cobra.Command{
	Use:   "shelve <book-id> <shelf>",
	Short: "Put an existing catalog book on a shelf",
	Long: `Add a book that is already in the catalog to a shelf, creating the
shelf for its owner if needed. Adding a book that is already on the
shelf is a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID, err := parseBookID(args[0])
		if err != nil {
			return err
		}

		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireAppDB(s); err != nil {
			return err
		}

		var title string
		if err := s.catalog.QueryRow("SELECT title FROM books WHERE id = ?", bookID).Scan(&title); err != nil {
			return fmt.Errorf("book %d not found in catalog", bookID)
		}

		manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
		added, err := manager.AddBookToShelf(bookID, args[1], defaultUser)
		if err != nil {
			return err
		}
		if added {
			fmt.Printf(" -> Added %q to shelf %q\n", title, args[1])
		} else {
			fmt.Printf("%q is already on shelf %q\n", title, args[1])
		}
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <book-id>",
	Short: "Delete a book from the library",
	Long: `Remove a book from the catalog, the companion database, and the
library tree. Rows in both databases go first; leftover files are
reported as warnings rather than failing the command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID, err := parseBookID(args[0])
		if err != nil {
			return err
		}

		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		deleter := catalog.NewDeleter(s.catalog, s.app, config.AppConfig.LibraryDir)
		if err := deleter.Delete(bookID); err != nil {
			return err
		}
		fmt.Printf(" -> Deleted book %d\n", bookID)
		return nil
	},
}

// cleanShelvesCmd represents the clean-shelves command
var cleanShelvesCmd = &cobra.Command{
	Use:   "clean-shelves",
	Short: "Remove dangling shelf links and empty shelves",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireAppDB(s); err != nil {
			return err
		}

		manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
		links, emptied, err := manager.RemoveEmptyShelves()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d dangling shelf links and %d empty shelves.\n", links, emptied)
		return nil
	},
}

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep both databases for orphaned rows and broken timestamps",
	Long: `Run the orphan sweep and the repair sweep: remove catalog books
whose files are gone, prune unreferenced authors, series, publishers,
and tags, delete companion rows pointing at missing books, fill NULL
timestamps, and mend device-sync bookkeeping. Running it twice in a
row fixes nothing the second time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		sweeper := cleanup.NewSweeper(s.catalog, s.app, clock.New(), config.AppConfig.LibraryDir)

		fmt.Println("Running orphan sweep...")
		orphans, err := sweeper.OrphanSweep()
		if err != nil {
			return err
		}

		fmt.Println("Running repair sweep...")
		repairs, err := sweeper.RepairSweep()
		if err != nil {
			return err
		}

		fmt.Printf("\nCleanup complete: %d rows removed, %d fixes applied.\n",
			orphans.Total(), repairs.Total())
		return nil
	},
}

// syncRepairCmd represents the sync-repair command
var syncRepairCmd = &cobra.Command{
	Use:   "sync-repair",
	Short: "Repair Kobo device-sync bookkeeping",
	Long: `Walk every book on a sync-enabled shelf and repair its sync state:
missing acknowledgment rows, missing reading states, and degraded
timestamps. Shelves that received a fix get their last_modified reset
so the next device sync re-evaluates them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireAppDB(s); err != nil {
			return err
		}

		manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
		report, err := manager.RepairSync()
		if err != nil {
			return err
		}
		if !report.HasFixes() {
			fmt.Println("Sync state is healthy; nothing to repair.")
			return nil
		}
		fmt.Printf("Repaired %d sync entries, %d reading states, %d timestamps.\n",
			report.SyncEntries, report.ReadingStates, report.Timestamps)
		return nil
	},
}

// syncDiagnoseCmd represents the sync-diagnose command
var syncDiagnoseCmd = &cobra.Command{
	Use:   "sync-diagnose",
	Short: "Print a report of the Kobo device-sync setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireAppDB(s); err != nil {
			return err
		}

		manager := shelves.NewManager(s.app, s.catalog, clock.New(), config.AppConfig.DefaultUser)
		return manager.DiagnoseSync()
	},
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show a diagnostic overview of both databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores()
		if err != nil {
			return err
		}
		defer s.Close()

		lister := catalog.NewLister(s.catalog, s.app)
		report, err := lister.Inspect()
		if err != nil {
			return err
		}
		printInspectReport(report, s.app.Available())
		return nil
	},
}

func parseBookID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid book id %q", arg)
	}
	return id, nil
}

func joinOrPlaceholder(values []string) string {
	if len(values) == 0 {
		return "(unknown)"
	}
	return strings.Join(values, ", ")
}

func printBookListings(books []models.BookListing) {
	if len(books) == 0 {
		fmt.Println("No books found.")
		return
	}
	for _, b := range books {
		fmt.Printf("[%d] %s by %s\n", b.ID, b.Title, joinOrPlaceholder(b.Authors))
		if len(b.Series) > 0 {
			fmt.Printf("    Series: %s #%g\n", strings.Join(b.Series, ", "), b.SeriesIndex)
		}
		if len(b.Shelves) > 0 {
			var refs []string
			for _, s := range b.Shelves {
				refs = append(refs, fmt.Sprintf("%s (%s)", s.Name, s.Username))
			}
			fmt.Printf("    Shelves: %s\n", strings.Join(refs, ", "))
		}
		if verboseFlag {
			if len(b.Tags) > 0 {
				fmt.Printf("    Tags: %s\n", strings.Join(b.Tags, ", "))
			}
			if b.Language != "" {
				fmt.Printf("    Language: %s\n", b.Language)
			}
			for scheme, value := range b.Identifiers {
				fmt.Printf("    %s: %s\n", strings.ToUpper(scheme), value)
			}
			fmt.Printf("    Path: %s | UUID: %s\n", b.Path, b.UUID)
		}
	}
	fmt.Printf("\n%d books.\n", len(books))
}

func printInspectReport(report *catalog.InspectReport, appAvailable bool) {
	fmt.Println("Library Inspection Report")
	fmt.Println("=========================")

	fmt.Printf("\nCatalog: %d books, %d authors, %d series\n",
		report.BookCount, report.AuthorCount, report.SeriesCount)

	if len(report.RecentBooks) > 0 {
		fmt.Println("\nRecently added:")
		for _, r := range report.RecentBooks {
			fmt.Printf("  - %s (%s) added %s\n", r.Title, r.AuthorSort, r.Timestamp)
		}
	}

	if !appAvailable {
		fmt.Println("\nCompanion database not configured; shelf details skipped.")
		return
	}

	fmt.Println("\nShelves:")
	if len(report.Shelves) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range report.Shelves {
		visibility := "private"
		if s.IsPublic {
			visibility = "public"
		}
		fmt.Printf("  - %s (owner: %s, %s, %d books)\n", s.Name, s.Owner, visibility, len(s.Books))
		for _, b := range s.Books {
			fmt.Printf("      [%d] %s (%s)\n", b.ID, b.Title, b.AuthorSort)
		}
	}

	if len(report.DanglingBookID) > 0 {
		fmt.Printf("\nWarning: %d shelf links point at missing books: %v\n",
			len(report.DanglingBookID), report.DanglingBookID)
		fmt.Println("Run 'calibre-manager clean-shelves' to remove them.")
	}
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.calibre-manager.yaml)")
	rootCmd.PersistentFlags().StringVar(&libraryDir, "library-dir", "", "root directory of the library tree")
	rootCmd.PersistentFlags().StringVar(&metadataDB, "metadata-db", "", "path to the catalog database (default: <library-dir>/metadata.db)")
	rootCmd.PersistentFlags().StringVar(&appDBPath, "app-db", "", "path to the companion database (optional)")
	rootCmd.PersistentFlags().StringVar(&defaultUser, "user", "", "shelf owner to act as (default: admin)")

	viper.BindPFlag("library_dir", rootCmd.PersistentFlags().Lookup("library-dir"))
	viper.BindPFlag("metadata_db", rootCmd.PersistentFlags().Lookup("metadata-db"))
	viper.BindPFlag("app_db", rootCmd.PersistentFlags().Lookup("app-db"))
	viper.BindPFlag("default_user", rootCmd.PersistentFlags().Lookup("user"))

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(shelvesCmd)
	rootCmd.AddCommand(shelveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(cleanShelvesCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(syncRepairCmd)
	rootCmd.AddCommand(syncDiagnoseCmd)
	rootCmd.AddCommand(inspectCmd)

	addCmd.Flags().StringVar(&shelfFlag, "shelf", "", "shelf to add the book to")
	importCmd.Flags().StringVar(&shelfFlag, "shelf", "", "shelf to add imported books to")
	listCmd.Flags().StringVar(&shelfFlag, "shelf", "", "only books on this shelf")
	listCmd.Flags().BoolVar(&unshelvedFlag, "unshelved", false, "only books on no shelf")
	listCmd.Flags().BoolVar(&verboseFlag, "verbose", false, "include identifiers, language, and paths")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".calibre-manager")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	config.InitConfig()

	// Ensure the library tree exists before any command walks it.
	if config.AppConfig.LibraryDir != "" {
		if err := os.MkdirAll(config.AppConfig.LibraryDir, 0755); err != nil {
			fmt.Printf("Error creating library directory: %v\n", err)
		}
	}
	if dir := filepath.Dir(config.AppConfig.MetadataDB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Error creating database directory: %v\n", err)
		}
	}
}
