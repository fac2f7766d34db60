package spatialite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver that loads SpatiaLite on connect.
const DriverName = "sqlite3_spatialite"

var (
	registerOnce sync.Once
	libraryPath  string
)

// registerDriver registers DriverName. The first call wins; preferred is the
// library path tried before the platform defaults.
func registerDriver(preferred string) {
	registerOnce.Do(func() {
		libraryPath = preferred
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: loadSpatiaLite,
		})
	})
}

// loadSpatiaLite loads the first SpatiaLite library that is found.
func loadSpatiaLite(conn *sqlite3.SQLiteConn) error {
	var errs []error
	for _, path := range getSpatiaLiteLibraryPaths(libraryPath) {
		err := conn.LoadExtension(path, "sqlite3_modspatialite_init")
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return fmt.Errorf("loading SpatiaLite: %w", errors.Join(errs...))
}

// getSpatiaLiteLibraryPaths returns the paths to try for loading SpatiaLite:
// the configured path, then SPATIALITE_LIBRARY_PATH, then platform paths.
func getSpatiaLiteLibraryPaths(preferred string) []string {
	if preferred != "" {
		return []string{preferred}
	}
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",

		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// LD_LIBRARY_PATH lookup
		"mod_spatialite",
	}
}
