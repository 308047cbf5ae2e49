// Package testing provides testing utilities and helpers for the meridian project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/meridian/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temporary-file SQLite database for testing with automatic schema migration.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and can be called multiple times safely.
//
// Supported schema names:
//   - "history" - bars and signals
//   - "runs" - backtest run reports
//   - "cache" - computation cache entries
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, tmpPath := openTempDB(t, name)

	// Apply schema migration if schema exists for this database name
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, cleanupFunc(t, db, name, tmpPath)
}

func openTempDB(t *testing.T, name string) (*database.DB, string) {
	t.Helper()

	// Temporary files give each test its own isolated database
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, tmpPath
}

func cleanupFunc(t *testing.T, db *database.DB, name, tmpPath string) func() {
	closed := false
	return func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			// Log error but don't fail test
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(tmpPath + suffix); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath+suffix, err)
			}
		}
	}
}
