package db

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/goran-ethernal/eventstore/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates a new SQLite DB
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// NewSQLiteDBFromConfig creates a new SQLite DB with the given configuration.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	// Build connection string with configuration options
	foreignKeys := "off"
	if cfg.EnableForeignKeys {
		foreignKeys = "on"
	}

	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=%s&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		foreignKeys,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply connection pool settings
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	// Apply PRAGMA settings
	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// Vacuum reclaims free space left by deleted rows. Safe to run in WAL mode;
// it rewrites the database file into a minimal footprint without requiring
// exclusive access beyond its own transaction.
func Vacuum(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// DBTotalSize returns the combined size in bytes of the main database file
// and its WAL/SHM sidecar files, whichever of the three currently exist. A
// store that has never been opened has no files on disk and reports 0, not
// an error.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64

	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("failed to stat %s%s: %w", dbPath, suffix, err)
		}
		total += info.Size()
	}

	return total, nil
}
