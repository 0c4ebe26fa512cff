package database

import (
	"database/sql"
	"fmt"

	"github.com/username/lotledger/backend/src/logger"
	_ "modernc.org/sqlite"
)

const createTableStatement = `
	CREATE TABLE IF NOT EXISTS rate_points (
		series TEXT NOT NULL,
		date TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY(series, date)
	);
	`

// InitDB opens the SQLite database at databasePath and ensures the schema.
func InitDB(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableStatement); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	logger.L.Info("Database tables ensured/created.", "databasePath", databasePath)
	return db, nil
}
