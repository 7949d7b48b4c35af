package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial record schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL DEFAULT '',
					email TEXT,
					phone TEXT,
					notes TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_clients_email ON clients(email) WHERE email IS NOT NULL`,
				`CREATE UNIQUE INDEX idx_clients_phone ON clients(phone) WHERE phone IS NOT NULL`,

				`CREATE TABLE IF NOT EXISTS properties (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					address TEXT NOT NULL,
					address_key TEXT NOT NULL UNIQUE,
					city TEXT NOT NULL DEFAULT '',
					state TEXT NOT NULL DEFAULT '',
					zip TEXT NOT NULL DEFAULT '',
					price REAL NOT NULL DEFAULT 0,
					bedrooms INTEGER,
					bathrooms REAL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					client_id INTEGER NOT NULL REFERENCES clients(id),
					property_id INTEGER NOT NULL REFERENCES properties(id),
					client_email TEXT NOT NULL DEFAULT '',
					property_address TEXT NOT NULL DEFAULT '',
					purchase_price REAL NOT NULL DEFAULT 0,
					deposit REAL NOT NULL DEFAULT 0,
					closing_date DATE,
					status TEXT NOT NULL DEFAULT 'open'
						CHECK (status IN ('open', 'under_contract', 'closed', 'cancelled')),
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				// One live sale per property.
				`CREATE UNIQUE INDEX idx_transactions_active_property ON transactions(property_id)
					WHERE status IN ('open', 'under_contract')`,
				`CREATE INDEX idx_transactions_client ON transactions(client_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add operation audit trail",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS operation_audit (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					status_reason TEXT NOT NULL DEFAULT '',
					path TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					payload TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					archived_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_operation_audit_session ON operation_audit(session_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Index find filters",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(last_name COLLATE NOCASE, first_name COLLATE NOCASE)`,
				`CREATE INDEX IF NOT EXISTS idx_properties_city ON properties(city COLLATE NOCASE)`,
				`CREATE INDEX IF NOT EXISTS idx_operation_audit_updated ON operation_audit(updated_at)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
