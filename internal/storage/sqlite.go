package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

// defaultFindLimit caps find queries that do not set a limit.
const defaultFindLimit = 50

// SQLiteStorage implements service.RecordStore and service.AuditLog using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Validate input
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dsn := ":memory:"
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn += "?_foreign_keys=on"
	}

	// Open database
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// LookupID returns the id of the record whose natural key field equals value.
func (s *SQLiteStorage) LookupID(ctx context.Context, entity model.Entity, field, value string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(value, field); err != nil {
		return 0, err
	}

	var query string
	arg := value
	switch {
	case entity == model.EntityClient && field == model.FieldEmail:
		query = `SELECT id FROM clients WHERE email = ?`
		arg = strings.ToLower(strings.TrimSpace(value))
	case entity == model.EntityClient && field == model.FieldPhone:
		query = `SELECT id FROM clients WHERE phone = ?`
	case entity == model.EntityProperty && field == model.FieldAddress:
		query = `SELECT id FROM properties WHERE address_key = ?`
		arg = addressKey(value)
	case entity == model.EntityTransaction && field == model.FieldPropertyAddress:
		query = `
			SELECT t.id FROM transactions t
			JOIN properties p ON p.id = t.property_id
			WHERE p.address_key = ? AND t.status IN ('open', 'under_contract')`
		arg = addressKey(value)
	default:
		return 0, fmt.Errorf("%w: %s is not a natural key of %s", ErrUnsupportedLookup, field, entity)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s with %s %q: %w", entity, field, value, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s: %w", entity, err)
	}
	return id, nil
}

// writeError maps unique constraint violations to common.ErrDuplicateEntry.
func writeError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w: %s", op, common.ErrDuplicateEntry, uniqueColumn(sqliteErr.Error()))
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// uniqueColumn extracts the column from "UNIQUE constraint failed: t.col".
func uniqueColumn(msg string) string {
	_, cols, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return ""
	}
	col := strings.TrimSpace(strings.Split(cols, ",")[0])
	if _, c, ok := strings.Cut(col, "."); ok {
		return c
	}
	return col
}

// affectedOne turns a zero-row update into common.ErrNotFound.
func affectedOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, common.ErrNotFound)
	}
	return nil
}

// nullString stores empty strings as NULL so unique indexes ignore them.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func addressKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultFindLimit
	}
	return limit
}
