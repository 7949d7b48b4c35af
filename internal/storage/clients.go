package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

const clientColumns = `id, first_name, last_name, email, phone, notes, created_at, updated_at`

// CreateClient inserts a client and sets its ID and timestamps.
func (s *SQLiteStorage) CreateClient(ctx context.Context, client *model.Client) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClient(client); err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (first_name, last_name, email, phone, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, client.FirstName, client.LastName, nullString(client.Email), nullString(client.Phone), client.Notes, now, now)
	if err != nil {
		return writeError("create client", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get client ID: %w", err)
	}
	client.ID = id
	client.CreatedAt = now
	client.UpdatedAt = now
	return nil
}

// UpdateClient overwrites every field of an existing client.
func (s *SQLiteStorage) UpdateClient(ctx context.Context, client *model.Client) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClient(client); err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET first_name = ?, last_name = ?, email = ?, phone = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, client.FirstName, client.LastName, nullString(client.Email), nullString(client.Phone), client.Notes, now, client.ID)
	if err != nil {
		return writeError("update client", err)
	}
	if err := affectedOne(res, "client", client.ID); err != nil {
		return err
	}
	client.UpdatedAt = now
	return nil
}

// GetClient returns the client with the given ID.
func (s *SQLiteStorage) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// FindClients returns clients matching every set filter field.
func (s *SQLiteStorage) FindClients(ctx context.Context, filter model.RecordFilter) ([]model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.ID > 0 {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.Name != "" {
		where = append(where, "(first_name || ' ' || last_name) LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.Email != "" {
		where = append(where, "email = ?")
		args = append(args, strings.ToLower(filter.Email))
	}
	if filter.Phone != "" {
		where = append(where, "phone = ?")
		args = append(args, filter.Phone)
	}

	query := `SELECT ` + clientColumns + ` FROM clients`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_name COLLATE NOCASE, first_name COLLATE NOCASE, id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*model.Client, error) {
	var c model.Client
	var email, phone sql.NullString
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &email, &phone, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Phone = phone.String
	return &c, nil
}
