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

const propertyColumns = `id, address, city, state, zip, price, bedrooms, bathrooms, created_at, updated_at`

// CreateProperty inserts a property and sets its ID and timestamps.
func (s *SQLiteStorage) CreateProperty(ctx context.Context, property *model.Property) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProperty(property); err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (address, address_key, city, state, zip, price, bedrooms, bathrooms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, property.Address, addressKey(property.Address), property.City, property.State, property.Zip,
		property.Price, nullInt(property.Bedrooms), nullFloat(property.Bathrooms), now, now)
	if err != nil {
		return writeError("create property", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get property ID: %w", err)
	}
	property.ID = id
	property.CreatedAt = now
	property.UpdatedAt = now
	return nil
}

// UpdateProperty overwrites every field of an existing property.
func (s *SQLiteStorage) UpdateProperty(ctx context.Context, property *model.Property) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProperty(property); err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE properties
		SET address = ?, address_key = ?, city = ?, state = ?, zip = ?, price = ?,
			bedrooms = ?, bathrooms = ?, updated_at = ?
		WHERE id = ?
	`, property.Address, addressKey(property.Address), property.City, property.State, property.Zip,
		property.Price, nullInt(property.Bedrooms), nullFloat(property.Bathrooms), now, property.ID)
	if err != nil {
		return writeError("update property", err)
	}
	if err := affectedOne(res, "property", property.ID); err != nil {
		return err
	}
	property.UpdatedAt = now
	return nil
}

// GetProperty returns the property with the given ID.
func (s *SQLiteStorage) GetProperty(ctx context.Context, id int64) (*model.Property, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	property, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return property, nil
}

// FindProperties returns properties matching every set filter field.
func (s *SQLiteStorage) FindProperties(ctx context.Context, filter model.RecordFilter) ([]model.Property, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.ID > 0 {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.Address != "" {
		where = append(where, "address_key LIKE ?")
		args = append(args, "%"+addressKey(filter.Address)+"%")
	}
	if filter.City != "" {
		where = append(where, "city = ? COLLATE NOCASE")
		args = append(args, filter.City)
	}

	query := `SELECT ` + propertyColumns + ` FROM properties`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY address_key, id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var properties []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

func scanProperty(row scanner) (*model.Property, error) {
	var p model.Property
	var beds sql.NullInt64
	var baths sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Address, &p.City, &p.State, &p.Zip, &p.Price, &beds, &baths, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if beds.Valid {
		n := int(beds.Int64)
		p.Bedrooms = &n
	}
	if baths.Valid {
		f := baths.Float64
		p.Bathrooms = &f
	}
	return &p, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
