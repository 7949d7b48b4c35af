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

const transactionColumns = `id, client_id, property_id, client_email, property_address,
	purchase_price, deposit, closing_date, status, created_at, updated_at`

// CreateTransaction inserts a sale. The client and property must exist.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.Status == "" {
		txn.Status = "open"
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			client_id, property_id, client_email, property_address,
			purchase_price, deposit, closing_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ClientID, txn.PropertyID, txn.ClientEmail, txn.PropertyAddress,
		txn.PurchasePrice, txn.Deposit, nullDate(txn), txn.Status, now, now)
	if err != nil {
		return writeError("create transaction", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction ID: %w", err)
	}
	txn.ID = id
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

// UpdateTransaction overwrites every field of an existing sale.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.Status == "" {
		txn.Status = "open"
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET client_id = ?, property_id = ?, client_email = ?, property_address = ?,
			purchase_price = ?, deposit = ?, closing_date = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, txn.ClientID, txn.PropertyID, txn.ClientEmail, txn.PropertyAddress,
		txn.PurchasePrice, txn.Deposit, nullDate(txn), txn.Status, now, txn.ID)
	if err != nil {
		return writeError("update transaction", err)
	}
	if err := affectedOne(res, "transaction", txn.ID); err != nil {
		return err
	}
	txn.UpdatedAt = now
	return nil
}

// GetTransaction returns the sale with the given ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// FindTransactions returns sales matching every set filter field. Email
// matches the client email, Address the property address.
func (s *SQLiteStorage) FindTransactions(ctx context.Context, filter model.RecordFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.ID > 0 {
		where = append(where, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.Email != "" {
		where = append(where, "client_email = ?")
		args = append(args, strings.ToLower(filter.Email))
	}
	if filter.Address != "" {
		where = append(where, "property_address LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.Address+"%")
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var t model.Transaction
	var closing sql.NullTime
	if err := row.Scan(&t.ID, &t.ClientID, &t.PropertyID, &t.ClientEmail, &t.PropertyAddress,
		&t.PurchasePrice, &t.Deposit, &closing, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if closing.Valid {
		d := closing.Time
		t.ClosingDate = &d
	}
	return &t, nil
}

func nullDate(t *model.Transaction) any {
	if t.ClosingDate == nil {
		return nil
	}
	return t.ClosingDate.Format("2006-01-02")
}
