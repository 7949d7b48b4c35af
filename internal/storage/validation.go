// Package storage provides the data persistence layer for parcel.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidProperty     = errors.New("invalid property")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrUnsupportedLookup   = errors.New("unsupported lookup")
	ErrInvalidRecordStatus = errors.New("invalid transaction status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateClient validates a client record.
func validateClient(c *model.Client) error {
	if c == nil {
		return fmt.Errorf("%w: client", ErrNilParameter)
	}
	if strings.TrimSpace(c.FirstName) == "" {
		return fmt.Errorf("%w: missing first name", ErrInvalidClient)
	}
	if c.Email == "" && c.Phone == "" {
		return fmt.Errorf("%w: missing email and phone", ErrInvalidClient)
	}
	return nil
}

// validateProperty validates a property record.
func validateProperty(p *model.Property) error {
	if p == nil {
		return fmt.Errorf("%w: property", ErrNilParameter)
	}
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidProperty)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidProperty)
	}
	return nil
}

// validateTransaction validates a transaction record.
func validateTransaction(t *model.Transaction) error {
	if t == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if t.ClientID <= 0 {
		return fmt.Errorf("%w: missing client", ErrInvalidTransaction)
	}
	if t.PropertyID <= 0 {
		return fmt.Errorf("%w: missing property", ErrInvalidTransaction)
	}
	if t.PurchasePrice < 0 || t.Deposit < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidTransaction)
	}
	switch t.Status {
	case "", "open", "under_contract", "closed", "cancelled":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRecordStatus, t.Status)
	}
	return nil
}

// validateOperation validates an operation before archiving.
func validateOperation(op *model.PendingOperation) error {
	if op == nil {
		return fmt.Errorf("%w: operation", ErrNilParameter)
	}
	if op.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidOperation)
	}
	if !op.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	if op.Status == "" {
		return fmt.Errorf("%w: missing status", ErrInvalidOperation)
	}
	return nil
}
