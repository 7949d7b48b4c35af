// Package records seeds clients, properties and sales for tests through a
// fluent builder.
//
// Example usage:
//
//	seeded, err := records.NewBuilder(t).
//		WithFixture(records.FixtureListing).
//		WithClient(records.Client("Ann", "Lee", "ann@example.com")).
//		Build(ctx, store)
package records

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// Builder provides a fluent interface for constructing seed records.
type Builder interface {
	// WithClient adds a client.
	WithClient(c model.ClientFields) Builder

	// WithProperty adds a property.
	WithProperty(p model.PropertyFields) Builder

	// WithSale links a seeded client (by email) to a seeded property (by address).
	WithSale(email, address string, price float64) Builder

	// WithFixture adds every record of a predefined fixture.
	WithFixture(f Fixture) Builder

	// Build writes the records to store in dependency order.
	Build(ctx context.Context, store service.RecordStore) (Seeded, error)
}

// Seeded holds the stored records keyed by their natural keys.
type Seeded struct {
	Clients      map[string]model.Client
	Properties   map[string]model.Property
	Transactions []model.Transaction
}

// MustClient returns the seeded client with the given email or fails the test.
func (s Seeded) MustClient(t *testing.T, email string) model.Client {
	t.Helper()
	c, ok := s.Clients[strings.ToLower(email)]
	if !ok {
		t.Fatalf("client %q not found in seed data", email)
	}
	return c
}

// MustProperty returns the seeded property with the given address or fails the test.
func (s Seeded) MustProperty(t *testing.T, address string) model.Property {
	t.Helper()
	p, ok := s.Properties[strings.ToLower(address)]
	if !ok {
		t.Fatalf("property %q not found in seed data", address)
	}
	return p
}

// Client is shorthand for a client with a name and email.
func Client(first, last, email string) model.ClientFields {
	return model.ClientFields{FirstName: first, LastName: last, Email: email}
}

// Property is shorthand for a property with an address and price.
func Property(address string, price float64) model.PropertyFields {
	return model.PropertyFields{Address: address, Price: price}
}

type sale struct {
	email   string
	address string
	price   float64
}

type recordBuilder struct {
	t          *testing.T
	clients    []model.ClientFields
	properties []model.PropertyFields
	sales      []sale
}

// NewBuilder creates a new seed builder for the given test.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &recordBuilder{t: t}
}

func (b *recordBuilder) WithClient(c model.ClientFields) Builder {
	b.clients = append(b.clients, c)
	return b
}

func (b *recordBuilder) WithProperty(p model.PropertyFields) Builder {
	b.properties = append(b.properties, p)
	return b
}

func (b *recordBuilder) WithSale(email, address string, price float64) Builder {
	b.sales = append(b.sales, sale{email: email, address: address, price: price})
	return b
}

func (b *recordBuilder) WithFixture(f Fixture) Builder {
	b.clients = append(b.clients, f.Clients()...)
	b.properties = append(b.properties, f.Properties()...)
	return b
}

func (b *recordBuilder) Build(ctx context.Context, store service.RecordStore) (Seeded, error) {
	b.t.Helper()
	out := Seeded{
		Clients:    make(map[string]model.Client, len(b.clients)),
		Properties: make(map[string]model.Property, len(b.properties)),
	}

	for _, fields := range b.clients {
		c := model.Client{ClientFields: fields}
		if err := store.CreateClient(ctx, &c); err != nil {
			return out, fmt.Errorf("failed to seed client %s %s: %w", fields.FirstName, fields.LastName, err)
		}
		out.Clients[strings.ToLower(c.Email)] = c
	}

	for _, fields := range b.properties {
		p := model.Property{PropertyFields: fields}
		if err := store.CreateProperty(ctx, &p); err != nil {
			return out, fmt.Errorf("failed to seed property %q: %w", fields.Address, err)
		}
		out.Properties[strings.ToLower(p.Address)] = p
	}

	for _, s := range b.sales {
		c, ok := out.Clients[strings.ToLower(s.email)]
		if !ok {
			return out, fmt.Errorf("sale references unseeded client %q", s.email)
		}
		p, ok := out.Properties[strings.ToLower(s.address)]
		if !ok {
			return out, fmt.Errorf("sale references unseeded property %q", s.address)
		}
		txn := model.Transaction{
			ClientID:   c.ID,
			PropertyID: p.ID,
			TransactionFields: model.TransactionFields{
				ClientEmail:     c.Email,
				PropertyAddress: p.Address,
				PurchasePrice:   s.price,
			},
		}
		if err := store.CreateTransaction(ctx, &txn); err != nil {
			return out, fmt.Errorf("failed to seed sale of %q: %w", s.address, err)
		}
		out.Transactions = append(out.Transactions, txn)
	}

	return out, nil
}
