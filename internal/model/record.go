package model

import "time"

// Client is a stored client record.
type Client struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ClientFields
	ID int64 `json:"id"`
}

// Property is a stored property record.
type Property struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	PropertyFields
	ID int64 `json:"id"`
}

// Transaction is a stored sale linking a client to a property.
type Transaction struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TransactionFields
	ID         int64 `json:"id"`
	ClientID   int64 `json:"client_id"`
	PropertyID int64 `json:"property_id"`
}

// RecordFilter narrows find queries. Empty fields are ignored; string fields
// match case-insensitively as substrings except Email and Phone, which match
// exactly.
type RecordFilter struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	Status  string
	ID      int64
	Limit   int
}
