package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names shared by extractors, the validator and overrides.
const (
	FieldTarget = "target"

	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldNotes     = "notes"

	FieldAddress   = "address"
	FieldCity      = "city"
	FieldState     = "state"
	FieldZip       = "zip"
	FieldPrice     = "price"
	FieldBedrooms  = "bedrooms"
	FieldBathrooms = "bathrooms"

	FieldClientEmail     = "client_email"
	FieldPropertyAddress = "property_address"
	FieldPurchasePrice   = "purchase_price"
	FieldDeposit         = "deposit"
	FieldClosingDate     = "closing_date"
	FieldStatus          = "status"

	// FieldName labels the combined first and last name in previews. It is
	// not an assignable field.
	FieldName = "name"
)

var entityFields = map[Entity][]string{
	EntityClient:      {FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldNotes},
	EntityProperty:    {FieldAddress, FieldCity, FieldState, FieldZip, FieldPrice, FieldBedrooms, FieldBathrooms},
	EntityTransaction: {FieldClientEmail, FieldPropertyAddress, FieldPurchasePrice, FieldDeposit, FieldClosingDate, FieldStatus},
}

// FieldNames returns the ordered field names for an entity.
func FieldNames(e Entity) []string {
	return append([]string(nil), entityFields[e]...)
}

// MonetaryFields are the fields holding currency amounts.
var MonetaryFields = map[string]bool{
	FieldPrice:         true,
	FieldPurchasePrice: true,
	FieldDeposit:       true,
}

// ClientParams holds raw extracted client values.
type ClientParams struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// PropertyParams holds raw extracted property values.
type PropertyParams struct {
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Price     string `json:"price,omitempty"`
	Bedrooms  string `json:"bedrooms,omitempty"`
	Bathrooms string `json:"bathrooms,omitempty"`
}

// TransactionParams holds raw extracted transaction values.
type TransactionParams struct {
	ClientEmail     string `json:"client_email,omitempty"`
	PropertyAddress string `json:"property_address,omitempty"`
	PurchasePrice   string `json:"purchase_price,omitempty"`
	Deposit         string `json:"deposit,omitempty"`
	ClosingDate     string `json:"closing_date,omitempty"`
	Status          string `json:"status,omitempty"`
}

// Params is the raw parameter set of a candidate. Exactly one of Client,
// Property or Transaction is set, matching the entity of the operation kind.
// Target identifies the record for update and find operations: a numeric
// record id or the entity's natural key.
type Params struct {
	Client      *ClientParams      `json:"client,omitempty"`
	Property    *PropertyParams    `json:"property,omitempty"`
	Transaction *TransactionParams `json:"transaction,omitempty"`
	Target      string             `json:"target,omitempty"`
}

// NewParams returns an empty parameter set for the entity.
func NewParams(e Entity) Params {
	switch e {
	case EntityClient:
		return Params{Client: &ClientParams{}}
	case EntityProperty:
		return Params{Property: &PropertyParams{}}
	case EntityTransaction:
		return Params{Transaction: &TransactionParams{}}
	}
	return Params{}
}

// Entity reports which variant is populated.
func (p Params) Entity() Entity {
	switch {
	case p.Client != nil:
		return EntityClient
	case p.Property != nil:
		return EntityProperty
	case p.Transaction != nil:
		return EntityTransaction
	}
	return ""
}

func (p *Params) ref(name string) *string {
	if name == FieldTarget {
		return &p.Target
	}
	switch {
	case p.Client != nil:
		c := p.Client
		switch name {
		case FieldFirstName:
			return &c.FirstName
		case FieldLastName:
			return &c.LastName
		case FieldEmail:
			return &c.Email
		case FieldPhone:
			return &c.Phone
		case FieldNotes:
			return &c.Notes
		}
	case p.Property != nil:
		pr := p.Property
		switch name {
		case FieldAddress:
			return &pr.Address
		case FieldCity:
			return &pr.City
		case FieldState:
			return &pr.State
		case FieldZip:
			return &pr.Zip
		case FieldPrice:
			return &pr.Price
		case FieldBedrooms:
			return &pr.Bedrooms
		case FieldBathrooms:
			return &pr.Bathrooms
		}
	case p.Transaction != nil:
		t := p.Transaction
		switch name {
		case FieldClientEmail:
			return &t.ClientEmail
		case FieldPropertyAddress:
			return &t.PropertyAddress
		case FieldPurchasePrice:
			return &t.PurchasePrice
		case FieldDeposit:
			return &t.Deposit
		case FieldClosingDate:
			return &t.ClosingDate
		case FieldStatus:
			return &t.Status
		}
	}
	return nil
}

// Get returns a raw field value.
func (p Params) Get(name string) string {
	if r := p.ref(name); r != nil {
		return *r
	}
	return ""
}

// Set assigns a raw field value. Unknown fields for the populated entity are
// rejected so callers cannot smuggle values past the validator.
func (p *Params) Set(name, value string) error {
	r := p.ref(name)
	if r == nil {
		return fmt.Errorf("unknown field %q for %s", name, p.Entity())
	}
	*r = value
	return nil
}

// Present lists the fields that carry a non-empty value, in entity order.
func (p Params) Present() []string {
	var names []string
	for _, name := range entityFields[p.Entity()] {
		if p.Get(name) != "" {
			names = append(names, name)
		}
	}
	return names
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	out := Params{Target: p.Target}
	if p.Client != nil {
		c := *p.Client
		out.Client = &c
	}
	if p.Property != nil {
		pr := *p.Property
		out.Property = &pr
	}
	if p.Transaction != nil {
		t := *p.Transaction
		out.Transaction = &t
	}
	return out
}

// ClientFields are normalized client values.
type ClientFields struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// PropertyFields are normalized property values. Nil counts mean "not given";
// bathrooms allow half steps.
type PropertyFields struct {
	Bedrooms  *int     `json:"bedrooms,omitempty"`
	Bathrooms *float64 `json:"bathrooms,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Price     float64  `json:"price,omitempty"`
}

// TransactionFields are normalized transaction values.
type TransactionFields struct {
	ClosingDate     *time.Time `json:"closing_date,omitempty"`
	ClientEmail     string     `json:"client_email,omitempty"`
	PropertyAddress string     `json:"property_address,omitempty"`
	Status          string     `json:"status,omitempty"`
	PurchasePrice   float64    `json:"purchase_price,omitempty"`
	Deposit         float64    `json:"deposit,omitempty"`
}

// NormalizedParams is a validated, typed parameter set. Like Params exactly
// one variant is populated.
type NormalizedParams struct {
	Client      *ClientFields      `json:"client,omitempty"`
	Property    *PropertyFields    `json:"property,omitempty"`
	Transaction *TransactionFields `json:"transaction,omitempty"`
	Kind        OperationKind      `json:"kind"`
	Target      string             `json:"target,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// PreviewLine is one field/value pair shown to the user.
type PreviewLine struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Lines renders the populated fields in the entity's declared order.
func (n NormalizedParams) Lines() []PreviewLine {
	var lines []PreviewLine
	add := func(field, value string) {
		if value != "" {
			lines = append(lines, PreviewLine{Field: field, Value: value})
		}
	}

	add(FieldTarget, n.Target)
	switch {
	case n.Client != nil:
		c := n.Client
		add(FieldName, strings.TrimSpace(c.FirstName+" "+c.LastName))
		add(FieldEmail, c.Email)
		add(FieldPhone, c.Phone)
		add(FieldNotes, c.Notes)
	case n.Property != nil:
		p := n.Property
		add(FieldAddress, p.Address)
		add(FieldCity, p.City)
		add(FieldState, p.State)
		add(FieldZip, p.Zip)
		add(FieldPrice, FormatMoney(p.Price))
		add(FieldBedrooms, formatCount(p.Bedrooms))
		add(FieldBathrooms, formatHalf(p.Bathrooms))
	case n.Transaction != nil:
		t := n.Transaction
		add(FieldClientEmail, t.ClientEmail)
		add(FieldPropertyAddress, t.PropertyAddress)
		add(FieldPurchasePrice, FormatMoney(t.PurchasePrice))
		add(FieldDeposit, FormatMoney(t.Deposit))
		if t.ClosingDate != nil {
			add(FieldClosingDate, t.ClosingDate.Format(time.DateOnly))
		}
		add(FieldStatus, t.Status)
	}
	return lines
}

// Raw converts normalized values back to raw strings, used when a user edits
// a proposal and the merged set goes through validation again.
func (n NormalizedParams) Raw() Params {
	p := NewParams(n.Kind.Entity())
	p.Target = n.Target
	switch {
	case n.Client != nil && p.Client != nil:
		*p.Client = ClientParams(*n.Client)
	case n.Property != nil && p.Property != nil:
		pr := n.Property
		*p.Property = PropertyParams{
			Address:   pr.Address,
			City:      pr.City,
			State:     pr.State,
			Zip:       pr.Zip,
			Price:     FormatMoney(pr.Price),
			Bedrooms:  formatCount(pr.Bedrooms),
			Bathrooms: formatHalf(pr.Bathrooms),
		}
	case n.Transaction != nil && p.Transaction != nil:
		t := n.Transaction
		*p.Transaction = TransactionParams{
			ClientEmail:     t.ClientEmail,
			PropertyAddress: t.PropertyAddress,
			PurchasePrice:   FormatMoney(t.PurchasePrice),
			Deposit:         FormatMoney(t.Deposit),
			Status:          t.Status,
		}
		if t.ClosingDate != nil {
			p.Transaction.ClosingDate = t.ClosingDate.Format(time.DateOnly)
		}
	}
	return p
}

// FormatMoney renders a positive amount as "$1,234.50"; zero renders empty.
func FormatMoney(v float64) string {
	if v == 0 {
		return ""
	}
	// Beyond this the cent count no longer fits an int64.
	if math.Abs(v) >= 9e16 || math.IsNaN(v) {
		return fmt.Sprintf("$%.0f", v)
	}
	cents := int64(math.Round(v * 100))
	whole := strconv.FormatInt(cents/100, 10)
	for i := len(whole) - 3; i > 0; i -= 3 {
		whole = whole[:i] + "," + whole[i:]
	}
	if frac := cents % 100; frac != 0 {
		return fmt.Sprintf("$%s.%02d", whole, frac)
	}
	return "$" + whole
}

func formatCount(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatHalf(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
