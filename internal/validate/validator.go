// Package validate checks candidate parameters and converts them into typed,
// normalized values.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/parcel/internal/model"
)

// FieldOperation names the pseudo-field reported when the operation itself
// cannot be determined.
const FieldOperation = "operation"

// FieldChanges names the pseudo-field reported when an update changes nothing.
const FieldChanges = "changes"

// Policy holds the tunable limits. A Policy is a plain value; callers build
// one at startup and pass it in.
type Policy struct {
	MaxAmount      float64
	MinPhoneDigits int
	MaxPhoneDigits int
	MaxRooms       int
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAmount:      1e12,
		MinPhoneDigits: 7,
		MaxPhoneDigits: 15,
		MaxRooms:       50,
	}
}

// Examples maps each field to a sample of acceptable input.
var Examples = map[string]string{
	FieldOperation:             "create client Jane Doe, jane@example.com",
	FieldChanges:               "update client #12 phone to (555) 111-2222",
	model.FieldTarget:          "#12 or jane@example.com",
	model.FieldFirstName:       "Jane",
	model.FieldLastName:        "Doe",
	model.FieldEmail:           "jane@example.com",
	model.FieldPhone:           "(555) 111-2222",
	model.FieldNotes:           "prefers text messages",
	model.FieldAddress:         "42 Maple Ave",
	model.FieldCity:            "Springfield",
	model.FieldState:           "IL",
	model.FieldZip:             "62704",
	model.FieldPrice:           "$450,000",
	model.FieldBedrooms:        "3",
	model.FieldBathrooms:       "2.5",
	model.FieldClientEmail:     "jane@example.com",
	model.FieldPropertyAddress: "42 Maple Ave",
	model.FieldPurchasePrice:   "$450,000",
	model.FieldDeposit:         "$10,000",
	model.FieldClosingDate:     "2026-03-01",
	model.FieldStatus:          "under_contract",
}

var idExpr = regexp.MustCompile(`^#?\d+$`)

// Validator checks candidates against the field rules. It is safe for
// concurrent use.
type Validator struct {
	fields *validator.Validate
	policy Policy
}

// New creates a validator with the given policy. Zero limits fall back to
// the defaults.
func New(policy Policy) *Validator {
	def := DefaultPolicy()
	if policy.MinPhoneDigits <= 0 {
		policy.MinPhoneDigits = def.MinPhoneDigits
	}
	if policy.MaxPhoneDigits <= 0 {
		policy.MaxPhoneDigits = def.MaxPhoneDigits
	}
	if policy.MaxRooms <= 0 {
		policy.MaxRooms = def.MaxRooms
	}
	if policy.MaxAmount <= 0 {
		policy.MaxAmount = def.MaxAmount
	}
	return &Validator{
		fields: validator.New(validator.WithRequiredStructEnabled()),
		policy: policy,
	}
}

// collector gathers field errors and warnings in check order.
type collector struct {
	errs     []model.FieldError
	warnings []string
}

func (c *collector) fail(field string, kind model.ErrorKind, format string, args ...any) {
	c.errs = append(c.errs, model.FieldError{
		Field:   field,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Example: Examples[field],
	})
}

func (c *collector) failed(field string) bool {
	for _, e := range c.errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validate returns either a complete normalized parameter set or a non-empty
// list of field errors, never both.
func (v *Validator) Validate(cand model.Candidate) (model.NormalizedParams, []model.FieldError) {
	var c collector

	if !cand.Kind.Valid() {
		c.fail(FieldOperation, model.ErrMissing, "could not tell which record to create, update or find")
		return model.NormalizedParams{}, c.errs
	}
	if cand.Params.Entity() != cand.Kind.Entity() {
		c.fail(FieldOperation, model.ErrConflicting, "the details given do not describe a %s", cand.Kind.Entity())
		return model.NormalizedParams{}, c.errs
	}

	out := model.NormalizedParams{Kind: cand.Kind}
	out.Target = v.target(cand.Kind.Entity(), cand.Params.Target)

	switch cand.Kind.Entity() {
	case model.EntityClient:
		out.Client = v.client(cand.Params.Client, &c)
	case model.EntityProperty:
		out.Property = v.property(cand.Params.Property, &c)
	case model.EntityTransaction:
		out.Transaction = v.transaction(cand.Params.Transaction, &c)
	}

	v.required(cand, &c)

	if len(c.errs) > 0 {
		return model.NormalizedParams{}, c.errs
	}
	out.Warnings = c.warnings
	return out, nil
}

// target normalizes a record reference: ids lose their "#", emails are
// lower-cased and phone numbers take the canonical form when possible.
func (v *Validator) target(entity model.Entity, raw string) string {
	s := collapse(raw)
	switch {
	case s == "":
		return ""
	case idExpr.MatchString(s):
		return strings.TrimPrefix(s, "#")
	case strings.Contains(s, "@"):
		return strings.ToLower(s)
	case entity == model.EntityClient:
		if p, err := normalizePhone(s, v.policy); err == nil && p.warning == "" {
			return p.value
		}
	}
	return s
}

func (v *Validator) required(cand model.Candidate, c *collector) {
	p := cand.Params
	need := func(fields ...string) {
		for _, f := range fields {
			if p.Get(f) == "" && !c.failed(f) {
				c.fail(f, model.ErrMissing, "%s is required to %s", strings.ReplaceAll(f, "_", " "), strings.ToLower(cand.Kind.Title()))
			}
		}
	}

	switch cand.Kind.Action() {
	case model.ActionCreate:
		switch cand.Kind.Entity() {
		case model.EntityClient:
			need(model.FieldFirstName, model.FieldLastName)
			if p.Get(model.FieldEmail) == "" && p.Get(model.FieldPhone) == "" {
				c.fail(model.FieldEmail, model.ErrMissing, "an email or phone number is required to create a client")
			}
		case model.EntityProperty:
			need(model.FieldAddress, model.FieldPrice)
		case model.EntityTransaction:
			need(model.FieldClientEmail, model.FieldPropertyAddress, model.FieldPurchasePrice)
		}
	case model.ActionUpdate:
		if strings.TrimSpace(p.Target) == "" {
			c.fail(model.FieldTarget, model.ErrMissing, "say which %s to update, by record id or %s", cand.Kind.Entity(), naturalKeyName(cand.Kind.Entity()))
		}
		if len(p.Present()) == 0 {
			c.fail(FieldChanges, model.ErrMissing, "no fields to change were given")
		}
	case model.ActionFind:
		if strings.TrimSpace(p.Target) == "" && len(p.Present()) == 0 {
			c.fail(model.FieldTarget, model.ErrMissing, "give a record id or a field to search by")
		}
	}
}

func naturalKeyName(e model.Entity) string {
	switch e {
	case model.EntityClient:
		return "email or phone"
	case model.EntityProperty:
		return "address"
	default:
		return "property address"
	}
}

func (v *Validator) client(p *model.ClientParams, c *collector) *model.ClientFields {
	out := &model.ClientFields{Notes: strings.TrimSpace(p.Notes)}
	out.FirstName = v.name(model.FieldFirstName, p.FirstName, c)
	out.LastName = v.name(model.FieldLastName, p.LastName, c)
	out.Email = v.email(model.FieldEmail, p.Email, c)
	if p.Phone != "" {
		res, err := normalizePhone(p.Phone, v.policy)
		if err != nil {
			c.fail(model.FieldPhone, model.ErrMalformed, "%q is not a phone number; it needs %d to %d digits", p.Phone, v.policy.MinPhoneDigits, v.policy.MaxPhoneDigits)
		} else {
			out.Phone = res.value
			if res.warning != "" {
				c.warnings = append(c.warnings, res.warning)
			}
		}
	}
	return out
}

func (v *Validator) property(p *model.PropertyParams, c *collector) *model.PropertyFields {
	out := &model.PropertyFields{}
	out.Address = v.address(model.FieldAddress, p.Address, c)
	if p.City != "" {
		if !nameExpr.MatchString(collapse(p.City)) {
			c.fail(model.FieldCity, model.ErrMalformed, "%q is not a city name", p.City)
		} else {
			out.City = titleName(p.City)
		}
	}
	if p.State != "" {
		state := strings.ToUpper(collapse(p.State))
		if !usStates[state] {
			c.fail(model.FieldState, model.ErrMalformed, "%q is not a two-letter US state code", p.State)
		} else {
			out.State = state
		}
	}
	if p.Zip != "" {
		zip := normalizeZip(p.Zip)
		if err := v.fields.Var(zip, "postcode_iso3166_alpha2=US"); err != nil {
			c.fail(model.FieldZip, model.ErrMalformed, "%q is not a 5 or 9 digit zip code", p.Zip)
		} else {
			out.Zip = zip
		}
	}
	out.Price = v.money(model.FieldPrice, p.Price, c)
	if n, ok := v.rooms(model.FieldBedrooms, p.Bedrooms, false, c); ok {
		beds := int(n)
		out.Bedrooms = &beds
	}
	if n, ok := v.rooms(model.FieldBathrooms, p.Bathrooms, true, c); ok {
		out.Bathrooms = &n
	}
	return out
}

func (v *Validator) transaction(p *model.TransactionParams, c *collector) *model.TransactionFields {
	out := &model.TransactionFields{}
	out.ClientEmail = v.email(model.FieldClientEmail, p.ClientEmail, c)
	out.PropertyAddress = v.address(model.FieldPropertyAddress, p.PropertyAddress, c)
	out.PurchasePrice = v.money(model.FieldPurchasePrice, p.PurchasePrice, c)
	out.Deposit = v.money(model.FieldDeposit, p.Deposit, c)
	if p.ClosingDate != "" {
		d, err := parseDate(p.ClosingDate)
		if err != nil {
			c.fail(model.FieldClosingDate, model.ErrMalformed, "%q is not a date", p.ClosingDate)
		} else {
			out.ClosingDate = &d
		}
	}
	if p.Status != "" {
		status, ok := normalizeStatus(p.Status)
		if !ok {
			c.fail(model.FieldStatus, model.ErrMalformed, "%q is not a status; use open, under_contract, closed or cancelled", p.Status)
		} else {
			out.Status = status
		}
	}

	if out.Deposit > 0 && out.PurchasePrice > 0 && out.Deposit > out.PurchasePrice {
		c.fail(model.FieldDeposit, model.ErrConflicting, "deposit %s is more than the purchase price %s",
			model.FormatMoney(out.Deposit), model.FormatMoney(out.PurchasePrice))
	}
	return out
}

func (v *Validator) name(field, raw string, c *collector) string {
	if raw == "" {
		return ""
	}
	if !nameExpr.MatchString(collapse(raw)) {
		c.fail(field, model.ErrMalformed, "%q is not a name", raw)
		return ""
	}
	return titleName(raw)
}

func (v *Validator) email(field, raw string, c *collector) string {
	if raw == "" {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := v.fields.Var(email, "email"); err != nil {
		c.fail(field, model.ErrMalformed, "%q is not a valid email address", raw)
		return ""
	}
	return email
}

func (v *Validator) address(field, raw string, c *collector) string {
	if raw == "" {
		return ""
	}
	addr := collapse(raw)
	if len(addr) < 5 || !strings.ContainsAny(addr, "0123456789") {
		c.fail(field, model.ErrMalformed, "%q is not a street address; include the house number", raw)
		return ""
	}
	return addr
}

func (v *Validator) money(field, raw string, c *collector) float64 {
	if raw == "" {
		return 0
	}
	amount, err := parseMoney(raw)
	if err != nil {
		c.fail(field, model.ErrMalformed, "%q is not an amount", raw)
		return 0
	}
	if amount <= 0 {
		c.fail(field, model.ErrOutOfRange, "%s must be greater than zero", strings.ReplaceAll(field, "_", " "))
		return 0
	}
	if amount > v.policy.MaxAmount {
		c.fail(field, model.ErrOutOfRange, "%s must be at most %s", strings.ReplaceAll(field, "_", " "), model.FormatMoney(v.policy.MaxAmount))
		return 0
	}
	return amount
}

func (v *Validator) rooms(field, raw string, half bool, c *collector) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := parseCount(raw, half)
	if err != nil {
		if half {
			c.fail(field, model.ErrMalformed, "%q is not a count; use whole or half numbers", raw)
		} else {
			c.fail(field, model.ErrMalformed, "%q is not a whole number", raw)
		}
		return 0, false
	}
	if n < 0 || n > float64(v.policy.MaxRooms) {
		c.fail(field, model.ErrOutOfRange, "%s must be between 0 and %d", field, v.policy.MaxRooms)
		return 0, false
	}
	return n, true
}
