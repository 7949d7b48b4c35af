package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/model"
)

func candidate(t *testing.T, kind model.OperationKind, fields map[string]string) model.Candidate {
	t.Helper()
	params := model.NewParams(kind.Entity())
	for name, value := range fields {
		require.NoError(t, params.Set(name, value))
	}
	return model.Candidate{Kind: kind, Params: params, Confidence: 0.9, Path: model.PathInference}
}

func errorFields(errs []model.FieldError) map[string]model.ErrorKind {
	out := make(map[string]model.ErrorKind, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Kind
	}
	return out
}

func TestValidator_CreateClient(t *testing.T) {
	v := New(DefaultPolicy())

	got, errs := v.Validate(candidate(t, model.KindCreateClient, map[string]string{
		model.FieldFirstName: "jane",
		model.FieldLastName:  "DOE",
		model.FieldEmail:     "  Jane@Example.COM ",
		model.FieldPhone:     "555.111.2222",
	}))

	require.Empty(t, errs)
	require.NotNil(t, got.Client)
	assert.Equal(t, model.KindCreateClient, got.Kind)
	assert.Equal(t, "Jane", got.Client.FirstName)
	assert.Equal(t, "Doe", got.Client.LastName)
	assert.Equal(t, "jane@example.com", got.Client.Email)
	assert.Equal(t, "(555) 111-2222", got.Client.Phone)
	assert.Empty(t, got.Warnings)
}

func TestValidator_FieldErrors(t *testing.T) {
	tests := []struct {
		fields map[string]string
		want   map[string]model.ErrorKind
		name   string
		kind   model.OperationKind
	}{
		{
			name: "malformed email",
			kind: model.KindCreateClient,
			fields: map[string]string{
				model.FieldEmail: "not-an-email",
			},
			want: map[string]model.ErrorKind{
				model.FieldEmail:     model.ErrMalformed,
				model.FieldFirstName: model.ErrMissing,
				model.FieldLastName:  model.ErrMissing,
			},
		},
		{
			name: "client without contact",
			kind: model.KindCreateClient,
			fields: map[string]string{
				model.FieldFirstName: "Jane",
				model.FieldLastName:  "Doe",
			},
			want: map[string]model.ErrorKind{model.FieldEmail: model.ErrMissing},
		},
		{
			name: "short phone",
			kind: model.KindCreateClient,
			fields: map[string]string{
				model.FieldFirstName: "Jane",
				model.FieldLastName:  "Doe",
				model.FieldPhone:     "555-12",
			},
			want: map[string]model.ErrorKind{model.FieldPhone: model.ErrMalformed},
		},
		{
			name: "phone with letters",
			kind: model.KindCreateClient,
			fields: map[string]string{
				model.FieldFirstName: "Jane",
				model.FieldLastName:  "Doe",
				model.FieldPhone:     "555-CALL-NOW",
			},
			want: map[string]model.ErrorKind{model.FieldPhone: model.ErrMalformed},
		},
		{
			name: "property price zero and bad state",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress: "42 Maple Ave",
				model.FieldPrice:   "$0",
				model.FieldState:   "Illinois",
			},
			want: map[string]model.ErrorKind{
				model.FieldPrice: model.ErrOutOfRange,
				model.FieldState: model.ErrMalformed,
			},
		},
		{
			name: "price beyond the ceiling",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress: "42 Maple Ave",
				model.FieldPrice:   "1e17",
			},
			want: map[string]model.ErrorKind{model.FieldPrice: model.ErrOutOfRange},
		},
		{
			name: "price scaled past the ceiling",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress: "42 Maple Ave",
				model.FieldPrice:   "100000000000 million",
			},
			want: map[string]model.ErrorKind{model.FieldPrice: model.ErrOutOfRange},
		},
		{
			name: "price that overflows",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress: "42 Maple Ave",
				model.FieldPrice:   "1e307 million",
			},
			want: map[string]model.ErrorKind{model.FieldPrice: model.ErrMalformed},
		},
		{
			name: "too many bedrooms",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress:   "42 Maple Ave",
				model.FieldPrice:     "450k",
				model.FieldBedrooms:  "51",
				model.FieldBathrooms: "2.25",
			},
			want: map[string]model.ErrorKind{
				model.FieldBedrooms:  model.ErrOutOfRange,
				model.FieldBathrooms: model.ErrMalformed,
			},
		},
		{
			name: "deposit over price",
			kind: model.KindCreateTransaction,
			fields: map[string]string{
				model.FieldClientEmail:     "jane@example.com",
				model.FieldPropertyAddress: "12 Oak St",
				model.FieldPurchasePrice:   "$100,000",
				model.FieldDeposit:         "$150,000",
			},
			want: map[string]model.ErrorKind{model.FieldDeposit: model.ErrConflicting},
		},
		{
			name: "transaction missing everything",
			kind: model.KindCreateTransaction,
			fields: map[string]string{
				model.FieldClosingDate: "someday",
				model.FieldStatus:      "maybe",
			},
			want: map[string]model.ErrorKind{
				model.FieldClientEmail:     model.ErrMissing,
				model.FieldPropertyAddress: model.ErrMissing,
				model.FieldPurchasePrice:   model.ErrMissing,
				model.FieldClosingDate:     model.ErrMalformed,
				model.FieldStatus:          model.ErrMalformed,
			},
		},
		{
			name: "update without target or changes",
			kind: model.KindUpdateClient,
			want: map[string]model.ErrorKind{
				model.FieldTarget: model.ErrMissing,
				FieldChanges:      model.ErrMissing,
			},
		},
		{
			name: "find without filters",
			kind: model.KindFindProperty,
			want: map[string]model.ErrorKind{model.FieldTarget: model.ErrMissing},
		},
		{
			name: "address without number",
			kind: model.KindCreateProperty,
			fields: map[string]string{
				model.FieldAddress: "Maple Avenue",
				model.FieldPrice:   "450000",
				model.FieldZip:     "6270",
			},
			want: map[string]model.ErrorKind{
				model.FieldAddress: model.ErrMalformed,
				model.FieldZip:     model.ErrMalformed,
			},
		},
	}

	v := New(DefaultPolicy())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := v.Validate(candidate(t, tt.kind, tt.fields))
			assert.Equal(t, model.NormalizedParams{}, got, "errors and params are never both returned")
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.want, errorFields(errs))
			for _, e := range errs {
				assert.NotEmpty(t, e.Message)
				assert.NotEmpty(t, e.Example, "field %s needs an example", e.Field)
			}
		})
	}
}

func TestValidator_NegativeMoneyAlwaysFails(t *testing.T) {
	v := New(DefaultPolicy())
	cases := []struct {
		kind  model.OperationKind
		field string
	}{
		{model.KindCreateProperty, model.FieldPrice},
		{model.KindUpdateProperty, model.FieldPrice},
		{model.KindFindProperty, model.FieldPrice},
		{model.KindCreateTransaction, model.FieldPurchasePrice},
		{model.KindUpdateTransaction, model.FieldDeposit},
		{model.KindFindTransaction, model.FieldDeposit},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind)+"/"+tc.field, func(t *testing.T) {
			cand := candidate(t, tc.kind, map[string]string{tc.field: "-$5,000"})
			cand.Params.Target = "7"
			_, errs := v.Validate(cand)
			assert.Equal(t, model.ErrOutOfRange, errorFields(errs)[tc.field])
		})
	}
}

func TestValidator_PhonePolicy(t *testing.T) {
	v := New(DefaultPolicy())

	tests := []struct {
		input       string
		want        string
		wantWarning bool
		wantErr     bool
	}{
		{input: "(555) 111-2222", want: "(555) 111-2222"},
		{input: "+1 555 111 2222", want: "(555) 111-2222"},
		{input: "15551112222", want: "(555) 111-2222"},
		{input: "555-111-222", want: "555111222", wantWarning: true},
		{input: "555-1112", want: "5551112", wantWarning: true},
		{input: "+44 20 7946 0958", want: "442079460958", wantWarning: true},
		{input: "555-111", wantErr: true},
		{input: "1234567890123456", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, errs := v.Validate(candidate(t, model.KindCreateClient, map[string]string{
				model.FieldFirstName: "Jane",
				model.FieldLastName:  "Doe",
				model.FieldPhone:     tt.input,
			}))
			if tt.wantErr {
				assert.Equal(t, model.ErrMalformed, errorFields(errs)[model.FieldPhone])
				return
			}
			require.Empty(t, errs)
			assert.Equal(t, tt.want, got.Client.Phone)
			if tt.wantWarning {
				require.Len(t, got.Warnings, 1)
				assert.Contains(t, got.Warnings[0], tt.want)
			} else {
				assert.Empty(t, got.Warnings)
			}
		})
	}
}

func TestValidator_Property(t *testing.T) {
	v := New(DefaultPolicy())

	got, errs := v.Validate(candidate(t, model.KindCreateProperty, map[string]string{
		model.FieldAddress:   " 42  Maple Ave ",
		model.FieldCity:      "springfield",
		model.FieldState:     "il",
		model.FieldZip:       "627041234",
		model.FieldPrice:     "$450k",
		model.FieldBedrooms:  "3",
		model.FieldBathrooms: "2.5",
	}))

	require.Empty(t, errs)
	p := got.Property
	require.NotNil(t, p)
	assert.Equal(t, "42 Maple Ave", p.Address)
	assert.Equal(t, "Springfield", p.City)
	assert.Equal(t, "IL", p.State)
	assert.Equal(t, "62704-1234", p.Zip)
	assert.InDelta(t, 450000, p.Price, 0.001)
	require.NotNil(t, p.Bedrooms)
	assert.Equal(t, 3, *p.Bedrooms)
	require.NotNil(t, p.Bathrooms)
	assert.InDelta(t, 2.5, *p.Bathrooms, 0.001)
}

func TestValidator_Transaction(t *testing.T) {
	v := New(DefaultPolicy())

	got, errs := v.Validate(candidate(t, model.KindCreateTransaction, map[string]string{
		model.FieldClientEmail:     "JANE@example.com",
		model.FieldPropertyAddress: "12 Oak St",
		model.FieldPurchasePrice:   "1.2m",
		model.FieldDeposit:         "$10,000",
		model.FieldClosingDate:     "March 1, 2026",
		model.FieldStatus:          "Under Contract",
	}))

	require.Empty(t, errs)
	tx := got.Transaction
	require.NotNil(t, tx)
	assert.Equal(t, "jane@example.com", tx.ClientEmail)
	assert.InDelta(t, 1200000, tx.PurchasePrice, 0.001)
	assert.InDelta(t, 10000, tx.Deposit, 0.001)
	require.NotNil(t, tx.ClosingDate)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *tx.ClosingDate)
	assert.Equal(t, StatusUnderContract, tx.Status)
}

func TestValidator_UpdateAndFind(t *testing.T) {
	v := New(DefaultPolicy())

	cand := candidate(t, model.KindUpdateClient, map[string]string{model.FieldPhone: "555 222 3333"})
	cand.Params.Target = "Jane@Example.com"
	got, errs := v.Validate(cand)
	require.Empty(t, errs)
	assert.Equal(t, "jane@example.com", got.Target)
	assert.Equal(t, "(555) 222-3333", got.Client.Phone)

	cand = candidate(t, model.KindFindClient, nil)
	cand.Params.Target = "#42"
	got, errs = v.Validate(cand)
	require.Empty(t, errs)
	assert.Equal(t, "42", got.Target)
}

func TestValidator_InvalidOperation(t *testing.T) {
	v := New(DefaultPolicy())

	_, errs := v.Validate(model.Candidate{})
	require.Len(t, errs, 1)
	assert.Equal(t, FieldOperation, errs[0].Field)
	assert.Equal(t, model.ErrMissing, errs[0].Kind)

	_, errs = v.Validate(model.Candidate{Kind: model.KindCreateClient, Params: model.NewParams(model.EntityProperty)})
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrConflicting, errs[0].Kind)
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "$450,000", want: 450000},
		{input: "450k", want: 450000},
		{input: "1.2m", want: 1200000},
		{input: "2 million", want: 2000000},
		{input: "$ 1,250.50", want: 1250.5},
		{input: "-$5", want: -5},
		{input: "$-5", want: -5},
		{input: "75 thousand", want: 75000},
		{input: "1e17", want: 1e17},
		{input: "abc", wantErr: true},
		{input: "$", wantErr: true},
		{input: "1e307 million", wantErr: true},
		{input: "1e400", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseMoney(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{"2026-09-04", "09/04/2026", "9/4/26", "Sept. 4, 2026", "sep 4 2026", "September 4, 2026"} {
		t.Run(input, func(t *testing.T) {
			got, err := parseDate(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := parseDate("next tuesday")
	assert.Error(t, err)
}
