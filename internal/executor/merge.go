package executor

import "github.com/Veraticus/parcel/internal/model"

// overlay* copy every field set in src onto dst; used by updates.
// fill* copy only into fields dst leaves empty; used by merge.

func overlayClient(dst *model.ClientFields, src model.ClientFields) {
	setString(&dst.FirstName, src.FirstName, true)
	setString(&dst.LastName, src.LastName, true)
	setString(&dst.Email, src.Email, true)
	setString(&dst.Phone, src.Phone, true)
	setString(&dst.Notes, src.Notes, true)
}

func fillClient(dst *model.ClientFields, src model.ClientFields) {
	setString(&dst.FirstName, src.FirstName, false)
	setString(&dst.LastName, src.LastName, false)
	setString(&dst.Email, src.Email, false)
	setString(&dst.Phone, src.Phone, false)
	setString(&dst.Notes, src.Notes, false)
}

func overlayProperty(dst *model.PropertyFields, src model.PropertyFields) {
	setString(&dst.Address, src.Address, true)
	setString(&dst.City, src.City, true)
	setString(&dst.State, src.State, true)
	setString(&dst.Zip, src.Zip, true)
	setAmount(&dst.Price, src.Price, true)
	setPtr(&dst.Bedrooms, src.Bedrooms, true)
	setPtr(&dst.Bathrooms, src.Bathrooms, true)
}

func fillProperty(dst *model.PropertyFields, src model.PropertyFields) {
	setString(&dst.Address, src.Address, false)
	setString(&dst.City, src.City, false)
	setString(&dst.State, src.State, false)
	setString(&dst.Zip, src.Zip, false)
	setAmount(&dst.Price, src.Price, false)
	setPtr(&dst.Bedrooms, src.Bedrooms, false)
	setPtr(&dst.Bathrooms, src.Bathrooms, false)
}

func overlayTransaction(dst *model.TransactionFields, src model.TransactionFields) {
	setString(&dst.ClientEmail, src.ClientEmail, true)
	setString(&dst.PropertyAddress, src.PropertyAddress, true)
	setString(&dst.Status, src.Status, true)
	setAmount(&dst.PurchasePrice, src.PurchasePrice, true)
	setAmount(&dst.Deposit, src.Deposit, true)
	setPtr(&dst.ClosingDate, src.ClosingDate, true)
}

func fillTransaction(dst *model.TransactionFields, src model.TransactionFields) {
	setString(&dst.ClientEmail, src.ClientEmail, false)
	setString(&dst.PropertyAddress, src.PropertyAddress, false)
	setAmount(&dst.PurchasePrice, src.PurchasePrice, false)
	setAmount(&dst.Deposit, src.Deposit, false)
	setPtr(&dst.ClosingDate, src.ClosingDate, false)
}

func setString(dst *string, v string, overwrite bool) {
	if v != "" && (overwrite || *dst == "") {
		*dst = v
	}
}

func setAmount(dst *float64, v float64, overwrite bool) {
	if v != 0 && (overwrite || *dst == 0) {
		*dst = v
	}
}

func setPtr[T any](dst **T, v *T, overwrite bool) {
	if v != nil && (overwrite || *dst == nil) {
		*dst = v
	}
}
