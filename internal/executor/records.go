package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

func (e *Executor) createClient(f *model.ClientFields) createPlan {
	fields := deref(f)
	return createPlan{
		entity: model.EntityClient,
		keys: []naturalKey{
			{field: model.FieldEmail, value: fields.Email},
			{field: model.FieldPhone, value: fields.Phone},
		},
		insert: func(ctx context.Context) (int64, error) {
			c := model.Client{ClientFields: fields}
			err := e.store.CreateClient(ctx, &c)
			return c.ID, err
		},
		replace: func(ctx context.Context, id int64) error {
			c := model.Client{ClientFields: fields, ID: id}
			return e.store.UpdateClient(ctx, &c)
		},
		merge: func(ctx context.Context, id int64) error {
			c, err := e.store.GetClient(ctx, id)
			if err != nil {
				return err
			}
			fillClient(&c.ClientFields, fields)
			return e.store.UpdateClient(ctx, c)
		},
	}
}

func (e *Executor) createProperty(f *model.PropertyFields) createPlan {
	fields := deref(f)
	return createPlan{
		entity: model.EntityProperty,
		keys:   []naturalKey{{field: model.FieldAddress, value: fields.Address}},
		insert: func(ctx context.Context) (int64, error) {
			p := model.Property{PropertyFields: fields}
			err := e.store.CreateProperty(ctx, &p)
			return p.ID, err
		},
		replace: func(ctx context.Context, id int64) error {
			p := model.Property{PropertyFields: fields, ID: id}
			return e.store.UpdateProperty(ctx, &p)
		},
		merge: func(ctx context.Context, id int64) error {
			p, err := e.store.GetProperty(ctx, id)
			if err != nil {
				return err
			}
			fillProperty(&p.PropertyFields, fields)
			return e.store.UpdateProperty(ctx, p)
		},
	}
}

// createTransaction resolves the sale's client and property before planning
// the insert. Either party missing is a user error.
func (e *Executor) createTransaction(ctx context.Context, f *model.TransactionFields) (createPlan, error) {
	fields := deref(f)
	clientID, propertyID, err := e.parties(ctx, fields)
	if err != nil {
		return createPlan{}, err
	}
	if fields.Status == "" {
		fields.Status = "open"
	}

	return createPlan{
		entity: model.EntityTransaction,
		keys:   []naturalKey{{field: model.FieldPropertyAddress, value: fields.PropertyAddress}},
		insert: func(ctx context.Context) (int64, error) {
			t := model.Transaction{TransactionFields: fields, ClientID: clientID, PropertyID: propertyID}
			err := e.store.CreateTransaction(ctx, &t)
			return t.ID, err
		},
		replace: func(ctx context.Context, id int64) error {
			t := model.Transaction{TransactionFields: fields, ID: id, ClientID: clientID, PropertyID: propertyID}
			return e.store.UpdateTransaction(ctx, &t)
		},
		merge: func(ctx context.Context, id int64) error {
			t, err := e.store.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			fillTransaction(&t.TransactionFields, fields)
			return e.store.UpdateTransaction(ctx, t)
		},
	}, nil
}

// parties looks up the client and property a sale refers to.
func (e *Executor) parties(ctx context.Context, f model.TransactionFields) (clientID, propertyID int64, err error) {
	clientID, err = e.store.LookupID(ctx, model.EntityClient, model.FieldEmail, f.ClientEmail)
	if errors.Is(err, common.ErrNotFound) {
		return 0, 0, common.NewUserError(fmt.Sprintf("no client has email %s; create the client first", f.ClientEmail), err)
	}
	if err != nil {
		return 0, 0, err
	}
	propertyID, err = e.store.LookupID(ctx, model.EntityProperty, model.FieldAddress, f.PropertyAddress)
	if errors.Is(err, common.ErrNotFound) {
		return 0, 0, common.NewUserError(fmt.Sprintf("no property at %s; create the property first", f.PropertyAddress), err)
	}
	if err != nil {
		return 0, 0, err
	}
	return clientID, propertyID, nil
}

func (e *Executor) updateClient(ctx context.Context, target string, f *model.ClientFields) (model.ExecutionResult, error) {
	id, err := e.resolveTarget(ctx, model.EntityClient, target)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	c, err := e.store.GetClient(ctx, id)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	changes := deref(f)
	keys := []naturalKey{{field: model.FieldEmail, value: changes.Email}, {field: model.FieldPhone, value: changes.Phone}}
	if conflict, err := e.findConflict(ctx, model.EntityClient, keys, id); err != nil || conflict != nil {
		return updateConflict(conflict, err)
	}

	overlayClient(&c.ClientFields, changes)
	if err := e.store.UpdateClient(ctx, c); err != nil {
		return e.updateFailure(ctx, model.EntityClient, keys, id, err)
	}
	return model.ExecutionResult{RecordID: id}, nil
}

func (e *Executor) updateProperty(ctx context.Context, target string, f *model.PropertyFields) (model.ExecutionResult, error) {
	id, err := e.resolveTarget(ctx, model.EntityProperty, target)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	p, err := e.store.GetProperty(ctx, id)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	changes := deref(f)
	keys := []naturalKey{{field: model.FieldAddress, value: changes.Address}}
	if conflict, err := e.findConflict(ctx, model.EntityProperty, keys, id); err != nil || conflict != nil {
		return updateConflict(conflict, err)
	}

	overlayProperty(&p.PropertyFields, changes)
	if err := e.store.UpdateProperty(ctx, p); err != nil {
		return e.updateFailure(ctx, model.EntityProperty, keys, id, err)
	}
	return model.ExecutionResult{RecordID: id}, nil
}

func (e *Executor) updateTransaction(ctx context.Context, target string, f *model.TransactionFields) (model.ExecutionResult, error) {
	id, err := e.resolveTarget(ctx, model.EntityTransaction, target)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	changes := deref(f)
	overlayTransaction(&t.TransactionFields, changes)
	if changes.ClientEmail != "" || changes.PropertyAddress != "" {
		t.ClientID, t.PropertyID, err = e.parties(ctx, t.TransactionFields)
		if err != nil {
			return model.ExecutionResult{}, err
		}
	}

	if err := e.store.UpdateTransaction(ctx, t); err != nil {
		keys := []naturalKey{{field: model.FieldPropertyAddress, value: t.PropertyAddress}}
		return e.updateFailure(ctx, model.EntityTransaction, keys, id, err)
	}
	return model.ExecutionResult{RecordID: id}, nil
}

func updateConflict(conflict *model.Conflict, err error) (model.ExecutionResult, error) {
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return conflictResult(*conflict, common.ErrDuplicateEntry)
}

func (e *Executor) updateFailure(ctx context.Context, entity model.Entity, keys []naturalKey, id int64, err error) (model.ExecutionResult, error) {
	return e.writeFailure(ctx, createPlan{entity: entity, keys: keys}, id, err)
}

func (e *Executor) findClients(ctx context.Context, target string, f *model.ClientFields) (model.ExecutionResult, error) {
	filter := targetFilter(model.EntityClient, target)
	fields := deref(f)
	if name := strings.TrimSpace(fields.FirstName + " " + fields.LastName); name != "" {
		filter.Name = name
	}
	if fields.Email != "" {
		filter.Email = fields.Email
	}
	if fields.Phone != "" {
		filter.Phone = fields.Phone
	}

	ids, err := e.findWith(ctx, model.EntityClient, filter, 0)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return found(model.EntityClient, ids), nil
}

func (e *Executor) findProperties(ctx context.Context, target string, f *model.PropertyFields) (model.ExecutionResult, error) {
	filter := targetFilter(model.EntityProperty, target)
	fields := deref(f)
	if fields.Address != "" {
		filter.Address = fields.Address
	}
	if fields.City != "" {
		filter.City = fields.City
	}

	ids, err := e.findWith(ctx, model.EntityProperty, filter, 0)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return found(model.EntityProperty, ids), nil
}

func (e *Executor) findTransactions(ctx context.Context, target string, f *model.TransactionFields) (model.ExecutionResult, error) {
	filter := targetFilter(model.EntityTransaction, target)
	fields := deref(f)
	if fields.ClientEmail != "" {
		filter.Email = fields.ClientEmail
	}
	if fields.PropertyAddress != "" {
		filter.Address = fields.PropertyAddress
	}
	if fields.Status != "" {
		filter.Status = fields.Status
	}

	ids, err := e.findWith(ctx, model.EntityTransaction, filter, 0)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return found(model.EntityTransaction, ids), nil
}

func found(entity model.Entity, ids []int64) model.ExecutionResult {
	res := model.ExecutionResult{RecordIDs: ids}
	switch len(ids) {
	case 0:
		res.Warnings = []string{fmt.Sprintf("no %s matched", entity)}
	case 1:
		res.RecordID = ids[0]
	}
	return res
}

// targetFilter turns a record reference into a find filter.
func targetFilter(entity model.Entity, target string) model.RecordFilter {
	var f model.RecordFilter
	if target == "" {
		return f
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		f.ID = id
		return f
	}
	switch entity {
	case model.EntityClient:
		switch {
		case strings.Contains(target, "@"):
			f.Email = target
		case isPhone(target):
			f.Phone = target
		default:
			f.Name = target
		}
	case model.EntityProperty:
		f.Address = target
	case model.EntityTransaction:
		if strings.Contains(target, "@") {
			f.Email = target
		} else {
			f.Address = target
		}
	}
	return f
}

// resolveTarget finds the single record a reference names.
func (e *Executor) resolveTarget(ctx context.Context, entity model.Entity, target string) (int64, error) {
	if target == "" {
		return 0, common.NewUserError(fmt.Sprintf("say which %s to change", entity), common.ErrNotFound)
	}

	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		if err := e.exists(ctx, entity, id); err != nil {
			return 0, err
		}
		return id, nil
	}

	// Exact natural keys first.
	var field string
	switch {
	case entity == model.EntityClient && strings.Contains(target, "@"):
		field = model.FieldEmail
	case entity == model.EntityClient && isPhone(target):
		field = model.FieldPhone
	case entity == model.EntityProperty:
		field = model.FieldAddress
	case entity == model.EntityTransaction && !strings.Contains(target, "@"):
		field = model.FieldPropertyAddress
	}
	if field != "" {
		id, err := e.store.LookupID(ctx, entity, field, target)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return 0, err
		}
	}

	ids, err := e.findWith(ctx, entity, targetFilter(entity, target), 10)
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, common.NewUserError(fmt.Sprintf("no %s matches %q", entity, target), common.ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return 0, common.NewUserError(fmt.Sprintf("%d records match %q; use a record id like #%d", len(ids), target, ids[0]), common.ErrNotFound)
	}
}

// findWith returns the ids of up to limit records matching filter.
func (e *Executor) findWith(ctx context.Context, entity model.Entity, filter model.RecordFilter, limit int) ([]int64, error) {
	filter.Limit = limit
	ids := []int64{}
	switch entity {
	case model.EntityClient:
		clients, err := e.store.FindClients(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, c := range clients {
			ids = append(ids, c.ID)
		}
	case model.EntityProperty:
		properties, err := e.store.FindProperties(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, p := range properties {
			ids = append(ids, p.ID)
		}
	case model.EntityTransaction:
		txns, err := e.store.FindTransactions(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, t := range txns {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (e *Executor) exists(ctx context.Context, entity model.Entity, id int64) error {
	var err error
	switch entity {
	case model.EntityClient:
		_, err = e.store.GetClient(ctx, id)
	case model.EntityProperty:
		_, err = e.store.GetProperty(ctx, id)
	case model.EntityTransaction:
		_, err = e.store.GetTransaction(ctx, id)
	}
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError(fmt.Sprintf("there is no %s #%d", entity, id), err)
	}
	return err
}

func isPhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" ()-.+", r):
		default:
			return false
		}
	}
	return digits >= 7
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
