// Package model defines the core data structures for the parcel pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Entity names a record type in the record store.
type Entity string

// Entity constants.
const (
	EntityClient      Entity = "client"
	EntityProperty    Entity = "property"
	EntityTransaction Entity = "transaction"
)

// Action names what an operation does to an entity.
type Action string

// Action constants.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionFind   Action = "find"
)

// OperationKind is the closed set of operations the pipeline can propose.
type OperationKind string

// Operation kinds.
const (
	KindCreateClient      OperationKind = "create_client"
	KindUpdateClient      OperationKind = "update_client"
	KindFindClient        OperationKind = "find_client"
	KindCreateProperty    OperationKind = "create_property"
	KindUpdateProperty    OperationKind = "update_property"
	KindFindProperty      OperationKind = "find_property"
	KindCreateTransaction OperationKind = "create_transaction"
	KindUpdateTransaction OperationKind = "update_transaction"
	KindFindTransaction   OperationKind = "find_transaction"
)

// AllKinds lists every operation kind in display order.
var AllKinds = []OperationKind{
	KindCreateClient, KindUpdateClient, KindFindClient,
	KindCreateProperty, KindUpdateProperty, KindFindProperty,
	KindCreateTransaction, KindUpdateTransaction, KindFindTransaction,
}

// NewOperationKind joins an action and an entity.
func NewOperationKind(action Action, entity Entity) OperationKind {
	return OperationKind(string(action) + "_" + string(entity))
}

// ParseOperationKind accepts "create_client", "create client" or "Create-Client".
func ParseOperationKind(s string) (OperationKind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, k := range AllKinds {
		if string(k) == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// Valid reports whether k is one of the known kinds.
func (k OperationKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Action returns the verb half of the kind.
func (k OperationKind) Action() Action {
	action, _, _ := strings.Cut(string(k), "_")
	return Action(action)
}

// Entity returns the noun half of the kind.
func (k OperationKind) Entity() Entity {
	_, entity, _ := strings.Cut(string(k), "_")
	return Entity(entity)
}

// Mutates reports whether executing the kind writes to the record store.
func (k OperationKind) Mutates() bool {
	return k.Action() != ActionFind
}

// Title renders the kind for previews, e.g. "Create client".
func (k OperationKind) Title() string {
	action := string(k.Action())
	if action == "" {
		return string(k)
	}
	return strings.ToUpper(action[:1]) + action[1:] + " " + string(k.Entity())
}

// Source tags where a piece of raw text came from.
type Source string

// Source constants.
const (
	SourceChat  Source = "chat"
	SourceEmail Source = "email"
)

// ExtractionPath records which extractor produced a candidate.
type ExtractionPath string

// Extraction paths.
const (
	PathInference ExtractionPath = "inference"
	PathPattern   ExtractionPath = "pattern"
)

// RawInput is free text submitted by a user. It is discarded once a
// Candidate has been extracted from it.
type RawInput struct {
	ReceivedAt time.Time
	Text       string
	Source     Source
	SessionID  string
}

// Exchange is one turn of prior conversation passed to the inference service.
type Exchange struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
