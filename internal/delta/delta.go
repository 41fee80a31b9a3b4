// Package delta models the opaque EditDelta values produced by the editor
// collaborator (see the external interfaces section of the design docs).
// The chain and envelope only ever hash these values verbatim; only the
// authorship analyzer inspects their shape.
package delta

import (
	"encoding/json"
	"fmt"

	"github.com/ciphernom/bitquill/internal/canon"
)

// Op is one operation within a delta group: exactly one of Insert, Delete,
// or Retain is set, mirroring the editor's { insert | delete | retain }
// sum type. Retain may carry formatting Attributes.
type Op struct {
	Insert     *string        `json:"insert,omitempty"`
	Delete     *int           `json:"delete,omitempty"`
	Retain     *int           `json:"retain,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Group is one ordered batch of operations, as produced by a single editor
// mutation.
type Group struct {
	Ops []Op `json:"ops"`
}

// IsInsert reports whether this op is an insert, returning its text.
func (o Op) IsInsert() (string, bool) {
	if o.Insert == nil {
		return "", false
	}
	return *o.Insert, true
}

// IsDelete reports whether this op is a delete, returning its length.
func (o Op) IsDelete() (int, bool) {
	if o.Delete == nil {
		return 0, false
	}
	return *o.Delete, true
}

// IsRetain reports whether this op is a retain, returning its length.
func (o Op) IsRetain() (int, bool) {
	if o.Retain == nil {
		return 0, false
	}
	return *o.Retain, true
}

// Canonical renders the op as a canon.Object with a fixed key order
// (insert, delete, retain, attributes), omitting keys that are not set.
// This order is not dictated by the record layout — the delta's internal
// shape is opaque per the editor contract — but it must be fixed once so
// that re-hashing the same delta always agrees.
func (o Op) Canonical() canon.Object {
	var obj canon.Object
	if o.Insert != nil {
		obj = append(obj, canon.P("insert", *o.Insert))
	}
	if o.Delete != nil {
		obj = append(obj, canon.P("delete", *o.Delete))
	}
	if o.Retain != nil {
		obj = append(obj, canon.P("retain", *o.Retain))
	}
	if o.Attributes != nil {
		obj = append(obj, canon.P("attributes", map[string]any(o.Attributes)))
	}
	return obj
}

// Canonical renders the group as a canon.Object with a single "ops" array.
func (g Group) Canonical() canon.Object {
	ops := make([]any, len(g.Ops))
	for i, op := range g.Ops {
		ops[i] = op.Canonical()
	}
	return canon.Object{canon.P("ops", ops)}
}

// CanonicalGroups renders an ordered slice of Groups as a canon array,
// suitable for embedding as the "deltas" field of an epoch-hash input.
func CanonicalGroups(groups []Group) []any {
	out := make([]any, len(groups))
	for i, g := range groups {
		out[i] = g.Canonical()
	}
	return out
}

// ParseGroup parses one delta group from its JSON wire representation.
func ParseGroup(raw json.RawMessage) (Group, error) {
	var g Group
	if err := json.Unmarshal(raw, &g); err != nil {
		return Group{}, fmt.Errorf("delta: invalid group: %w", err)
	}
	return g, nil
}
