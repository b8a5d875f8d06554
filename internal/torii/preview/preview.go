// Package preview computes the field-level diff shown to a human before a
// mutating tracker operation is allowed to execute.
//
// A Preview is a value object: it has no identity, is regenerated for every
// approval request, and never touches external state. The caller supplies
// both the desired fields and the current field values; Build only compares
// them.
package preview

import (
	"sort"

	"github.com/bdobrica/Torii/internal/torii/ops"
)

// FieldChange is one entry of a preview: the current and proposed value of a
// single field. From is empty for create-like operations.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
}

// Preview is an ordered list of field changes. Order is canonical (see
// fieldOrder) so two previews of the same operation render identically.
type Preview []FieldChange

// Get returns the change recorded for field, if any.
func (p Preview) Get(field string) (FieldChange, bool) {
	for _, c := range p {
		if c.Field == field {
			return c, true
		}
	}
	return FieldChange{}, false
}

// Proposed returns the proposed values as a field map.
func (p Preview) Proposed() ops.Fields {
	out := make(ops.Fields, len(p))
	for _, c := range p {
		out[c.Field] = c.To
	}
	return out
}

// fieldOrder fixes the display order of well-known fields. Unknown fields
// sort alphabetically after these.
var fieldOrder = []string{
	"project", "summary", "description", "issue_type",
	"assignee", "priority", "labels",
	"status", "comment", "visibility", "keys",
}

// createDefaults are the values filled in for create operations when the
// human did not specify them. They mirror the tracker's own defaults so the
// preview shows exactly what will be created.
var createDefaults = map[string]string{
	"issue_type": "Task",
	"assignee":   "Unassigned",
	"priority":   "Medium",
}

// mandatoryCreation lists fields that are always shown in a preview even
// when the desired value equals the current one, because the human must see
// them to judge the operation.
var mandatoryCreation = map[string]bool{
	"project":    true,
	"summary":    true,
	"issue_type": true,
	"priority":   true,
}

// Build computes the preview for an operation.
//
// Create-like kinds show every desired field plus the creation defaults for
// anything unspecified. Update-like kinds show only the fields that differ
// from current, except mandatory creation fields which are always shown.
// The target identity field ("key"/"keys") is carried on the approval
// request, not in the preview, and is skipped here.
func Build(kind ops.Kind, desired, current ops.Fields) Preview {
	if kind.CreateLike() {
		return buildCreate(kind, desired)
	}
	return buildUpdate(desired, current)
}

func buildCreate(kind ops.Kind, desired ops.Fields) Preview {
	merged := desired.Clone()
	if kind == ops.KindCreate {
		for field, def := range createDefaults {
			if merged[field] == "" {
				merged[field] = def
			}
		}
	}

	var p Preview
	for _, field := range orderedFields(merged) {
		if isTargetField(field) {
			continue
		}
		p = append(p, FieldChange{Field: field, To: merged[field]})
	}
	return p
}

func buildUpdate(desired, current ops.Fields) Preview {
	var p Preview
	for _, field := range orderedFields(desired) {
		if isTargetField(field) {
			continue
		}
		to := desired[field]
		from := current[field]
		if to == from && !mandatoryCreation[field] {
			continue
		}
		p = append(p, FieldChange{Field: field, From: from, To: to})
	}
	return p
}

// Apply returns current with every previewed change applied. Restricted to
// the previewed fields, the result matches the desired state the preview was
// built from.
func Apply(p Preview, current ops.Fields) ops.Fields {
	out := current.Clone()
	for _, c := range p {
		out[c.Field] = c.To
	}
	return out
}

func isTargetField(field string) bool {
	return field == "key" || field == "keys"
}

// orderedFields returns the keys of f in canonical order: well-known fields
// first (fieldOrder), the rest alphabetically.
func orderedFields(f ops.Fields) []string {
	var known, rest []string
	seen := make(map[string]bool, len(f))
	for _, field := range fieldOrder {
		if _, ok := f[field]; ok {
			known = append(known, field)
			seen[field] = true
		}
	}
	for field := range f {
		if !seen[field] {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	return append(known, rest...)
}
