package ops

import (
	"embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemasFS embed.FS

// schemas holds one compiled JSON Schema per operation kind. The schemas are
// the authoritative definition of which fields each kind accepts and which
// are mandatory; the intent router must never invent values to satisfy them.
var schemas = mustCompileSchemas()

func mustCompileSchemas() map[Kind]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	out := make(map[Kind]*jsonschema.Schema, len(Kinds))
	for _, kind := range Kinds {
		name := fmt.Sprintf("schemas/%s.json", kind)
		data, err := schemasFS.ReadFile(name)
		if err != nil {
			panic(fmt.Sprintf("ops: missing embedded schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name, strings.NewReader(string(data))); err != nil {
			panic(fmt.Sprintf("ops: bad embedded schema %s: %v", name, err))
		}
		sch, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("ops: compile schema %s: %v", name, err))
		}
		out[kind] = sch
	}
	return out
}

// FieldValidationError reports that an operation's fields do not satisfy the
// schema for its kind. It is surfaced to the human as a clarification
// request, never auto-filled.
type FieldValidationError struct {
	Kind   Kind
	Detail string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("invalid fields for %s operation: %s", e.Kind, e.Detail)
}

// ValidateFields checks fields against the schema for kind. It returns a
// *FieldValidationError describing the first problem, or nil when the fields
// are acceptable.
func ValidateFields(kind Kind, fields Fields) error {
	sch, ok := schemas[kind]
	if !ok {
		return &FieldValidationError{Kind: kind, Detail: "unknown operation kind"}
	}

	// The validator operates on decoded-JSON types.
	doc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		doc[k] = v
	}

	if err := sch.Validate(doc); err != nil {
		detail := err.Error()
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			detail = flattenValidationError(ve)
		}
		return &FieldValidationError{Kind: kind, Detail: detail}
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}

// flattenValidationError walks to the most specific cause so the clarification
// shown to the human names the actual offending field.
func flattenValidationError(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		return ve.Message
	}
	return fmt.Sprintf("%s: %s", loc, ve.Message)
}
