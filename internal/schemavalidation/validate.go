// Package schemavalidation round-trips the document envelope's JSON
// wire format against its published JSON Schema, so that a malformed
// envelope is rejected before it ever reaches the verifier or analyzer.
// Grounded on the daemon's own schemavalidation package: a thin wrapper
// over santhosh-tekuri/jsonschema compiling a schema resource once and
// validating decoded instances against it.
package schemavalidation

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator holds one compiled schema, ready to validate many instances.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile reads the schema file at path and compiles it.
func Compile(path string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("schemavalidation: compile %s: %w", path, err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateBytes decodes raw JSON and validates it against the compiled
// schema.
func (v *Validator) ValidateBytes(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("schemavalidation: decode instance: %w", err)
	}
	if err := v.schema.Validate(instance); err != nil {
		return fmt.Errorf("schemavalidation: validate: %w", err)
	}
	return nil
}

// ValidateValue validates an already-decoded value (e.g. the result of
// marshaling an envelope.Envelope through encoding/json and unmarshaling
// back into a generic any) against the compiled schema.
func (v *Validator) ValidateValue(instance any) error {
	if err := v.schema.Validate(instance); err != nil {
		return fmt.Errorf("schemavalidation: validate: %w", err)
	}
	return nil
}
