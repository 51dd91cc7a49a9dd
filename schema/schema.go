// Package schema generates JSON Schema documents from Go types. The same
// reflector describes function parameters to the model and the settings
// file to users.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Reflector inlines all definitions: function parameters sent to the
// completion service may not use $ref.
var Reflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// Generate creates a JSON Schema from a Go type.
// The type should be a struct with json and jsonschema tags.
//
// Example:
//
//	type RunCodeInput struct {
//	    Code string `json:"code" jsonschema:"required,description=The code to execute"`
//	}
//
//	params, err := schema.Generate[RunCodeInput]()
func Generate[T any]() (json.RawMessage, error) {
	var zero T
	return json.Marshal(Reflector.Reflect(&zero))
}

// GenerateIndent is like Generate but indents the document for display.
func GenerateIndent[T any]() ([]byte, error) {
	var zero T
	return json.MarshalIndent(Reflector.Reflect(&zero), "", "  ")
}

// MustGenerate is like Generate but panics on error.
func MustGenerate[T any]() json.RawMessage {
	schema, err := Generate[T]()
	if err != nil {
		panic(err)
	}
	return schema
}
