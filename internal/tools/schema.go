package tools

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// schemaMap turns a schema object into its JSON-schema map form. Accepted:
// nil (empty object schema), map[string]any, *jsonschema.Schema, or a struct
// value / struct pointer that is reflected field by field.
func schemaMap(schema any) (map[string]any, error) {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	case map[string]any:
		return roundTrip(s)
	case *jsonschema.Schema:
		return roundTrip(s)
	}

	t := reflect.TypeOf(schema)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T", ErrInvalidSchema, schema)
	}
	out, err := roundTrip(reflector.ReflectFromType(t))
	if err != nil {
		return nil, err
	}
	delete(out, "$schema")
	return out, nil
}

// roundTrip deep-copies v through JSON so later mutation of the caller's value
// cannot change the stored schema.
func roundTrip(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return out, nil
}
