package lexicon

import "fmt"

// ValidationError reports a schema violation. The message format mirrors
// what testable scenario #5 in spec.md expects to see verbatim in an
// error frame: `Error: Params must have the property "countdown"`.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Validator is the schema-validation collaborator the dispatcher calls
// into at the points spec.md §4.2 describes: assertValidXrpcParams,
// assertValidXrpcInput, assertValidXrpcOutput. Swappable so a real
// lexicon-aware validator (the external collaborator per §1) can replace
// DefaultValidator without touching the dispatcher.
type Validator interface {
	AssertValidParams(m *Method, params map[string]any) error
	AssertValidInput(m *Method, body any) error
	AssertValidOutput(m *Method, body any) error
}

// DefaultValidator implements Validator directly against the descriptor
// shapes in types.go: required-field presence and a shallow type check.
// It does not attempt full JSON-Schema semantics (nested refs, unions,
// etc.) — those live in the real lexicon library this package stands in
// for.
type DefaultValidator struct{}

var _ Validator = DefaultValidator{}

// AssertValidParams checks required-ness and type-shape of a decoded
// parameter map against m.Params.
func (DefaultValidator) AssertValidParams(m *Method, params map[string]any) error {
	for _, pd := range m.Params {
		v, present := params[pd.Name]
		if !present {
			if pd.Required {
				return newValidationError("Error: Params must have the property %q", pd.Name)
			}
			continue
		}
		if err := checkParamType(pd, v); err != nil {
			return newValidationError("Error: Params/%s %s", pd.Name, err)
		}
	}
	return nil
}

func checkParamType(pd ParamDef, v any) error {
	if pd.Array {
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("must be an array")
		}
		for _, el := range arr {
			if err := checkScalarType(pd.Type, el); err != nil {
				return err
			}
		}
		return nil
	}
	return checkScalarType(pd.Type, v)
}

func checkScalarType(t ParamType, v any) error {
	switch t {
	case ParamString, ParamDatetime:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("must be a string")
		}
	case ParamInteger:
		switch v.(type) {
		case int, int64:
		default:
			return fmt.Errorf("must be an integer")
		}
	case ParamFloat:
		switch v.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("must be a number")
		}
	case ParamBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("must be a boolean")
		}
	}
	return nil
}

// AssertValidInput checks a decoded JSON body (map[string]any) against
// m.InputSchema's required fields. Non-object bodies (bytes, text, nil)
// are accepted unconditionally — schema checking only applies to
// declared JSON object shapes.
func (DefaultValidator) AssertValidInput(m *Method, body any) error {
	return assertObjectSchema(m.InputSchema, body, "input")
}

// AssertValidOutput is the symmetric check on a handler's success body,
// run only when response validation is enabled (spec.md §3 invariant).
func (DefaultValidator) AssertValidOutput(m *Method, body any) error {
	return assertObjectSchema(m.OutputSchema, body, "output")
}

func assertObjectSchema(schema *BodySchema, body any, label string) error {
	if schema == nil {
		return nil
	}
	obj, ok := body.(map[string]any)
	if !ok {
		// Non-JSON bodies (bytes/text) have nothing further to check.
		return nil
	}
	for _, f := range schema.Fields {
		if f.Required {
			if _, present := obj[f.Name]; !present {
				return newValidationError("Error: %s must have the property %q", label, f.Name)
			}
		}
	}
	return nil
}
