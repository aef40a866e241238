// Package lexicon models the schema documents that drive XRPC dispatch:
// an immutable NSID -> method definition registry, and the parameter/
// input/output schema shapes consulted by the parameter and body codecs.
//
// The parser/validator library that produces these documents in a real
// deployment is an external collaborator (spec.md §1); this package
// defines the minimal descriptor shape the dispatch engine depends on and
// ships one concrete Validator so the engine is runnable end-to-end.
package lexicon

// Kind discriminates the three XRPC method shapes (spec.md §3).
type Kind string

const (
	KindQuery        Kind = "query"
	KindProcedure    Kind = "procedure"
	KindSubscription Kind = "subscription"
)

// ParamType is the declared type of a single parameter or array element.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamDatetime ParamType = "datetime"
	ParamInteger  ParamType = "integer"
	ParamFloat    ParamType = "float"
	ParamBoolean  ParamType = "boolean"
)

// ParamDef describes one declared parameter.
type ParamDef struct {
	Name     string
	Type     ParamType
	Array    bool // if true, Type describes the element type
	Required bool
}

// FieldDef describes one field of a JSON input/output/message body.
type FieldDef struct {
	Name     string
	Type     string // "string", "integer", "float", "boolean", "object", "bytes", "cid-link", "array"
	Required bool
}

// BodySchema describes a JSON object body by its declared fields. Fields
// not listed here are not rejected (lexicons are generally open to
// unknown fields).
type BodySchema struct {
	Fields []FieldDef
}

// Encoding is a MIME type or MIME pattern declared by a method
// (e.g. "application/json", "*/*", "text/plain").
type Encoding string

// Method is one entry in the LexiconRegistry: everything the dispatcher
// needs to route, validate, and describe a single NSID.
type Method struct {
	NSID string
	Kind Kind

	Params []ParamDef

	InputEncoding Encoding
	InputSchema   *BodySchema // nil means no declared input

	OutputEncoding Encoding
	OutputSchema   *BodySchema // nil means no declared output (or non-JSON encoding)

	// MessageSchema describes subscription frame bodies; nil for query/procedure.
	MessageSchema *BodySchema

	// Errors is the set of declared error names a handler may use as
	// XRPCError.Name for non-5xx responses.
	Errors []string
}

// HasInput reports whether this method declares a request body at all.
func (m *Method) HasInput() bool {
	return m.InputEncoding != "" || m.InputSchema != nil
}

// HasOutput reports whether this method declares a response body.
func (m *Method) HasOutput() bool {
	return m.OutputEncoding != "" || m.OutputSchema != nil
}
