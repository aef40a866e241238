package lexicon

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

// rawDoc is the on-disk lexicon document shape: a subset of the
// com.atproto lexicon schema language, enough to drive C8's dispatch
// decisions (route kind, param/body validation, error names). Full
// lexicon schema validation (nested object refs, unions, $type
// discriminants) is the external collaborator's job per spec.md §1;
// this loader only extracts what the dispatcher needs.
type rawDoc struct {
	ID   string            `json:"id"`
	Defs map[string]rawDef `json:"defs"`
}

type rawDef struct {
	Type       string             `json:"type"` // "query" | "procedure" | "subscription"
	Parameters *rawObjectSchema   `json:"parameters"`
	Input      *rawBodyDescriptor `json:"input"`
	Output     *rawBodyDescriptor `json:"output"`
	Message    *rawBodyDescriptor `json:"message"`
	Errors     []rawErrorDef      `json:"errors"`
}

type rawObjectSchema struct {
	Properties map[string]rawField `json:"properties"`
	Required   []string            `json:"required"`
}

type rawBodyDescriptor struct {
	Encoding string           `json:"encoding"`
	Schema   *rawObjectSchema `json:"schema"`
}

type rawField struct {
	Type  string `json:"type"`
	Items *struct {
		Type string `json:"type"`
	} `json:"items"`
}

type rawErrorDef struct {
	Name string `json:"name"`
}

// LoadDir parses every ".json" lexicon document in dir (non-recursively)
// and builds an immutable Registry. Each document's "main" def becomes
// one Method keyed by the document's "id" (the NSID). Documents whose
// main def is not query/procedure/subscription, or that declare no main
// def, are skipped rather than erroring, matching real lexicon packages
// that define id-only shared defs alongside RPC methods.
func LoadDir(dirFS fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(dirFS, dir)
	if err != nil {
		return nil, fmt.Errorf("lexicon: read dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	b := NewBuilder()
	seen := make(map[string]string, len(names))
	for _, name := range names {
		docPath := path.Join(dir, name)
		data, err := fs.ReadFile(dirFS, docPath)
		if err != nil {
			return nil, fmt.Errorf("lexicon: read %q: %w", docPath, err)
		}
		m, ok, err := parseDoc(data)
		if err != nil {
			return nil, fmt.Errorf("lexicon: parse %q: %w", docPath, err)
		}
		if !ok {
			continue
		}
		if prev, dup := seen[m.NSID]; dup {
			return nil, fmt.Errorf("lexicon: %q and %q both declare id %q", prev, docPath, m.NSID)
		}
		seen[m.NSID] = docPath
		b.Add(m)
	}
	return b.Build(), nil
}

func parseDoc(data []byte) (*Method, bool, error) {
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	if doc.ID == "" {
		return nil, false, fmt.Errorf("missing id")
	}
	main, ok := doc.Defs["main"]
	if !ok {
		return nil, false, nil
	}

	var kind Kind
	switch main.Type {
	case "query":
		kind = KindQuery
	case "procedure":
		kind = KindProcedure
	case "subscription":
		kind = KindSubscription
	default:
		return nil, false, nil
	}

	m := &Method{NSID: doc.ID, Kind: kind}
	if main.Parameters != nil {
		m.Params = toParamDefs(main.Parameters)
	}
	if main.Input != nil {
		m.InputEncoding = Encoding(main.Input.Encoding)
		if main.Input.Schema != nil {
			m.InputSchema = toBodySchema(main.Input.Schema)
		}
	}
	if main.Output != nil {
		m.OutputEncoding = Encoding(main.Output.Encoding)
		if main.Output.Schema != nil {
			m.OutputSchema = toBodySchema(main.Output.Schema)
		}
	}
	if main.Message != nil && main.Message.Schema != nil {
		m.MessageSchema = toBodySchema(main.Message.Schema)
	}
	for _, e := range main.Errors {
		if e.Name != "" {
			m.Errors = append(m.Errors, e.Name)
		}
	}
	return m, true, nil
}

func toParamDefs(schema *rawObjectSchema) []ParamDef {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := sortedFieldNames(schema.Properties)
	defs := make([]ParamDef, 0, len(names))
	for _, name := range names {
		f := schema.Properties[name]
		pt, array := toParamType(f)
		defs = append(defs, ParamDef{
			Name:     name,
			Type:     pt,
			Array:    array,
			Required: required[name],
		})
	}
	return defs
}

func toParamType(f rawField) (ParamType, bool) {
	if f.Type == "array" && f.Items != nil {
		return paramTypeOf(f.Items.Type), true
	}
	return paramTypeOf(f.Type), false
}

func paramTypeOf(t string) ParamType {
	switch t {
	case "integer":
		return ParamInteger
	case "float":
		return ParamFloat
	case "boolean":
		return ParamBoolean
	case "datetime":
		return ParamDatetime
	default:
		return ParamString
	}
}

func toBodySchema(schema *rawObjectSchema) *BodySchema {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := sortedFieldNames(schema.Properties)
	fields := make([]FieldDef, 0, len(names))
	for _, name := range names {
		f := schema.Properties[name]
		fields = append(fields, FieldDef{
			Name:     name,
			Type:     f.Type,
			Required: required[name],
		})
	}
	return &BodySchema{Fields: fields}
}

func sortedFieldNames(m map[string]rawField) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
