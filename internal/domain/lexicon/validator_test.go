package lexicon

import "testing"

func TestAssertValidParamsMissingRequired(t *testing.T) {
	m := &Method{
		NSID: "io.example.streamOne",
		Kind: KindSubscription,
		Params: []ParamDef{
			{Name: "countdown", Type: ParamInteger, Required: true},
		},
	}
	err := DefaultValidator{}.AssertValidParams(m, map[string]any{})
	if err == nil {
		t.Fatal("expected error for missing required param")
	}
	want := `Error: Params must have the property "countdown"`
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestAssertValidParamsOK(t *testing.T) {
	m := &Method{
		Params: []ParamDef{{Name: "message", Type: ParamString, Required: true}},
	}
	if err := (DefaultValidator{}).AssertValidParams(m, map[string]any{"message": "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssertValidInputRequiredField(t *testing.T) {
	m := &Method{
		InputSchema: &BodySchema{Fields: []FieldDef{{Name: "message", Required: true}}},
	}
	if err := (DefaultValidator{}).AssertValidInput(m, map[string]any{}); err == nil {
		t.Fatal("expected error for missing input field")
	}
	if err := (DefaultValidator{}).AssertValidInput(m, map[string]any{"message": "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	b := NewBuilder()
	b.Add(&Method{NSID: "io.example.pingOne", Kind: KindQuery})
	reg := b.Build()

	if _, ok := reg.Lookup("io.example.pingOne"); !ok {
		t.Fatal("expected method to be found")
	}
	if _, ok := reg.Lookup("io.example.missing"); ok {
		t.Fatal("expected method to be absent")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	b := NewBuilder()
	b.Add(&Method{NSID: "io.example.pingOne"})
	b.Add(&Method{NSID: "io.example.pingOne"})
}
