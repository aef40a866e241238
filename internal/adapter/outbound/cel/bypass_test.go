package cel

import (
	"testing"

	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
)

func TestBypassEvaluatorMatchesHeader(t *testing.T) {
	e, err := NewBypassEvaluator()
	if err != nil {
		t.Fatalf("NewBypassEvaluator: %v", err)
	}
	prg, err := e.Compile(`headers["x-admin-bypass"] == "1"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	bypass, err := e.Evaluate(prg, ratelimit.EvalContext{Headers: map[string]string{"x-admin-bypass": "1"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !bypass {
		t.Fatal("expected bypass to evaluate true")
	}

	noBypass, err := e.Evaluate(prg, ratelimit.EvalContext{Headers: map[string]string{}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if noBypass {
		t.Fatal("expected bypass to evaluate false without header")
	}
}

func TestBypassEvaluatorRejectsOversizedExpression(t *testing.T) {
	e, err := NewBypassEvaluator()
	if err != nil {
		t.Fatalf("NewBypassEvaluator: %v", err)
	}
	huge := make([]byte, maxExpressionLength+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if _, err := e.Compile(string(huge)); err == nil {
		t.Fatal("expected oversized expression to be rejected")
	}
}

func TestBypassEvaluatorUsesMethodKindAndNSID(t *testing.T) {
	e, err := NewBypassEvaluator()
	if err != nil {
		t.Fatalf("NewBypassEvaluator: %v", err)
	}
	prg, err := e.Compile(`method_kind == "subscription" && nsid.startsWith("io.example")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := e.Evaluate(prg, ratelimit.EvalContext{MethodKind: "subscription", NSID: "io.example.streamOne"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got {
		t.Fatal("expected true")
	}
}
