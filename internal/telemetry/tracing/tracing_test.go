package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInit_DisabledReturnsNoopShutdown(t *testing.T) {
	t.Parallel()

	shutdown, err := Init(context.Background(), "xrpcd-test", false, false, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned error: %v", err)
	}
}

func TestInit_TracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), "xrpcd-test", true, false, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	_, span := Tracer("xrpcd-test").Start(context.Background(), "test-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test-span") {
		t.Errorf("exported spans missing test-span: %s", buf.String())
	}
}

func TestInit_MetricsOnlyDoesNotInstallTracer(t *testing.T) {
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), "xrpcd-test", false, true, &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
