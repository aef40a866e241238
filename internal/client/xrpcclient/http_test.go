package xrpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type getRecordOutput struct {
	URI   string `json:"uri"`
	Value string `json:"value"`
}

func TestQueryClient_Query_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/com.example.getRecord" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.URL.Query().Get("collection"); got != "com.example.post" {
			t.Errorf("unexpected collection param: %s", got)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(getRecordOutput{URI: "at://did:plc:alice/com.example.post/1", Value: "hello"})
	}))
	defer server.Close()

	client := NewQueryClient(server.URL, WithAuthToken("test-token"))

	var out getRecordOutput
	err := client.Query(context.Background(), "com.example.getRecord", map[string]string{
		"collection": "com.example.post",
		"rkey":       "1",
	}, &out)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Value != "hello" {
		t.Errorf("expected value %q, got %q", "hello", out.Value)
	}
}

func TestQueryClient_Procedure_SendsJSONBody(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"uri": "at://did:plc:alice/com.example.post/1"})
	}))
	defer server.Close()

	client := NewQueryClient(server.URL)

	var out map[string]string
	err := client.Procedure(context.Background(), "com.example.createRecord", map[string]any{
		"collection": "com.example.post",
		"record":     map[string]any{"text": "hi"},
	}, &out)
	if err != nil {
		t.Fatalf("Procedure: %v", err)
	}
	if received["collection"] != "com.example.post" {
		t.Errorf("server did not receive expected input body: %#v", received)
	}
	if out["uri"] == "" {
		t.Errorf("expected uri in response")
	}
}

func TestQueryClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "InvalidRequest",
			"message": "missing required field",
		})
	}))
	defer server.Close()

	client := NewQueryClient(server.URL)

	err := client.Query(context.Background(), "com.example.getRecord", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	xerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if xerr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", xerr.StatusCode)
	}
	if xerr.Name != "InvalidRequest" {
		t.Errorf("expected name InvalidRequest, got %s", xerr.Name)
	}
}
