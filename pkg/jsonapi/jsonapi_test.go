package jsonapi_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/chatforge/planledger/pkg/jsonapi"
)

func TestWriteResource(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.WriteResource(w, 201, jsonapi.NewResource("plan", "u1", map[string]any{"total": 1.5}))

	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != jsonapi.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	var doc jsonapi.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data := doc.Data.(map[string]any)
	if data["type"] != "plan" || data["id"] != "u1" {
		t.Errorf("data = %v", data)
	}
}

func TestWriteError_StatusFromFirstError(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.WriteNotFound(w, "plan")

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var doc jsonapi.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Errors) != 1 || doc.Errors[0].Code != "not_found" {
		t.Errorf("errors = %v", doc.Errors)
	}
	if doc.Errors[0].Detail != "plan not found" {
		t.Errorf("detail = %q", doc.Errors[0].Detail)
	}
}

func TestWriteValidationError_Pointer(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.WriteValidationError(w, "amount", "Amount must be > 0")

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var doc jsonapi.Document
	json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Errors[0].Source == nil || doc.Errors[0].Source.Pointer != "/data/attributes/amount" {
		t.Errorf("source = %+v", doc.Errors[0].Source)
	}
}

func TestWriteMeta(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.WriteMeta(w, 200, jsonapi.Meta{"applied": false})

	var doc jsonapi.Document
	json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Meta["applied"] != false {
		t.Errorf("meta = %v", doc.Meta)
	}
}
