package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"amount": "must_be_positive"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content-type %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "validation_failed" {
		t.Fatalf("unexpected error code %q", body.Error)
	}
}

func TestJSONNilPayload(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, nil)
	if got := w.Body.String(); got != "null" {
		t.Fatalf("expected null body got %q", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount string `json:"amount"`
	}

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.00"}`))
		var p payload
		if err := DecodeJSON(r, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.Amount != "10.00" {
			t.Fatalf("unexpected amount %q", p.Amount)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
		var p payload
		if err := DecodeJSON(r, &p); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("trailing data", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1"}{"amount":"2"}`))
		var p payload
		if err := DecodeJSON(r, &p); err == nil {
			t.Fatal("expected error for trailing document")
		}
	})
}
