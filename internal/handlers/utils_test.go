package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"Simple map", map[string]string{"status": "ok"}, `{"status":"ok"}`},
		{"String slice", []string{"a", "b"}, `["a","b"]`},
		{"Null", nil, `null`},
		{"Special characters", map[string]string{"path": "a<b>&\"c\""}, `{"path":"a\u003cb\u003e\u0026\"c\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.input)
			if got := w.Body.String(); got != tt.expected+"\n" {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestWriteJSONUnsupportedType(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSON(w, make(chan int))
	if w.Body.Len() != 0 {
		t.Errorf("Expected nothing written for unsupported type, got %q", w.Body.String())
	}
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSONError(w, "nope", http.StatusTeapot)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected %d, got %d", http.StatusTeapot, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if got := w.Body.String(); got != "{\"error\":\"nope\"}\n" {
		t.Errorf("Unexpected body %q", got)
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 20, false},
		{"n=3", 3, false},
		{"n=99", 50, false},
		{"n=-1", 0, true},
		{"n=x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, http.NoBody)
			got, err := queryInt(req, "n", 20, 50)
			if (err != nil) != tt.wantErr {
				t.Fatalf("queryInt error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("queryInt = %d, want %d", got, tt.want)
			}
		})
	}
}
