package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"modelcat/internal/metrics"
)

// =============================================================================
// responseWriter Tests
// =============================================================================

func TestResponseWriterWriteHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected first status to stick, got %d", rw.statusCode)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected recorder status 404, got %d", rec.Code)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	t.Parallel()

	rw := newResponseWriter(httptest.NewRecorder())
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte(" world")); err != nil {
		t.Fatal(err)
	}

	if rw.bytesWritten != 11 {
		t.Errorf("Expected 11 bytes written, got %d", rw.bytesWritten)
	}
	if rw.statusCode != http.StatusOK || !rw.wroteHeader {
		t.Errorf("Expected implicit 200, got %d (wroteHeader=%v)", rw.statusCode, rw.wroteHeader)
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestLoggerMiddleware(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/scan?force=1", http.NoBody)
	req.Header.Set("User-Agent", "curl/8.0 (test)")
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 192.168.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{
		" 10.1.2.3 POST /api/scan force=1 202 6 ",
		`"curl/8.0 (test)"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected log line %q to contain %q", line, want)
		}
	}
	if !strings.HasSuffix(line, " -") {
		t.Errorf("Expected empty referer rendered as '-', got %q", line)
	}
}

func TestLoggerSkipsHealthChecks(t *testing.T) {
	buf := captureLog(t)

	config := DefaultLoggingConfig()
	config.LogHealthChecks = false
	config.SkipPaths = []string{"/metrics"}
	handler := Logger(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, path := range []string{"/healthz", "/livez", "/readyz", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}
	if buf.Len() != 0 {
		t.Errorf("Expected skipped paths not to be logged, got %q", buf.String())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/version", http.NoBody))
	if buf.Len() == 0 {
		t.Error("Expected /version to be logged")
	}
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"line1\nline2\r", "line1 line2 "},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"bell\x07", "bell"},
		{"tab\tkept", "tab\tkept"},
	}

	for _, tt := range tests {
		if got := sanitizeLogField(tt.input); got != tt.expected {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "4.4.4.4:5678", "4.4.4.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatW3CEmptyFields(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/livez", http.NoBody)
	req.RemoteAddr = "127.0.0.1:4000"
	rw := newResponseWriter(httptest.NewRecorder())

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := formatW3C(now, req, rw, 1500*time.Millisecond)
	want := "2026-01-02 03:04:05 127.0.0.1 GET /livez - 200 0 1500 - - -"
	if got != want {
		t.Errorf("formatW3C =\n%q\nwant\n%q", got, want)
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/items/{id}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/"+id, http.NoBody))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("Expected 3 requests under the route template, got %v", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if got := testutil.ToFloat64(counter); got != before {
		t.Errorf("Expected /healthz to be skipped, counter moved %v -> %v", before, got)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/api/scan", "/api/scan"},
		{"/a/b/c", "/a/b/c"},
		{"/a/b/c/d", "/a/b/c/{path}"},
		{"/a/b/c/d/e/f", "/a/b/c/{path}"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// =============================================================================
// Compression Tests
// =============================================================================

func TestCompression(t *testing.T) {
	t.Parallel()

	mw, err := Compression(DefaultCompressionConfig())
	if err != nil {
		t.Fatalf("Compression: %v", err)
	}

	body := strings.Repeat(`{"path":"/models/benchy.stl"}`, 100)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/scans", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if enc := rec.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", enc)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Error("Decompressed body does not match")
	}
}

func TestCompressionSkipsSmallAndUnaccepted(t *testing.T) {
	t.Parallel()

	mw, err := Compression(DefaultCompressionConfig())
	if err != nil {
		t.Fatalf("Compression: %v", err)
	}
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/small" {
			_, _ = io.WriteString(w, `{"status":"ok"}`)
			return
		}
		_, _ = io.WriteString(w, strings.Repeat("x", 4096))
	}))

	small := httptest.NewRequest(http.MethodGet, "/small", http.NoBody)
	small.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, small)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("Expected small response to stay uncompressed")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/large", http.NoBody))
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("Expected no compression without Accept-Encoding")
	}
	if rec.Body.Len() != 4096 {
		t.Errorf("Expected raw body, got %d bytes", rec.Body.Len())
	}
}

func TestCompressionInvalidLevel(t *testing.T) {
	t.Parallel()

	config := DefaultCompressionConfig()
	config.Level = 42
	if _, err := Compression(config); err == nil {
		t.Error("Expected error for invalid compression level")
	}
}
