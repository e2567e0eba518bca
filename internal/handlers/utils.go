package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"modelcat/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are only logged; the status line has already gone out.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatusCode(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatusCode writes v with an explicit status code.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// queryInt parses a positive integer query parameter, returning def when it
// is absent and an error when it is malformed.
func queryInt(r *http.Request, name string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	if n > maxValue {
		n = maxValue
	}
	return n, nil
}
