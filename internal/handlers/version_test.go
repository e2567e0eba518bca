package handlers

import (
	"net/http"
	"testing"

	"modelcat/internal/startup"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	w := serve(t, http.HandlerFunc(h.GetVersion), http.MethodGet, "/version")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected Cache-Control: no-cache, got %q", cc)
	}

	resp := decode[startup.BuildInfo](t, w)
	want := startup.GetBuildInfo()
	if resp.Version != want.Version || resp.GoVersion != want.GoVersion {
		t.Errorf("Expected %+v, got %+v", want, resp)
	}
}
