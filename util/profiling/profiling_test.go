package profiling

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler(t *testing.T) {
	handler := Handler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusSeeOther {
		t.Fatalf("TestHandler: expected a redirect from the root, got %d", recorder.Code)
	}
	if location := recorder.Header().Get("Location"); location != "/debug/pprof/" {
		t.Fatalf("TestHandler: unexpected redirect location %s", location)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("TestHandler: expected the profile index, got %d", recorder.Code)
	}
}
