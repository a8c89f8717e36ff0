package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// One collector for the whole package: promauto registers against the
// default registry, and a second NewCollector would panic on duplicates.
var testCollector = NewCollector("tilehaven_test")

func TestMiddlewareCountsRequests(t *testing.T) {
	handler := testCollector.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tileserver/data/default/1/0/0.pbf" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path string) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	serve("/status")
	serve("/tileserver/data/default/1/0/0.pbf")
	serve("/tileserver/data/default/14/8717/5683.pbf")

	if got := testutil.ToFloat64(testCollector.httpRequestsTotal.WithLabelValues(
		http.MethodGet, "/status", "2xx")); got != 1 {
		t.Errorf("http_requests_total{path=/status,status=2xx} = %v, want 1", got)
	}
	// Both tile requests collapse into one normalized path label.
	if got := testutil.ToFloat64(testCollector.httpRequestsTotal.WithLabelValues(
		http.MethodGet, "/tileserver/data/default/{z}/{x}/{y}", "4xx")); got != 1 {
		t.Errorf("http_requests_total{tile,4xx} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(testCollector.httpRequestsTotal.WithLabelValues(
		http.MethodGet, "/tileserver/data/default/{z}/{x}/{y}", "2xx")); got != 1 {
		t.Errorf("http_requests_total{tile,2xx} = %v, want 1", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/tileserver/data/default/14/8717/5683.pbf", "/tileserver/data/default/{z}/{x}/{y}"},
		{"/tileserver/fonts/Roboto%20Medium/0-255.pbf", "/tileserver/fonts/{fontstack}/{range}"},
		{"/status", "/status"},
		{"/metrics", "/metrics"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{99, "unknown"},
	}
	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
