package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPObsRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("dansa_test", nil, reg)
	obs := HTTPObs{Metrics: metrics}

	handler := obs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/baskets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "dansa_test_http_requests_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected http_requests_total to be registered")
	}
}

func TestStatusRecorderDefaults(t *testing.T) {
	rec := NewStatusRecorder(httptest.NewRecorder())
	if rec.Status() != http.StatusOK {
		t.Fatalf("expected default status 200, got %d", rec.Status())
	}
	n, err := rec.Write([]byte("ok"))
	if err != nil || n != 2 {
		t.Fatalf("unexpected write result: %d %v", n, err)
	}
	if rec.BytesWritten() != 2 {
		t.Fatalf("expected 2 bytes recorded, got %d", rec.BytesWritten())
	}
}
