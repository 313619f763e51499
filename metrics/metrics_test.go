package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveUpdate("photo", "stored")
	m.ObserveUpdate("photo", "stored")
	m.ObserveDownload(time.Second, nil)
	m.ObserveDownload(time.Second, errors.New("boom"))
	m.BillCreated()

	if got := testutil.ToFloat64(m.updatesTotal.WithLabelValues("photo", "stored")); got != 2 {
		t.Fatalf("updates_total = %v", got)
	}
	if got := testutil.ToFloat64(m.downloadsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("downloads_total{error} = %v", got)
	}
	if got := testutil.ToFloat64(m.billsCreated); got != 1 {
		t.Fatalf("bills_created_total = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.StartRequest()
	m.FinishRequest("GET", "/", 200, time.Millisecond)
	m.ObserveUpdate("text", "stored")
	m.BillCreated()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.StartRequest()
	m.FinishRequest("GET", "/api/v1/bills/:id", 404, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `catty_bills_http_requests_total{method="GET",path="/api/v1/bills/:id",status="404"} 1`) {
		t.Fatalf("request counter missing from output:\n%s", body)
	}
}
