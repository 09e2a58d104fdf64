package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	appmw "github.com/s1natex/taskledger/internal/middleware"
)

func TestMetricsCounterUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(appmw.MetricsMiddleware)

	r.Post("/tasks/{index}/complete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// two different indexes must land on the same series
	for _, path := range []string{"/tasks/0/complete", "/tasks/41/complete"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	}

	mrec := httptest.NewRecorder()
	appmw.MetricsHandler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", mrec.Code)
	}
	body := mrec.Body.String()

	want := `http_requests_total{method="POST",route="/tasks/{index}/complete",status="204"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("expected metrics to contain %q\nfull body:\n%s", want, body)
	}
	if strings.Contains(body, `route="/tasks/41/complete"`) {
		t.Fatalf("raw path leaked into labels:\n%s", body)
	}
}

func TestMetricsUnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(appmw.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	mrec := httptest.NewRecorder()
	appmw.MetricsHandler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `http_requests_total{method="GET",route="unmatched",status="404"}`
	if !strings.Contains(mrec.Body.String(), want) {
		t.Fatalf("expected metrics to contain %q\nfull body:\n%s", want, mrec.Body.String())
	}
}
