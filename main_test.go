package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/s1natex/taskledger/internal/config"
	"github.com/s1natex/taskledger/internal/tasks"
)

func testRouter(t *testing.T, store tasks.Store) http.Handler {
	t.Helper()
	logger := newLogger(io.Discard, config.ParseLevel("error"))
	cfg := config.Config{CORSOrigins: []string{"*"}, RateLimitBurst: 1}
	return newRouter(tasks.NewInstrumentedStore(store, logger), logger, cfg)
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(t, tasks.NewInMemoryStore())

	w := call(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	expected := `{"status":"ok"}`
	if got := strings.TrimSpace(w.Body.String()); got != expected {
		t.Errorf("expected body %s, got %s", expected, got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(t, tasks.NewInMemoryStore())
	call(t, r, http.MethodGet, "/tasks", "")

	w := call(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	for _, want := range []string{
		`http_requests_total{method="GET",route="/tasks",status="200"}`,
		`taskledger_store_operations_total{op="list",result="ok"}`,
	} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

// The three ledger scenarios, end to end through the full middleware stack.
func TestLedgerScenarios(t *testing.T) {
	listTasks := func(t *testing.T, r http.Handler) []tasks.Task {
		t.Helper()
		w := call(t, r, http.MethodGet, "/tasks", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list: expected 200, got %d", w.Code)
		}
		var out []tasks.Task
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("list: bad JSON %q: %v", w.Body.String(), err)
		}
		return out
	}

	t.Run("create then list", func(t *testing.T) {
		r := testRouter(t, tasks.NewInMemoryStore())
		if w := call(t, r, http.MethodPost, "/tasks", `{"description":"Example Task"}`); w.Code != http.StatusCreated {
			t.Fatalf("create: expected 201, got %d", w.Code)
		}
		got := listTasks(t, r)
		if len(got) != 1 || got[0] != (tasks.Task{Description: "Example Task"}) {
			t.Fatalf("unexpected tasks: %+v", got)
		}
	})

	t.Run("create complete list", func(t *testing.T) {
		r := testRouter(t, tasks.NewInMemoryStore())
		call(t, r, http.MethodPost, "/tasks", `{"description":"Example Task"}`)
		if w := call(t, r, http.MethodPost, "/tasks/0/complete", ""); w.Code != http.StatusNoContent {
			t.Fatalf("complete: expected 204, got %d", w.Code)
		}
		got := listTasks(t, r)
		if len(got) != 1 || got[0] != (tasks.Task{Description: "Example Task", Completed: true}) {
			t.Fatalf("unexpected tasks: %+v", got)
		}
	})

	t.Run("complete on empty ledger", func(t *testing.T) {
		r := testRouter(t, tasks.NewInMemoryStore())
		if w := call(t, r, http.MethodPost, "/tasks/0/complete", ""); w.Code != http.StatusNoContent {
			t.Fatalf("complete: expected 204, got %d", w.Code)
		}
		w := call(t, r, http.MethodGet, "/tasks", "")
		if got := string(bytes.TrimSpace(w.Body.Bytes())); got != "[]" {
			t.Fatalf("expected [], got %s", got)
		}
	})
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		Storage:    config.StorageSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "tasks.db"),
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeStore()

	if err := store.Create(ctx, "persisted"); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := store.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 task, got %v (err=%v)", list, err)
	}
}

func TestOpenStore_Unknown(t *testing.T) {
	_, _, err := openStore(context.Background(), config.Config{Storage: "etcd"})
	if !errors.Is(err, config.ErrUnknownStorage) {
		t.Fatalf("expected ErrUnknownStorage, got %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("STORAGE", "")
	err := run(context.Background(), []string{"-storage", "mysql", "-mysql-dsn", ""}, io.Discard)
	if !errors.Is(err, config.ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN, got %v", err)
	}
}
