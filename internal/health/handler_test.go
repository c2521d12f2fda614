package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerReportsService(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	Handler("apiserver").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %q", body["status"])
	}
	if body["service"] != "apiserver" {
		t.Errorf("expected service name, got %q", body["service"])
	}
}

func TestReadyHandlerAllChecksPass(t *testing.T) {
	checks := map[string]func() error{
		"postgres": func() error { return nil },
		"nats":     func() error { return nil },
	}

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()

	ReadyHandler(checks).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadyHandlerDegradesOnFailure(t *testing.T) {
	checks := map[string]func() error{
		"postgres": func() error { return nil },
		"redis":    func() error { return errors.New("connection refused") },
	}

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()

	ReadyHandler(checks).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("expected degraded status, got %q", body.Status)
	}
	if body.Checks["postgres"] != "ok" {
		t.Errorf("expected postgres ok, got %q", body.Checks["postgres"])
	}
	if body.Checks["redis"] != "connection refused" {
		t.Errorf("expected redis failure message, got %q", body.Checks["redis"])
	}
}
