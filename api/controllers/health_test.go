package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lukaskovac/motormarkt-backend/pkg/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "development"
	return cfg
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Motormarkt-Env") != "development" {
		t.Fatalf("missing environment header")
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := HealthReady(testConfig(), stubPinger{err: errors.New("connection refused")}, stubPinger{})
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when database is down, got %d", rec.Code)
	}
}

func TestHealthReadyAllDependenciesUp(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := HealthReady(testConfig(), stubPinger{}, stubPinger{})
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
