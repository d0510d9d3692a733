package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	stripelib "github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/internal/webhooks"
	"github.com/lukaskovac/motormarkt-backend/pkg/config"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(_ context.Context, event *stripelib.Event) (*webhooks.Ack, error) {
	return &webhooks.Ack{EventID: event.ID}, nil
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "development"
	cfg.Webhook.ProcessingTimeout = time.Second

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, stubPinger{}, nil, stubWebhookService{}, nil, prometheus.NewRegistry())
}

func TestRouterServesOperationalEndpoints(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{
		"/health/live",
		"/health/ready",
		"/api/public/ping",
		"/metrics",
		"/api/v1/webhooks/stripe",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d", path, rec.Code)
		}
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
