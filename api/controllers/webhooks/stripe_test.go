package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	stripelib "github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/internal/webhooks"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/guard"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/stripe"
)

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeWebhookService{}
	g, err := guard.New(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, g, stripe.ScopeGeneral, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	// Replay the same event
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}

	var envelope struct {
		Data webhooks.Ack `json:"data"`
	}
	if err := json.NewDecoder(rec2.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode duplicate ack: %v", err)
	}
	if !envelope.Data.Duplicate {
		t.Fatalf("expected duplicate ack body, got %+v", envelope.Data)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	service := &fakeWebhookService{}
	g, err := guard.New(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, g, stripe.ScopeGeneral, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestStripeWebhook_ProcessingFailureReopensGuard(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeWebhookService{err: pkgerrors.New(pkgerrors.CodeLookup, "listing unknown")}
	g, err := guard.New(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, g, stripe.ScopeGeneral, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for lookup failure, got %d", rec.Code)
	}

	// Redelivery must pass the guard and reach the service again.
	service.err = nil
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 2 {
		t.Fatalf("expected redelivery to reach service, call count %d", service.calls)
	}
}

func TestStripeWebhookProbe(t *testing.T) {
	rec := httptest.NewRecorder()
	StripeWebhookProbe().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/stripe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from probe, got %d", rec.Code)
	}
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	object := map[string]any{
		"id":       "pi_" + uuid.NewString(),
		"metadata": map[string]string{"listing_id": "lst_1"},
	}
	rawObject, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal object: %v", err)
	}
	event := map[string]any{
		"id":     "evt_" + uuid.NewString(),
		"type":   string(stripelib.EventTypePaymentIntentSucceeded),
		"object": "event",
		"data":   map[string]any{"object": json.RawMessage(rawObject)},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, "whsec_test", time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeWebhookService struct {
	calls int
	err   error
}

func (f *fakeWebhookService) HandleEvent(_ context.Context, event *stripelib.Event) (*webhooks.Ack, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &webhooks.Ack{EventID: event.ID, Domain: "listing"}, nil
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret(_ stripe.WebhookScope) string {
	return c.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("mm:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
