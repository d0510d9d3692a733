package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

const testSecret = "whsec_test"

func TestValidate_Success(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	header := buildSignatureHeader(payload, testSecret, time.Now().Unix())

	event, err := Validate(payload, header, testSecret)
	if err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event id %q", event.ID)
	}
	if string(event.Type) != "payment_intent.succeeded" {
		t.Fatalf("unexpected event type %q", event.Type)
	}
}

func TestValidate_MissingHeader(t *testing.T) {
	_, err := Validate([]byte(`{}`), "", testSecret)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing header, got %v", err)
	}
}

func TestValidate_InvalidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	header := buildSignatureHeader(payload, "whsec_other", time.Now().Unix())

	_, err := Validate(payload, header, testSecret)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeSignature {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestValidate_StaleTimestampRejected(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	header := buildSignatureHeader(payload, testSecret, time.Now().Add(-time.Hour).Unix())

	_, err := Validate(payload, header, testSecret)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeSignature {
		t.Fatalf("expected signature error for stale timestamp, got %v", err)
	}
}

func TestValidate_MalformedAfterVerification(t *testing.T) {
	payload := []byte(`{"id":`)
	header := buildSignatureHeader(payload, testSecret, time.Now().Unix())

	_, err := Validate(payload, header, testSecret)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeMalformed {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestValidate_MissingEventID(t *testing.T) {
	payload := []byte(`{"type":"charge.succeeded"}`)
	header := buildSignatureHeader(payload, testSecret, time.Now().Unix())

	_, err := Validate(payload, header, testSecret)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeMalformed {
		t.Fatalf("expected malformed payload error for missing id, got %v", err)
	}
}

func buildSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
