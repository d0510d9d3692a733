package signature

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

// Validate authenticates a raw webhook delivery and parses it into an event.
// The payload must be the exact bytes received: the signature covers the raw
// body, not a re-serialized object. Secrets are passed in explicitly so the
// validator stays pure and testable.
//
// Failure modes map to distinct permanent rejections: a missing header, a
// signature that does not verify (including timestamps outside the provider's
// tolerance window), and a body that verifies but is not a parseable event.
func Validate(payload []byte, sigHeader, secret string) (*stripe.Event, error) {
	if len(payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	}
	if strings.TrimSpace(sigHeader) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signature header missing")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing secret not configured")
	}

	if err := webhook.ValidatePayload(payload, sigHeader, secret); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify signature")
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode event")
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "event id missing")
	}
	if event.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "event type missing")
	}

	return &event, nil
}
