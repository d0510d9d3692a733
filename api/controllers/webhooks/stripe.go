package webhooks

import (
	"context"
	"io"
	"net/http"

	stripelib "github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/api/responses"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/signature"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
	"github.com/lukaskovac/motormarkt-backend/pkg/stripe"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripelib.Event) (*webhooks.Ack, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret(scope stripe.WebhookScope) string
}

// StripeWebhook handles inbound payment events for one signing scope. The
// general endpoint and the company-subscription endpoint share this handler
// and differ only in the secret the scope selects.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, scope stripe.WebhookScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := signature.Validate(payload, r.Header.Get("Stripe-Signature"), client.SigningSecret(scope))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyMarked, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyMarked {
			if logg != nil {
				logg.Info(logg.WithEventID(ctx, event.ID), "duplicate delivery stopped at guard")
			}
			responses.WriteSuccess(w, webhooks.Ack{EventID: event.ID, Duplicate: true})
			return
		}

		ack, err := svc.HandleEvent(ctx, event)
		if err != nil {
			// Drop the guard mark so the provider's redelivery gets through.
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, ack)
	}
}

// StripeWebhookProbe answers endpoint reachability checks from provider
// dashboards and uptime monitors.
func StripeWebhookProbe() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "reachable"})
	}
}
