package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

// ErrSubscriptionNotFound is returned by collaborator adapters when the
// referenced subscription has no local counterpart yet.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// ApplyInput carries black-box subscription state toward the collaborator.
// Payload is the normalized detail for the event kind (invoice amounts,
// lifecycle snapshot), already decoded from provider shapes. Payments that
// arrive without a subscription reference carry the invoice id instead;
// the collaborator resolves the subscription from it.
type ApplyInput struct {
	SubscriptionID string
	InvoiceID      string
	CompanyID      *string
	EventKind      enums.SubscriptionEventKind
	Payload        json.RawMessage
}

// Client is the subscription-service collaborator surface.
type Client interface {
	Apply(ctx context.Context, input ApplyInput) error
}

// ActivationNotifier fires the side channel for company-account
// activations. Notification delivery never fails the webhook.
type ActivationNotifier interface {
	CompanyActivated(ctx context.Context, companyID, subscriptionID string) error
}

type Processor struct {
	subscriptions Client
	notifier      ActivationNotifier
	logg          *logger.Logger
}

func NewProcessor(subscriptions Client, notifier ActivationNotifier, logg *logger.Logger) (*Processor, error) {
	if subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Processor{
		subscriptions: subscriptions,
		notifier:      notifier,
		logg:          logg,
	}, nil
}

// invoicePayment is the normalized invoice detail forwarded to the
// collaborator on invoice events.
type invoicePayment struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Paid          bool            `json:"paid"`
	NextBillingAt *time.Time      `json:"next_billing_at,omitempty"`
}

// lifecycleSnapshot is the normalized subscription state forwarded on
// lifecycle events.
type lifecycleSnapshot struct {
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CancelAtEnd      bool       `json:"cancel_at_period_end"`
}

func (p *Processor) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return p.activate(ctx, event)

	case stripe.EventTypeCustomerSubscriptionCreated:
		return p.reconcile(ctx, event, enums.SubscriptionEventCreated)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return p.reconcile(ctx, event, enums.SubscriptionEventUpdated)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return p.reconcile(ctx, event, enums.SubscriptionEventDeleted)

	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentSucceeded:
		return p.recordInvoice(ctx, event, enums.SubscriptionEventInvoicePaid)
	case stripe.EventTypeInvoicePaymentFailed:
		return p.recordInvoice(ctx, event, enums.SubscriptionEventInvoiceFailed)

	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypeChargeSucceeded:
		return p.recordPayment(ctx, event)

	case stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled,
		stripe.EventTypeChargeFailed,
		stripe.EventTypeCheckoutSessionExpired:
		// Delivery is ledgered; subscription state key only moves on
		// successful payments or explicit lifecycle events.
		return nil

	default:
		return pkgerrors.New(pkgerrors.CodeUnsupportedEvent, "event type not handled by subscription processor").
			WithDetails(map[string]any{"event_type": string(event.Type)})
	}
}

// activate handles checkout completion. Company accounts additionally fire
// the activation notification hook.
func (p *Processor) activate(ctx context.Context, event *stripe.Event) error {
	var session struct {
		Subscription json.RawMessage   `json:"subscription"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode checkout session")
	}

	subscriptionID := idFromExpandable(session.Subscription)
	if subscriptionID == "" {
		subscriptionID = session.Metadata["subscription_id"]
	}
	if subscriptionID == "" {
		return pkgerrors.MissingField("subscription")
	}

	input := ApplyInput{
		SubscriptionID: subscriptionID,
		EventKind:      enums.SubscriptionEventActivated,
	}
	companyID := session.Metadata["company_id"]
	if companyID != "" {
		input.CompanyID = &companyID
	}

	if err := p.apply(ctx, input); err != nil {
		return err
	}

	if companyID != "" && isCompanyAccount(session.Metadata) && p.notifier != nil {
		if err := p.notifier.CompanyActivated(ctx, companyID, subscriptionID); err != nil {
			notifyCtx := p.logg.WithFields(ctx, map[string]any{
				"company_id": companyID,
				"error":      err.Error(),
			})
			p.logg.Warn(notifyCtx, "company activation notification failed")
		}
	}
	return nil
}

func (p *Processor) reconcile(ctx context.Context, event *stripe.Event, kind enums.SubscriptionEventKind) error {
	var sub struct {
		ID               string            `json:"id"`
		Status           string            `json:"status"`
		CurrentPeriodEnd int64             `json:"current_period_end"`
		CancelAtEnd      bool              `json:"cancel_at_period_end"`
		Metadata         map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode subscription")
	}
	if sub.ID == "" {
		return pkgerrors.MissingField("id")
	}

	snapshot := lifecycleSnapshot{
		Status:      sub.Status,
		CancelAtEnd: sub.CancelAtEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		snapshot.CurrentPeriodEnd = &end
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode lifecycle snapshot")
	}

	input := ApplyInput{
		SubscriptionID: sub.ID,
		EventKind:      kind,
		Payload:        payload,
	}
	if companyID := sub.Metadata["company_id"]; companyID != "" {
		input.CompanyID = &companyID
	}
	return p.apply(ctx, input)
}

func (p *Processor) recordInvoice(ctx context.Context, event *stripe.Event, kind enums.SubscriptionEventKind) error {
	var invoice struct {
		ID           string          `json:"id"`
		Subscription json.RawMessage `json:"subscription"`
		AmountPaid   int64           `json:"amount_paid"`
		AmountDue    int64           `json:"amount_due"`
		Currency     string          `json:"currency"`
		Paid         bool            `json:"paid"`
		Lines        struct {
			Data []struct {
				Period struct {
					End int64 `json:"end"`
				} `json:"period"`
			} `json:"data"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode invoice")
	}

	subscriptionID := idFromExpandable(invoice.Subscription)
	if subscriptionID == "" {
		return pkgerrors.MissingField("subscription")
	}

	cents := invoice.AmountPaid
	if kind == enums.SubscriptionEventInvoiceFailed {
		cents = invoice.AmountDue
	}
	payment := invoicePayment{
		InvoiceID: invoice.ID,
		Amount:    decimal.New(cents, -2),
		Currency:  strings.ToLower(invoice.Currency),
		Paid:      invoice.Paid,
	}
	for _, line := range invoice.Lines.Data {
		if line.Period.End > 0 {
			next := time.Unix(line.Period.End, 0).UTC()
			payment.NextBillingAt = &next
		}
	}

	payload, err := json.Marshal(payment)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode invoice payment")
	}
	return p.apply(ctx, ApplyInput{
		SubscriptionID: subscriptionID,
		EventKind:      kind,
		Payload:        payload,
	})
}

// recordPayment handles direct charges the classifier routed here, either
// on metadata markers or on a bare invoice reference. When only the
// invoice is present the collaborator resolves the subscription from it.
func (p *Processor) recordPayment(ctx context.Context, event *stripe.Event) error {
	var charge struct {
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Invoice  json.RawMessage   `json:"invoice"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode charge")
	}

	subscriptionID := charge.Metadata["subscription_id"]
	invoiceID := idFromExpandable(charge.Invoice)
	if subscriptionID == "" && invoiceID == "" {
		return pkgerrors.MissingField("subscription_id")
	}

	payment := invoicePayment{
		InvoiceID: invoiceID,
		Amount:    decimal.New(charge.Amount, -2),
		Currency:  strings.ToLower(charge.Currency),
		Paid:      true,
	}
	payload, err := json.Marshal(payment)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment")
	}

	input := ApplyInput{
		SubscriptionID: subscriptionID,
		InvoiceID:      invoiceID,
		EventKind:      enums.SubscriptionEventPaymentApplied,
		Payload:        payload,
	}
	if companyID := charge.Metadata["company_id"]; companyID != "" {
		input.CompanyID = &companyID
	}
	return p.apply(ctx, input)
}

func (p *Processor) apply(ctx context.Context, input ApplyInput) error {
	if err := p.subscriptions.Apply(ctx, input); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			details := map[string]any{"subscription_id": input.SubscriptionID}
			if input.InvoiceID != "" {
				details["invoice_id"] = input.InvoiceID
			}
			return pkgerrors.Wrap(pkgerrors.CodeLookup, err, "resolve subscription").
				WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply subscription event")
	}
	return nil
}

func isCompanyAccount(metadata map[string]string) bool {
	if strings.EqualFold(metadata["account_type"], "company") {
		return true
	}
	if strings.EqualFold(metadata["account"], "company") {
		return true
	}
	return strings.Contains(strings.ToLower(metadata["type"]), "company")
}

// idFromExpandable extracts the id from a reference field that the
// provider sends either as a bare string or as an expanded object.
func idFromExpandable(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		return object.ID
	}
	return ""
}
