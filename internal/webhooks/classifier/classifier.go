package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

// Rule names recorded in the audit ledger alongside the routing decision.
const (
	RuleEventType             = "event-type"
	RuleSubscriptionMarker    = "subscription-marker"
	RuleCompanyBilling        = "company-billing"
	RuleInvoiceReference      = "invoice-reference"
	RuleDescriptionVocabulary = "description-vocabulary"
	RuleListingDefault        = "listing-default"
)

// descriptionVocabulary is the fixed set of recurring-billing terms matched
// against operator-provided free text. Weakest signal, evaluated last.
var descriptionVocabulary = []string{"subscription", "recurring", "plan"}

// Decision is the routing outcome for one event: the business domain and the
// name of the rule that decided it.
type Decision struct {
	Domain enums.WebhookDomain
	Rule   string
}

// Weak reports whether the decision rests on the free-text fallback, the
// most likely rule to misroute.
func (d Decision) Weak() bool {
	return d.Rule == RuleDescriptionVocabulary
}

// Subscription lifecycle and invoice events carry their domain in the event
// type itself.
var fixedSubscriptionTypes = map[stripe.EventType]struct{}{
	stripe.EventTypeCustomerSubscriptionCreated: {},
	stripe.EventTypeCustomerSubscriptionUpdated: {},
	stripe.EventTypeCustomerSubscriptionDeleted: {},
	stripe.EventTypeInvoicePaid:                 {},
	stripe.EventTypeInvoicePaymentSucceeded:     {},
	stripe.EventTypeInvoicePaymentFailed:        {},
}

// Payment and checkout events are not natively tagged with a business
// domain by the provider; they go through the ordered heuristic below.
var heuristicTypes = map[stripe.EventType]struct{}{
	stripe.EventTypePaymentIntentSucceeded:     {},
	stripe.EventTypePaymentIntentPaymentFailed: {},
	stripe.EventTypePaymentIntentCanceled:      {},
	stripe.EventTypeChargeSucceeded:            {},
	stripe.EventTypeChargeFailed:               {},
	stripe.EventTypeChargeRefunded:             {},
	stripe.EventTypeCheckoutSessionCompleted:   {},
	stripe.EventTypeCheckoutSessionExpired:     {},
}

// Classify routes a verified event to exactly one business domain. It is a
// pure function of the event: same input, same decision.
//
// Heuristic order encodes signal strength. Structural metadata (explicit
// ids) outranks the invoice reference, which outranks operator-provided
// description text. First match wins.
func Classify(event *stripe.Event) (Decision, error) {
	if event == nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}

	if _, ok := fixedSubscriptionTypes[event.Type]; ok {
		return Decision{Domain: enums.WebhookDomainSubscription, Rule: RuleEventType}, nil
	}

	if _, ok := heuristicTypes[event.Type]; !ok {
		err := pkgerrors.New(pkgerrors.CodeUnsupportedEvent, fmt.Sprintf("unknown event type %q", event.Type))
		return Decision{}, err.WithDetails(map[string]any{"event_type": string(event.Type)})
	}

	payload := objectPayload(event)
	meta := metadataStrings(payload)

	if hasSubscriptionMarker(payload, meta) {
		return Decision{Domain: enums.WebhookDomainSubscription, Rule: RuleSubscriptionMarker}, nil
	}
	if hasCompanyBillingMarker(meta) {
		return Decision{Domain: enums.WebhookDomainSubscription, Rule: RuleCompanyBilling}, nil
	}
	if referenceID(payload, "invoice") != "" {
		return Decision{Domain: enums.WebhookDomainSubscription, Rule: RuleInvoiceReference}, nil
	}
	if descriptionMatchesVocabulary(payload) {
		return Decision{Domain: enums.WebhookDomainSubscription, Rule: RuleDescriptionVocabulary}, nil
	}

	return Decision{Domain: enums.WebhookDomainListing, Rule: RuleListingDefault}, nil
}

// hasSubscriptionMarker checks for an explicit subscription identifier or a
// subscription-typed metadata marker. Covers "subscription" and
// "company_subscription" checkout sessions alike.
func hasSubscriptionMarker(payload map[string]any, meta map[string]string) bool {
	if meta["subscription_id"] != "" {
		return true
	}
	if strings.Contains(strings.ToLower(meta["type"]), "subscription") {
		return true
	}
	return referenceID(payload, "subscription") != ""
}

// hasCompanyBillingMarker requires both the company marker and a company
// identifier; company billing is modeled as a subscription upstream.
func hasCompanyBillingMarker(meta map[string]string) bool {
	if meta["company_id"] == "" {
		return false
	}
	return meta["account_type"] == "company" || meta["account"] == "company"
}

func descriptionMatchesVocabulary(payload map[string]any) bool {
	description, _ := payload["description"].(string)
	if description == "" {
		return false
	}
	lowered := strings.ToLower(description)
	for _, term := range descriptionVocabulary {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// objectPayload returns the event's object as a generic map, preferring the
// pre-parsed form when the SDK provides it.
func objectPayload(event *stripe.Event) map[string]any {
	if event.Data == nil {
		return map[string]any{}
	}
	if len(event.Data.Object) > 0 {
		return event.Data.Object
	}
	payload := map[string]any{}
	if len(event.Data.Raw) > 0 {
		_ = json.Unmarshal(event.Data.Raw, &payload)
	}
	return payload
}

func metadataStrings(payload map[string]any) map[string]string {
	meta := map[string]string{}
	raw, ok := payload["metadata"].(map[string]any)
	if !ok {
		return meta
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	return meta
}

// referenceID extracts an id-valued field that the provider may send either
// as a bare id string or as an expanded object.
func referenceID(payload map[string]any, field string) string {
	switch v := payload[field].(type) {
	case string:
		return v
	case map[string]any:
		id, _ := v["id"].(string)
		return id
	default:
		return ""
	}
}
