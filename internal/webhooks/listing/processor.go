package listing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

// ErrListingNotFound is returned by collaborator adapters when the charge
// references a listing id with no local counterpart.
var ErrListingNotFound = errors.New("listing not found")

// MarkPaidInput is the derived data handed to the listing service. It
// carries absolute state, so replaying the same event is harmless.
type MarkPaidInput struct {
	ListingID   string
	Paid        bool
	Highlighted *bool
}

// Client is the listing-service collaborator surface the processor needs.
type Client interface {
	MarkPaid(ctx context.Context, input MarkPaidInput) error
}

type Processor struct {
	listings Client
	validate *validator.Validate
}

func NewProcessor(listings Client) (*Processor, error) {
	if listings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listing client required")
	}
	return &Processor{
		listings: listings,
		validate: validator.New(),
	}, nil
}

// listingPurchase is the metadata contract the marketplace checkout writes
// onto every listing charge.
type listingPurchase struct {
	ListingID string `validate:"required"`
	Items     []purchaseItem
}

type purchaseItem struct {
	Type      string `json:"type"`
	Highlight bool   `json:"highlight"`
}

// Process applies the listing-side business effect for a classified event.
// Failed charges are recorded without touching listing state; refunds revoke
// the paid flag.
func (p *Processor) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypeChargeSucceeded,
		stripe.EventTypeCheckoutSessionCompleted:
		purchase, err := p.decodePurchase(event)
		if err != nil {
			return err
		}
		return p.markPaid(ctx, purchase, true)

	case stripe.EventTypeChargeRefunded:
		purchase, err := p.decodePurchase(event)
		if err != nil {
			return err
		}
		return p.markPaid(ctx, purchase, false)

	case stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled,
		stripe.EventTypeChargeFailed,
		stripe.EventTypeCheckoutSessionExpired:
		// The ledger records the failed/expired delivery; listing state is
		// only ever mutated by a successful payment.
		return nil

	default:
		return pkgerrors.New(pkgerrors.CodeUnsupportedEvent, "event type not handled by listing processor").
			WithDetails(map[string]any{"event_type": string(event.Type)})
	}
}

func (p *Processor) decodePurchase(event *stripe.Event) (*listingPurchase, error) {
	var object struct {
		Metadata map[string]string `json:"metadata"`
	}
	if len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode charge object")
		}
	}

	purchase := &listingPurchase{
		ListingID: object.Metadata["listing_id"],
	}

	// Items metadata is optional: absent or unparsable items simply mean no
	// highlight toggle.
	if raw := object.Metadata["items"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &purchase.Items)
	}

	if err := p.validate.Struct(purchase); err != nil {
		return nil, pkgerrors.MissingField("listing_id")
	}
	return purchase, nil
}

func (p *Processor) markPaid(ctx context.Context, purchase *listingPurchase, paid bool) error {
	input := MarkPaidInput{
		ListingID: purchase.ListingID,
		Paid:      paid,
	}
	if highlighted := purchase.highlighted(); highlighted != nil {
		input.Highlighted = highlighted
	}

	if err := p.listings.MarkPaid(ctx, input); err != nil {
		if errors.Is(err, ErrListingNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeLookup, err, "resolve listing").
				WithDetails(map[string]any{"listing_id": purchase.ListingID})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing paid")
	}
	return nil
}

// highlighted reports whether the purchase included a highlight product.
// Returns nil when items carried no listing entry at all, so the
// collaborator can distinguish "no signal" from "explicitly off".
func (l *listingPurchase) highlighted() *bool {
	for _, item := range l.Items {
		if item.Type == "listing" {
			h := item.Highlight
			return &h
		}
	}
	return nil
}
