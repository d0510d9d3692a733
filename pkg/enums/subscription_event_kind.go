package enums

import "fmt"

// SubscriptionEventKind is the normalized event kind handed to the
// subscription collaborator.
type SubscriptionEventKind string

const (
	SubscriptionEventActivated      SubscriptionEventKind = "activated"
	SubscriptionEventCreated        SubscriptionEventKind = "created"
	SubscriptionEventUpdated        SubscriptionEventKind = "updated"
	SubscriptionEventDeleted        SubscriptionEventKind = "deleted"
	SubscriptionEventInvoicePaid    SubscriptionEventKind = "invoice_paid"
	SubscriptionEventInvoiceFailed  SubscriptionEventKind = "invoice_failed"
	SubscriptionEventPaymentApplied SubscriptionEventKind = "payment_applied"
)

var validSubscriptionEventKinds = []SubscriptionEventKind{
	SubscriptionEventActivated,
	SubscriptionEventCreated,
	SubscriptionEventUpdated,
	SubscriptionEventDeleted,
	SubscriptionEventInvoicePaid,
	SubscriptionEventInvoiceFailed,
	SubscriptionEventPaymentApplied,
}

// String implements fmt.Stringer.
func (k SubscriptionEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k SubscriptionEventKind) IsValid() bool {
	for _, candidate := range validSubscriptionEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseSubscriptionEventKind converts raw input into a SubscriptionEventKind.
func ParseSubscriptionEventKind(value string) (SubscriptionEventKind, error) {
	for _, candidate := range validSubscriptionEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription event kind %q", value)
}
