package enums

import "fmt"

// WebhookDomain names the business pipeline a webhook event is routed to.
type WebhookDomain string

const (
	WebhookDomainListing      WebhookDomain = "listing"
	WebhookDomainSubscription WebhookDomain = "subscription"
)

var validWebhookDomains = []WebhookDomain{
	WebhookDomainListing,
	WebhookDomainSubscription,
}

// String implements fmt.Stringer.
func (d WebhookDomain) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d WebhookDomain) IsValid() bool {
	for _, candidate := range validWebhookDomains {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseWebhookDomain converts raw input into a WebhookDomain.
func ParseWebhookDomain(value string) (WebhookDomain, error) {
	for _, candidate := range validWebhookDomains {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook domain %q", value)
}
