package listing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

type fakeListings struct {
	calls []MarkPaidInput
	err   error
}

func (f *fakeListings) MarkPaid(_ context.Context, input MarkPaidInput) error {
	f.calls = append(f.calls, input)
	return f.err
}

func chargeEvent(t *testing.T, eventType stripe.EventType, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": "ch_1", "metadata": metadata})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_listing",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestProcessMarksListingPaid(t *testing.T) {
	listings := &fakeListings{}
	proc, err := NewProcessor(listings)
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]string{
		"listing_id": "lst_42",
		"items":      `[{"type":"listing","highlight":true}]`,
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, listings.calls, 1)
	assert.Equal(t, "lst_42", listings.calls[0].ListingID)
	assert.True(t, listings.calls[0].Paid)
	require.NotNil(t, listings.calls[0].Highlighted)
	assert.True(t, *listings.calls[0].Highlighted)
}

func TestProcessRefundRevokesPaid(t *testing.T) {
	listings := &fakeListings{}
	proc, err := NewProcessor(listings)
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypeChargeRefunded, map[string]string{
		"listing_id": "lst_42",
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, listings.calls, 1)
	assert.False(t, listings.calls[0].Paid)
	assert.Nil(t, listings.calls[0].Highlighted)
}

func TestProcessFailedPaymentLeavesListingUntouched(t *testing.T) {
	listings := &fakeListings{}
	proc, err := NewProcessor(listings)
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypePaymentIntentPaymentFailed, map[string]string{
		"listing_id": "lst_42",
	})

	require.NoError(t, proc.Process(context.Background(), event))
	assert.Empty(t, listings.calls)
}

func TestProcessMissingListingID(t *testing.T) {
	proc, err := NewProcessor(&fakeListings{})
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypeChargeSucceeded, map[string]string{})

	err = proc.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMissingField, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.As(err).Retryable())
}

func TestProcessUnknownListing(t *testing.T) {
	proc, err := NewProcessor(&fakeListings{err: ErrListingNotFound})
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypeChargeSucceeded, map[string]string{
		"listing_id": "lst_missing",
	})

	err = proc.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeLookup, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.As(err).Retryable())
}

func TestProcessMalformedItemsIgnored(t *testing.T) {
	listings := &fakeListings{}
	proc, err := NewProcessor(listings)
	require.NoError(t, err)

	event := chargeEvent(t, stripe.EventTypeChargeSucceeded, map[string]string{
		"listing_id": "lst_42",
		"items":      "{not json",
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, listings.calls, 1)
	assert.Nil(t, listings.calls[0].Highlighted)
}
