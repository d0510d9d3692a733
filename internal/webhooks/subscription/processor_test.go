package subscription

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

type fakeSubscriptions struct {
	calls []ApplyInput
	err   error
}

func (f *fakeSubscriptions) Apply(_ context.Context, input ApplyInput) error {
	f.calls = append(f.calls, input)
	return f.err
}

type fakeNotifier struct {
	companies []string
	err       error
}

func (f *fakeNotifier) CompanyActivated(_ context.Context, companyID, _ string) error {
	f.companies = append(f.companies, companyID)
	return f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestProcessor(t *testing.T, subs Client, notifier ActivationNotifier) *Processor {
	t.Helper()
	proc, err := NewProcessor(subs, notifier, testLogger())
	require.NoError(t, err)
	return proc
}

func rawEvent(t *testing.T, eventType stripe.EventType, object map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_sub", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestCheckoutCompletedActivatesCompany(t *testing.T) {
	subs := &fakeSubscriptions{}
	notifier := &fakeNotifier{}
	proc := newTestProcessor(t, subs, notifier)

	event := rawEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_1",
		"subscription": "sub_77",
		"metadata": map[string]string{
			"company_id": "comp_9",
			"type":       "company_subscription",
		},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, "sub_77", subs.calls[0].SubscriptionID)
	assert.Equal(t, enums.SubscriptionEventActivated, subs.calls[0].EventKind)
	require.NotNil(t, subs.calls[0].CompanyID)
	assert.Equal(t, "comp_9", *subs.calls[0].CompanyID)
	assert.Equal(t, []string{"comp_9"}, notifier.companies)
}

func TestCheckoutCompletedPrivateAccountSkipsNotification(t *testing.T) {
	subs := &fakeSubscriptions{}
	notifier := &fakeNotifier{}
	proc := newTestProcessor(t, subs, notifier)

	event := rawEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_2",
		"subscription": map[string]any{"id": "sub_78"},
		"metadata":     map[string]string{"subscription_id": "ignored"},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, "sub_78", subs.calls[0].SubscriptionID)
	assert.Nil(t, subs.calls[0].CompanyID)
	assert.Empty(t, notifier.companies)
}

func TestNotificationFailureDoesNotFailEvent(t *testing.T) {
	subs := &fakeSubscriptions{}
	notifier := &fakeNotifier{err: context.DeadlineExceeded}
	proc := newTestProcessor(t, subs, notifier)

	event := rawEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"subscription": "sub_79",
		"metadata": map[string]string{
			"company_id":   "comp_1",
			"account_type": "company",
		},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
}

func TestLifecycleReconcile(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":                   "sub_80",
		"status":               "past_due",
		"current_period_end":   1767225600,
		"cancel_at_period_end": true,
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, enums.SubscriptionEventUpdated, subs.calls[0].EventKind)

	var snapshot lifecycleSnapshot
	require.NoError(t, json.Unmarshal(subs.calls[0].Payload, &snapshot))
	assert.Equal(t, "past_due", snapshot.Status)
	assert.True(t, snapshot.CancelAtEnd)
	require.NotNil(t, snapshot.CurrentPeriodEnd)
}

func TestInvoicePaidRecordsDecimalAmount(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypeInvoicePaid, map[string]any{
		"id":           "in_1",
		"subscription": "sub_81",
		"amount_paid":  2999,
		"currency":     "EUR",
		"paid":         true,
		"lines": map[string]any{
			"data": []map[string]any{
				{"period": map[string]any{"end": 1769904000}},
			},
		},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, enums.SubscriptionEventInvoicePaid, subs.calls[0].EventKind)

	var payment invoicePayment
	require.NoError(t, json.Unmarshal(subs.calls[0].Payload, &payment))
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, "eur", payment.Currency)
	assert.True(t, payment.Paid)
	require.NotNil(t, payment.NextBillingAt)
}

func TestInvoiceWithoutSubscriptionReference(t *testing.T) {
	proc := newTestProcessor(t, &fakeSubscriptions{}, nil)

	event := rawEvent(t, stripe.EventTypeInvoicePaymentFailed, map[string]any{
		"id":         "in_2",
		"amount_due": 2999,
		"currency":   "eur",
	})

	err := proc.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMissingField, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.As(err).Retryable())
}

func TestDirectPaymentAppliedFromMetadata(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_1",
		"amount":   4900,
		"currency": "eur",
		"metadata": map[string]string{"subscription_id": "sub_82"},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, enums.SubscriptionEventPaymentApplied, subs.calls[0].EventKind)
	assert.Equal(t, "sub_82", subs.calls[0].SubscriptionID)
}

func TestInvoiceOnlyPaymentRecordsAgainstInvoice(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_3",
		"amount":   4900,
		"currency": "eur",
		"invoice":  "in_123",
		"metadata": map[string]string{},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, enums.SubscriptionEventPaymentApplied, subs.calls[0].EventKind)
	assert.Empty(t, subs.calls[0].SubscriptionID)
	assert.Equal(t, "in_123", subs.calls[0].InvoiceID)

	var payment invoicePayment
	require.NoError(t, json.Unmarshal(subs.calls[0].Payload, &payment))
	assert.Equal(t, "in_123", payment.InvoiceID)
	assert.True(t, payment.Paid)
}

func TestInvoiceOnlyPaymentExpandedInvoiceObject(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypeChargeSucceeded, map[string]any{
		"id":      "ch_1",
		"amount":  1500,
		"invoice": map[string]any{"id": "in_456"},
	})

	require.NoError(t, proc.Process(context.Background(), event))
	require.Len(t, subs.calls, 1)
	assert.Equal(t, "in_456", subs.calls[0].InvoiceID)
}

func TestPaymentWithoutAnyReference(t *testing.T) {
	proc := newTestProcessor(t, &fakeSubscriptions{}, nil)

	event := rawEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_4",
		"amount":   4900,
		"metadata": map[string]string{},
	})

	err := proc.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMissingField, pkgerrors.As(err).Code())
}

func TestUnknownSubscriptionIsRetryableLookup(t *testing.T) {
	proc := newTestProcessor(t, &fakeSubscriptions{err: ErrSubscriptionNotFound}, nil)

	event := rawEvent(t, stripe.EventTypeCustomerSubscriptionCreated, map[string]any{
		"id":     "sub_83",
		"status": "active",
	})

	err := proc.Process(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeLookup, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.As(err).Retryable())
}

func TestFailedPaymentIsNoOp(t *testing.T) {
	subs := &fakeSubscriptions{}
	proc := newTestProcessor(t, subs, nil)

	event := rawEvent(t, stripe.EventTypePaymentIntentPaymentFailed, map[string]any{"id": "pi_2"})

	require.NoError(t, proc.Process(context.Background(), event))
	assert.Empty(t, subs.calls)
}
