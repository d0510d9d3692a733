// Package subscriptions is the local adapter behind the subscription
// collaborator interface. It keeps the provider-side subscription mirror
// current; plans, entitlements and billing UX live elsewhere.
package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/subscription"
	"github.com/lukaskovac/motormarkt-backend/pkg/db/models"
	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

type repository interface {
	Upsert(ctx context.Context, record *models.Subscription, columns []string) error
	UpdateByID(ctx context.Context, subscriptionID string, updates map[string]any) (bool, error)
	UpdateByInvoiceID(ctx context.Context, invoiceID string, updates map[string]any) (bool, error)
}

type Service struct {
	repo repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("subscription repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{repo: repo, logg: logg, now: time.Now}, nil
}

type lifecyclePayload struct {
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CancelAtEnd      bool       `json:"cancel_at_period_end"`
}

type invoicePayload struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Paid          bool            `json:"paid"`
	NextBillingAt *time.Time      `json:"next_billing_at"`
}

// Apply moves the subscription mirror to the state the event describes.
// Every branch writes absolute values, so replays are harmless.
func (s *Service) Apply(ctx context.Context, input subscription.ApplyInput) error {
	if input.SubscriptionID == "" {
		// Payments may reference only the invoice; every other kind needs
		// the subscription id.
		if input.EventKind != enums.SubscriptionEventPaymentApplied || input.InvoiceID == "" {
			return errors.New("subscription id is required")
		}
	}

	var err error
	switch input.EventKind {
	case enums.SubscriptionEventActivated:
		err = s.activate(ctx, input)
	case enums.SubscriptionEventCreated, enums.SubscriptionEventUpdated:
		err = s.reconcile(ctx, input, "")
	case enums.SubscriptionEventDeleted:
		err = s.reconcile(ctx, input, "canceled")
	case enums.SubscriptionEventInvoicePaid, enums.SubscriptionEventPaymentApplied:
		err = s.recordPayment(ctx, input, true)
	case enums.SubscriptionEventInvoiceFailed:
		err = s.recordPayment(ctx, input, false)
	default:
		return fmt.Errorf("unknown subscription event kind %q", input.EventKind)
	}
	if err != nil {
		return err
	}

	fields := map[string]any{
		"subscription_id": input.SubscriptionID,
		"event_kind":      input.EventKind.String(),
	}
	if input.InvoiceID != "" {
		fields["invoice_id"] = input.InvoiceID
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "subscription state applied")
	return nil
}

func (s *Service) activate(ctx context.Context, input subscription.ApplyInput) error {
	activatedAt := s.now().UTC()
	record := &models.Subscription{
		SubscriptionID: input.SubscriptionID,
		CompanyID:      input.CompanyID,
		Status:         "active",
		ActivatedAt:    &activatedAt,
	}
	columns := []string{"company_id", "status", "activated_at"}
	if err := s.repo.Upsert(ctx, record, columns); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	return nil
}

func (s *Service) reconcile(ctx context.Context, input subscription.ApplyInput, statusOverride string) error {
	var payload lifecyclePayload
	if len(input.Payload) > 0 {
		if err := json.Unmarshal(input.Payload, &payload); err != nil {
			return fmt.Errorf("decode lifecycle payload: %w", err)
		}
	}

	status := payload.Status
	if statusOverride != "" {
		status = statusOverride
	}

	updates := map[string]any{
		"cancel_at_period_end": payload.CancelAtEnd,
		"current_period_end":   payload.CurrentPeriodEnd,
	}
	if status != "" {
		updates["status"] = status
	}
	if input.CompanyID != nil {
		updates["company_id"] = *input.CompanyID
	}

	updated, err := s.repo.UpdateByID(ctx, input.SubscriptionID, updates)
	if err != nil {
		return fmt.Errorf("reconcile subscription: %w", err)
	}
	if !updated {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Service) recordPayment(ctx context.Context, input subscription.ApplyInput, paid bool) error {
	var payload invoicePayload
	if len(input.Payload) > 0 {
		if err := json.Unmarshal(input.Payload, &payload); err != nil {
			return fmt.Errorf("decode invoice payload: %w", err)
		}
	}

	updates := map[string]any{}
	if payload.InvoiceID != "" {
		updates["last_invoice_id"] = payload.InvoiceID
	}
	if paid {
		paidAt := s.now().UTC()
		updates["status"] = "active"
		updates["last_payment_amount"] = payload.Amount
		updates["last_payment_at"] = paidAt
		if payload.NextBillingAt != nil {
			updates["next_billing_at"] = *payload.NextBillingAt
		}
	} else {
		updates["status"] = "past_due"
	}

	var (
		updated bool
		err     error
	)
	if input.SubscriptionID != "" {
		updated, err = s.repo.UpdateByID(ctx, input.SubscriptionID, updates)
	} else {
		updated, err = s.repo.UpdateByInvoiceID(ctx, input.InvoiceID, updates)
	}
	if err != nil {
		return fmt.Errorf("record subscription payment: %w", err)
	}
	if !updated {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}
