// Package listings is the local adapter behind the listing-payment
// collaborator interface. The marketplace listing service owns the full
// record; this package only applies payment effects.
package listings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/listing"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
)

type paymentStateWriter interface {
	SetPaymentState(ctx context.Context, listingID string, paid bool, highlighted *bool, paidAt *time.Time) (bool, error)
}

type Service struct {
	repo paymentStateWriter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo paymentStateWriter, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("listing repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{repo: repo, logg: logg, now: time.Now}, nil
}

// MarkPaid applies the payment outcome to the listing row.
func (s *Service) MarkPaid(ctx context.Context, input listing.MarkPaidInput) error {
	if input.ListingID == "" {
		return errors.New("listing id is required")
	}

	var paidAt *time.Time
	if input.Paid {
		now := s.now().UTC()
		paidAt = &now
	}

	updated, err := s.repo.SetPaymentState(ctx, input.ListingID, input.Paid, input.Highlighted, paidAt)
	if err != nil {
		return fmt.Errorf("set listing payment state: %w", err)
	}
	if !updated {
		return listing.ErrListingNotFound
	}

	fields := map[string]any{"listing_id": input.ListingID, "paid": input.Paid}
	s.logg.Info(s.logg.WithFields(ctx, fields), "listing payment state updated")
	return nil
}
