package listings

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lukaskovac/motormarkt-backend/pkg/db/models"
)

// Repository handles the payment-facing listing columns.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SetPaymentState writes absolute payment state in one statement so
// replays converge on the same row. Returns false when no listing matches.
func (r *Repository) SetPaymentState(ctx context.Context, listingID string, paid bool, highlighted *bool, paidAt *time.Time) (bool, error) {
	updates := map[string]any{
		"paid":    paid,
		"paid_at": paidAt,
	}
	if highlighted != nil {
		updates["highlighted"] = *highlighted
	}

	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("listing_id = ?", listingID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
