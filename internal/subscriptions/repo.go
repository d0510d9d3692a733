package subscriptions

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lukaskovac/motormarkt-backend/pkg/db/models"
)

// Repository persists provider-subscription state.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates the subscription row or refreshes the given columns when
// it already exists. Activation may be the first time the id is seen.
func (r *Repository) Upsert(ctx context.Context, record *models.Subscription, columns []string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(record).Error
}

// UpdateByID applies the updates to an existing row. Returns false when the
// subscription id is unknown locally.
func (r *Repository) UpdateByID(ctx context.Context, subscriptionID string, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateByInvoiceID applies the updates to the row whose latest invoice
// matches. Payments that reference only an invoice resolve through here.
func (r *Repository) UpdateByInvoiceID(ctx context.Context, invoiceID string, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("last_invoice_id = ?", invoiceID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
