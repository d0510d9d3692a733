package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lukaskovac/motormarkt-backend/pkg/db"
	"github.com/lukaskovac/motormarkt-backend/pkg/db/models"
	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
)

// Repository persists the webhook event ledger. All claim semantics live in
// single statements so concurrent deliveries race on the database, not on
// application reads.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new ledger row. Returns false without error when a row
// for the same event_id already exists; the caller then inspects the prior
// row to decide between duplicate and re-claim.
func (r *Repository) Insert(ctx context.Context, record *models.WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		// A surfaced unique violation on the event id is a lost claim
		// race, not a store failure.
		if db.IsUniqueViolation(result.Error, "ux_webhook_events_event_id") {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var record models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Reclaim moves an eligible row back to processing for another attempt.
// Eligible rows are failed ones and processing rows whose claim went stale
// before staleBefore (a crash between claim and terminal write). The WHERE
// clause enforces status, staleness and the attempt ceiling in one
// statement, so only one concurrent caller can win and exhausted rows stay
// put.
func (r *Repository) Reclaim(ctx context.Context, eventID string, maxAttempts int, staleBefore, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND attempts < ? AND (status = ? OR (status = ? AND started_at < ?))",
			eventID, maxAttempts,
			enums.ProcessingStatusFailed,
			enums.ProcessingStatusProcessing, staleBefore).
		Updates(map[string]any{
			"status":             enums.ProcessingStatusProcessing,
			"attempts":           gorm.Expr("attempts + 1"),
			"started_at":         startedAt,
			"completed_at":       nil,
			"error_detail":       nil,
			"processing_time_ms": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Finish records the terminal outcome for a claimed row. The status guard
// keeps a late completion from clobbering a row that already went terminal
// under another delivery; it returns false when the write was skipped.
func (r *Repository) Finish(ctx context.Context, eventID string, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, enums.ProcessingStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
