package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lukaskovac/motormarkt-backend/pkg/enums"
)

// WebhookEvent is the idempotency and audit ledger row for one provider
// event. EventID is the provider-assigned id; the unique index on it is what
// makes the processing claim atomic under concurrent redelivery.
type WebhookEvent struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID          string                 `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_event_id"`
	EventType        string                 `gorm:"column:event_type;not null"`
	Domain           enums.WebhookDomain    `gorm:"column:domain;not null"`
	MatchedRule      string                 `gorm:"column:matched_rule;not null"`
	Status           enums.ProcessingStatus `gorm:"column:status;not null;default:'received'"`
	Attempts         int                    `gorm:"column:attempts;not null;default:1"`
	StartedAt        time.Time              `gorm:"column:started_at;not null"`
	CompletedAt      *time.Time             `gorm:"column:completed_at"`
	ErrorDetail      *string                `gorm:"column:error_detail"`
	ProcessingTimeMs *int64                 `gorm:"column:processing_time_ms"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the ledger table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
