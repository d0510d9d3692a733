package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription mirrors the provider-side subscription state the webhook
// core is responsible for keeping current.
type Subscription struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID    string           `gorm:"column:subscription_id;not null;uniqueIndex:ux_subscriptions_subscription_id"`
	CompanyID         *string          `gorm:"column:company_id"`
	Status            string           `gorm:"column:status;not null;default:'pending'"`
	CancelAtPeriodEnd bool             `gorm:"column:cancel_at_period_end;not null;default:false"`
	CurrentPeriodEnd  *time.Time       `gorm:"column:current_period_end"`
	LastInvoiceID     *string          `gorm:"column:last_invoice_id"`
	LastPaymentAmount *decimal.Decimal `gorm:"column:last_payment_amount;type:numeric(12,2)"`
	LastPaymentAt     *time.Time       `gorm:"column:last_payment_at"`
	NextBillingAt     *time.Time       `gorm:"column:next_billing_at"`
	ActivatedAt       *time.Time       `gorm:"column:activated_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
