package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing carries the payment-facing slice of a vehicle listing. The
// marketplace's own listing service owns the rest of the record; webhook
// processing only ever flips the payment flags.
type Listing struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID   string     `gorm:"column:listing_id;not null;uniqueIndex:ux_listings_listing_id"`
	Paid        bool       `gorm:"column:paid;not null;default:false"`
	Highlighted bool       `gorm:"column:highlighted;not null;default:false"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Listing) TableName() string {
	return "listings"
}
