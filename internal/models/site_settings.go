package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SiteSettings is owned by the admin settings collaborator; the core only
// reads it.
type SiteSettings struct {
	ID uint `gorm:"primaryKey" json:"id"`

	BookingAdvanceMinDays     int             `json:"bookingAdvanceMinDays"`
	BookingAdvanceMaxDays     int             `json:"bookingAdvanceMaxDays"`
	CancellationDeadlineHours int             `json:"cancellationDeadlineHours"`
	DepositAmount             decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"depositAmount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
