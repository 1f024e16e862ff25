package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	UserID    string  `gorm:"size:64;index;not null" json:"userId"`
	ServiceID uint    `gorm:"index;not null" json:"serviceId"`
	Service   Service `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`

	Date      string `gorm:"size:10;index;not null" json:"date"`
	StartTime string `gorm:"size:5;not null" json:"startTime"`
	// EndTime is frozen at creation.
	EndTime string `gorm:"size:5;not null" json:"endTime"`

	Status         string          `gorm:"size:20;index;not null" json:"status"`
	PriceAtBooking decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"priceAtBooking"`
	Notes          string          `gorm:"size:500" json:"notes"`

	CancelReason string     `gorm:"size:255" json:"cancelReason,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`

	DepositAmount            decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"depositAmount"`
	IsDepositPaid            bool            `gorm:"default:false" json:"isDepositPaid"`
	DepositPaidAt            *time.Time      `json:"depositPaidAt,omitempty"`
	ExternalPaymentSessionID *string         `gorm:"size:255;uniqueIndex" json:"externalPaymentSessionId,omitempty"`
	ExternalPaymentIntentID  *string         `gorm:"size:255" json:"externalPaymentIntentId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
