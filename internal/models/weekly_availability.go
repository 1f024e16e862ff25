package models

import "time"

// WeeklyAvailability is a recurring open window. DayOfWeek follows
// time.Weekday: 0 is Sunday, 6 is Saturday.
type WeeklyAvailability struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DayOfWeek int    `gorm:"index;not null" json:"dayOfWeek"`
	StartTime string `gorm:"size:5;not null" json:"startTime"`
	EndTime   string `gorm:"size:5;not null" json:"endTime"`
	Active    bool   `gorm:"default:true" json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
