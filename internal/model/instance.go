package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskInstance is one dated occurrence of a task. A non-nil CalendarEventID makes the row the
// local mirror of exactly one external event.
type TaskInstance struct {
	ID         uint  `gorm:"primaryKey"`
	UserID     uint  `gorm:"not null;index;index:idx_instances_matching,priority:1"`
	TemplateID *uint `gorm:"index"`

	Title           string `gorm:"size:500;not null"`
	NormalizedTitle string `gorm:"size:500"`
	Description     *string
	Priority        int `gorm:"not null;default:3"`

	ScheduledStart time.Time `gorm:"not null;index"`
	ScheduledEnd   time.Time `gorm:"not null"`

	Location    *string  `gorm:"size:500"`
	LocationLat *float64 `gorm:"column:location_lat"`
	LocationLon *float64 `gorm:"column:location_lon"`
	URL         *string  `gorm:"column:url;size:1000"`

	AlertsMinutes datatypes.JSONSlice[int]

	CalendarEventID *string `gorm:"size:255;uniqueIndex"`
	CalendarName    *string `gorm:"size:100"`

	Status      TaskStatus `gorm:"size:16;not null;default:scheduled"`
	CompletedAt *time.Time

	Origin         TaskOrigin     `gorm:"size:16;not null;default:system"`
	MatchingStatus MatchingStatus `gorm:"size:16;not null;default:pending;index:idx_instances_matching,priority:2"`

	CreatedAt time.Time
	UpdatedAt time.Time

	MatchAttempts []MatchAttempt    `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE"`
	ClusterLinks  []ClusterInstance `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE"`
}

// HasExternalEvent reports whether the instance mirrors an external calendar event.
func (i TaskInstance) HasExternalEvent() bool {
	return i.CalendarEventID != nil && *i.CalendarEventID != ""
}
