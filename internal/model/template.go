package model

import (
	"time"

	"gorm.io/datatypes"
)

// RecurrenceData carries pattern-specific settings.
// Days are offsets in days from the materialization date, Time is the "H:MM" time of day.
type RecurrenceData struct {
	Days  []int  `json:"days,omitempty"`
	Time  string `json:"time,omitempty"`
	RRule string `json:"rrule,omitempty"`
}

// TaskTemplate is a recurring task definition from which instances are materialized.
type TaskTemplate struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"not null;index;index:idx_templates_active,priority:1"`

	Title           string `gorm:"size:500;not null"`
	NormalizedTitle string `gorm:"size:500;index"`
	Description     *string

	Priority          int  `gorm:"not null;default:3"`
	EstimatedDuration *int // minutes

	RecurrencePattern  RecurrencePattern                  `gorm:"size:16;not null;default:none"`
	RecurrenceInterval int                                `gorm:"not null;default:1"`
	RecurrenceData     datatypes.JSONType[RecurrenceData] `gorm:"not null"`
	TimePreference     TimePreference                     `gorm:"size:16;not null;default:anytime"`

	LastInstanceCreatedAt *time.Time
	NextSuggestedDate     *time.Time
	InstanceCount         int `gorm:"not null;default:0"`

	Origin                TaskOrigin `gorm:"size:16;not null;default:user"`
	PromotedFromClusterID *uint
	Confidence            float64 `gorm:"not null"`

	Active    bool `gorm:"not null;default:true;index:idx_templates_active,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Instances     []TaskInstance `gorm:"foreignKey:TemplateID;constraint:OnDelete:SET NULL"`
	MatchAttempts []MatchAttempt `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

// NewTemplate returns a user template with the documented defaults.
func NewTemplate(userID uint, title string) TaskTemplate {
	return TaskTemplate{
		UserID:             userID,
		Title:              title,
		Priority:           3,
		RecurrencePattern:  RecurrenceNone,
		RecurrenceInterval: 1,
		RecurrenceData:     datatypes.NewJSONType(RecurrenceData{}),
		TimePreference:     PreferAnytime,
		Origin:             OriginUser,
		Confidence:         1.0,
		Active:             true,
	}
}

func (t TaskTemplate) Recurrence() RecurrenceData {
	return t.RecurrenceData.Data()
}

// DurationOrDefault returns the estimated duration, or 60 minutes when unset.
func (t TaskTemplate) DurationOrDefault() time.Duration {
	if t.EstimatedDuration == nil || *t.EstimatedDuration <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(*t.EstimatedDuration) * time.Minute
}
