package model

import (
	"time"

	"gorm.io/datatypes"
)

// LearnedPattern stores an observed habit such as a task frequency or preferred hour.
type LearnedPattern struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      uint    `gorm:"not null;index:idx_patterns_user_category,priority:1"`
	PatternType string  `gorm:"size:100;not null;index"`
	Category    *string `gorm:"size:100;index:idx_patterns_user_category,priority:2"`

	PatternData datatypes.JSONMap

	Confidence        float64   `gorm:"not null"`
	ObservationsCount int       `gorm:"not null;default:1"`
	LastUpdated       time.Time `gorm:"autoUpdateTime"`
}
