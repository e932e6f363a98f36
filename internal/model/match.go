package model

import (
	"time"

	"gorm.io/datatypes"
)

// MatchAttempt is an append-only audit row for a candidate template/instance pairing.
type MatchAttempt struct {
	ID         uint `gorm:"primaryKey"`
	InstanceID uint `gorm:"not null;index"`
	TemplateID uint `gorm:"not null;index"`

	Score    float64           `gorm:"not null"`
	Method   MatchMethod       `gorm:"size:16;not null;default:fuzzy"`
	Accepted bool              `gorm:"not null;index"`
	Details  datatypes.JSONMap

	CreatedAt time.Time
}
