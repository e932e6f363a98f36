package model

import "time"

// OrphanCluster groups unmatched instances believed to share a recurring pattern.
type OrphanCluster struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"not null;index"`

	ClusterLabel        string `gorm:"size:500;not null"`
	RepresentativeTitle string `gorm:"size:500;not null"`

	DetectedFrequencyDays *float64
	DetectedPattern       *string `gorm:"size:50"`

	Confidence float64 `gorm:"not null"`

	Status               ClusterStatus `gorm:"size:16;not null;default:active;index"`
	PromotedToTemplateID *uint
	PromotedAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Links []ClusterInstance `gorm:"foreignKey:ClusterID;constraint:OnDelete:CASCADE"`
}

// ClusterInstance links an instance to a cluster with a per-link similarity score.
type ClusterInstance struct {
	ClusterID       uint    `gorm:"primaryKey"`
	InstanceID      uint    `gorm:"primaryKey;index"`
	SimilarityScore float64 `gorm:"not null"`
	AddedAt         time.Time
}
