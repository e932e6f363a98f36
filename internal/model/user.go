package model

import (
	"time"

	"gorm.io/datatypes"
)

// User owns every other entity; deleting a user cascades to all of them.
type User struct {
	ID    uint   `gorm:"primaryKey"`
	Email string `gorm:"size:255;not null;uniqueIndex"`

	CalDAVUsername *string `gorm:"size:255"`
	// CalDAVPasswordRef names the secret holding the calendar password, never the password itself.
	CalDAVPasswordRef *string `gorm:"size:255"`
	CalDAVURL         *string

	TelegramChatID *int64 `gorm:"uniqueIndex"`

	Timezone    string                          `gorm:"size:50;not null;default:Europe/Paris"`
	Preferences datatypes.JSONType[Preferences] `gorm:"not null"`

	CreatedAt  time.Time
	LastActive time.Time `gorm:"autoUpdateTime"`

	Templates []TaskTemplate   `gorm:"constraint:OnDelete:CASCADE"`
	Instances []TaskInstance   `gorm:"constraint:OnDelete:CASCADE"`
	Clusters  []OrphanCluster  `gorm:"constraint:OnDelete:CASCADE"`
	Patterns  []LearnedPattern `gorm:"constraint:OnDelete:CASCADE"`
}

// Prefs returns the stored preferences.
func (u User) Prefs() Preferences {
	return u.Preferences.Data()
}

// Location resolves the user's timezone, falling back to UTC.
func (u User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
