package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create validates the preferences and inserts the user. Email is unique.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	if user.Email == "" {
		return apperr.Validation("email is required")
	}
	if user.Timezone == "" {
		user.Timezone = "Europe/Paris"
	}

	prefs := user.Prefs()
	if prefs.WorkHoursStart == "" && prefs.WorkHoursEnd == "" && prefs.MaxTasksPerDay == 0 {
		prefs = model.DefaultPreferences()
	}
	valid, err := prefs.Validate()
	if err != nil {
		return err
	}
	user.Preferences = datatypes.NewJSONType(valid)

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return apperr.Consistency("email %s already registered", user.Email)
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err, "user", email)
	}
	return &user, nil
}

func (r *UserRepository) GetByTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, notFound(err, "user with chat", chatID)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePreferences validates prefs and stores the normalized copy.
func (r *UserRepository) UpdatePreferences(ctx context.Context, userID uint, prefs model.Preferences) (model.Preferences, error) {
	valid, err := prefs.Validate()
	if err != nil {
		return prefs, err
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("preferences", datatypes.NewJSONType(valid))
	if res.Error != nil {
		return prefs, fmt.Errorf("update preferences: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return prefs, apperr.NotFound("user %d", userID)
	}
	return valid, nil
}

// LinkTelegram binds a chat to the user, detaching it from any other user first.
func (r *UserRepository) LinkTelegram(ctx context.Context, userID uint, chatID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("telegram_chat_id = ? AND id <> ?", chatID, userID).
			Update("telegram_chat_id", nil).Error; err != nil {
			return fmt.Errorf("unlink chat: %w", err)
		}
		res := tx.Model(&model.User{}).Where("id = ?", userID).Update("telegram_chat_id", chatID)
		if res.Error != nil {
			return fmt.Errorf("link chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user %d", userID)
		}
		return nil
	})
}

// Delete removes the user; every owned row goes with it.
func (r *UserRepository) Delete(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Delete(&model.User{}, userID)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %d", userID)
	}
	return nil
}
