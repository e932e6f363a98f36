package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// PatternRepository keeps learned user habits.
type PatternRepository struct {
	db *gorm.DB
}

func NewPatternRepository(db *gorm.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PatternRepository) WithTx(tx *gorm.DB) *PatternRepository {
	return &PatternRepository{db: tx}
}

// RecordObservation upserts the (user, type, category) pattern. Repeated observations replace the
// data, count up and move the confidence halfway toward the new value.
func (r *PatternRepository) RecordObservation(ctx context.Context, userID uint, patternType string, category *string, data map[string]any, confidence float64) (*model.LearnedPattern, error) {
	if patternType == "" {
		return nil, apperr.Validation("pattern type is required")
	}
	if confidence < 0 || confidence > 1 {
		return nil, apperr.Validation("confidence must be between 0 and 1, got %v", confidence)
	}

	var p model.LearnedPattern
	q := r.db.WithContext(ctx).Where("user_id = ? AND pattern_type = ?", userID, patternType)
	if category == nil {
		q = q.Where("category IS NULL")
	} else {
		q = q.Where("category = ?", *category)
	}
	err := q.First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p = model.LearnedPattern{
			UserID:            userID,
			PatternType:       patternType,
			Category:          category,
			PatternData:       datatypes.JSONMap(data),
			Confidence:        confidence,
			ObservationsCount: 1,
		}
		if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, fmt.Errorf("create pattern: %w", err)
		}
		return &p, nil
	case err != nil:
		return nil, fmt.Errorf("find pattern: %w", err)
	}

	p.PatternData = datatypes.JSONMap(data)
	p.ObservationsCount++
	p.Confidence = (p.Confidence + confidence) / 2
	if err := r.db.WithContext(ctx).Save(&p).Error; err != nil {
		return nil, fmt.Errorf("update pattern: %w", err)
	}
	return &p, nil
}

func (r *PatternRepository) ListByUser(ctx context.Context, userID uint) ([]model.LearnedPattern, error) {
	var out []model.LearnedPattern
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("pattern_type, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	return out, nil
}
