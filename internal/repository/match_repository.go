package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// MatchRepository stores the append-only match audit trail.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Record(ctx context.Context, m *model.MatchAttempt) error {
	if m.Score < 0 || m.Score > 1 {
		return apperr.Validation("match score must be between 0 and 1, got %v", m.Score)
	}
	if m.Method == "" {
		m.Method = model.MethodFuzzy
	}
	if !m.Method.Valid() {
		return apperr.Validation("unknown match method %q", m.Method)
	}
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("record match attempt: %w", err)
	}
	return nil
}

// ListForInstance returns the attempts for an instance, best score first.
func (r *MatchRepository) ListForInstance(ctx context.Context, instanceID uint) ([]model.MatchAttempt, error) {
	var out []model.MatchAttempt
	if err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).
		Order("score DESC, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list match attempts: %w", err)
	}
	return out, nil
}
