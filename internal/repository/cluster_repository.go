package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// ClusterRepository stores orphan clusters and their instance links.
type ClusterRepository struct {
	db *gorm.DB
}

func NewClusterRepository(db *gorm.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

// ClusterMember is an instance to link with its similarity to the cluster.
type ClusterMember struct {
	InstanceID uint
	Score      float64
}

// Create opens an ACTIVE cluster. Every member must be an ORPHAN of the same user and becomes
// CLUSTERED in the same transaction.
func (r *ClusterRepository) Create(ctx context.Context, userID uint, label, representative string, members []ClusterMember, confidence float64) (*model.OrphanCluster, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.TrimSpace(representative) == "" {
		return nil, apperr.Validation("cluster label and representative title are required")
	}
	if confidence < 0 || confidence > 1 {
		return nil, apperr.Validation("confidence must be between 0 and 1, got %v", confidence)
	}

	cluster := &model.OrphanCluster{
		UserID:              userID,
		ClusterLabel:        label,
		RepresentativeTitle: strings.TrimSpace(representative),
		Confidence:          confidence,
		Status:              model.ClusterActive,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cluster).Error; err != nil {
			return fmt.Errorf("create cluster: %w", err)
		}
		for _, m := range members {
			if err := link(tx, cluster, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// AddInstance links one more ORPHAN instance to an ACTIVE cluster.
func (r *ClusterRepository) AddInstance(ctx context.Context, clusterID uint, m ClusterMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cluster model.OrphanCluster
		if err := tx.First(&cluster, clusterID).Error; err != nil {
			return notFound(err, "cluster", clusterID)
		}
		if cluster.Status != model.ClusterActive {
			return apperr.Consistency("cluster %d is %s", clusterID, cluster.Status)
		}
		return link(tx, &cluster, m)
	})
}

func link(tx *gorm.DB, cluster *model.OrphanCluster, m ClusterMember) error {
	if m.Score < 0 || m.Score > 1 {
		return apperr.Validation("similarity must be between 0 and 1, got %v", m.Score)
	}
	var inst model.TaskInstance
	if err := tx.Select("id", "user_id").First(&inst, m.InstanceID).Error; err != nil {
		return notFound(err, "instance", m.InstanceID)
	}
	if inst.UserID != cluster.UserID {
		return apperr.Consistency("instance %d belongs to another user", m.InstanceID)
	}
	if err := advance(tx, m.InstanceID, model.MatchingClustered, nil); err != nil {
		return err
	}
	ci := model.ClusterInstance{
		ClusterID:       cluster.ID,
		InstanceID:      m.InstanceID,
		SimilarityScore: m.Score,
		AddedAt:         time.Now().UTC(),
	}
	if err := tx.Create(&ci).Error; err != nil {
		return fmt.Errorf("link instance to cluster: %w", err)
	}
	return nil
}

// Get loads a cluster with its links.
func (r *ClusterRepository) Get(ctx context.Context, id uint) (*model.OrphanCluster, error) {
	var cluster model.OrphanCluster
	if err := r.db.WithContext(ctx).Preload("Links").First(&cluster, id).Error; err != nil {
		return nil, notFound(err, "cluster", id)
	}
	return &cluster, nil
}

func (r *ClusterRepository) ListActive(ctx context.Context, userID uint) ([]model.OrphanCluster, error) {
	var out []model.OrphanCluster
	if err := r.db.WithContext(ctx).Preload("Links").
		Where("user_id = ? AND status = ?", userID, model.ClusterActive).
		Order("confidence DESC, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	return out, nil
}

func (r *ClusterRepository) SetDetectedPattern(ctx context.Context, id uint, frequencyDays *float64, pattern string) error {
	updates := map[string]interface{}{"detected_frequency_days": frequencyDays}
	if pattern == "" {
		updates["detected_pattern"] = nil
	} else {
		updates["detected_pattern"] = pattern
	}
	res := r.db.WithContext(ctx).Model(&model.OrphanCluster{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("set detected pattern: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("cluster %d", id)
	}
	return nil
}

// Dismiss closes an ACTIVE cluster. Its instances stay CLUSTERED.
func (r *ClusterRepository) Dismiss(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cluster model.OrphanCluster
		if err := tx.First(&cluster, id).Error; err != nil {
			return notFound(err, "cluster", id)
		}
		if !cluster.Status.CanTransitionTo(model.ClusterDismissed) {
			return apperr.Consistency("cluster %d is %s and cannot be dismissed", id, cluster.Status)
		}
		if err := tx.Model(&cluster).Update("status", model.ClusterDismissed).Error; err != nil {
			return fmt.Errorf("dismiss cluster: %w", err)
		}
		return nil
	})
}

// Promote turns a cluster into a DETECTED template in one transaction: the template is created,
// the cluster becomes PROMOTED and every linked instance becomes MATCHED to the template.
// Any failure rolls back all of it.
func (r *ClusterRepository) Promote(ctx context.Context, clusterID uint) (*model.TaskTemplate, error) {
	var tmpl model.TaskTemplate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cluster model.OrphanCluster
		if err := tx.Preload("Links").First(&cluster, clusterID).Error; err != nil {
			return notFound(err, "cluster", clusterID)
		}
		if !cluster.Status.CanTransitionTo(model.ClusterPromoted) {
			return apperr.Consistency("cluster %d is %s and cannot be promoted", clusterID, cluster.Status)
		}

		tmpl = model.NewTemplate(cluster.UserID, cluster.RepresentativeTitle)
		tmpl.Origin = model.OriginDetected
		tmpl.Confidence = cluster.Confidence
		tmpl.PromotedFromClusterID = &cluster.ID
		if cluster.DetectedPattern != nil {
			if p := model.RecurrencePattern(*cluster.DetectedPattern); p.Valid() {
				tmpl.RecurrencePattern = p
				tmpl.RecurrenceData = datatypes.NewJSONType(model.RecurrenceData{})
			}
		}
		templates := NewTemplateRepository(tx)
		if err := templates.Create(ctx, &tmpl); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&cluster).Updates(map[string]interface{}{
			"status":                  model.ClusterPromoted,
			"promoted_at":             now,
			"promoted_to_template_id": tmpl.ID,
		}).Error; err != nil {
			return fmt.Errorf("promote cluster: %w", err)
		}

		for _, l := range cluster.Links {
			if err := advance(tx, l.InstanceID, model.MatchingMatched, map[string]interface{}{"template_id": tmpl.ID}); err != nil {
				return err
			}
			if err := templates.IncrementInstanceCount(ctx, tmpl.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewTemplateRepository(r.db).Get(ctx, tmpl.ID)
}
