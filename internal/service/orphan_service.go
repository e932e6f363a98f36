package service

import (
	"context"
	"math"
	"sort"
	"time"

	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

// MinClusterSize is the number of look-alike orphans needed to open a cluster.
const MinClusterSize = 3

// OrphanService groups unmatched instances and promotes recurring groups into templates.
type OrphanService struct {
	instances *repository.InstanceRepository
	templates *repository.TemplateRepository
	clusters  *repository.ClusterRepository
	patterns  *repository.PatternRepository
	weekday   time.Weekday
	log       *logger.Logger
}

func NewOrphanService(instances *repository.InstanceRepository, templates *repository.TemplateRepository, clusters *repository.ClusterRepository, patterns *repository.PatternRepository, materializeWeekday time.Weekday, log *logger.Logger) *OrphanService {
	return &OrphanService{
		instances: instances,
		templates: templates,
		clusters:  clusters,
		patterns:  patterns,
		weekday:   materializeWeekday,
		log:       log.With("service", "orphans"),
	}
}

// Cluster groups the user's ORPHAN instances by normalized title and opens an ACTIVE cluster for
// every group of at least MinClusterSize.
func (s *OrphanService) Cluster(ctx context.Context, userID uint) ([]model.OrphanCluster, error) {
	orphans, err := s.instances.ListByMatchingStatus(ctx, userID, model.MatchingOrphan)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]model.TaskInstance)
	var keys []string
	for _, inst := range orphans {
		key := inst.NormalizedTitle
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], inst)
	}
	sort.Strings(keys)

	var out []model.OrphanCluster
	for _, key := range keys {
		group := groups[key]
		if len(group) < MinClusterSize {
			continue
		}
		freq, pattern := detectFrequency(group)
		members := make([]repository.ClusterMember, 0, len(group))
		for _, inst := range group {
			members = append(members, repository.ClusterMember{InstanceID: inst.ID, Score: 1})
		}

		cluster, err := s.clusters.Create(ctx, userID, key, representativeTitle(group), members, clusterConfidence(len(group), pattern))
		if err != nil {
			s.log.Warn("cluster creation failed", "label", key, "error", err)
			continue
		}
		if err := s.clusters.SetDetectedPattern(ctx, cluster.ID, freq, pattern); err != nil {
			return out, err
		}
		got, err := s.clusters.Get(ctx, cluster.ID)
		if err != nil {
			return out, err
		}
		s.log.Info("cluster opened", "cluster_id", got.ID, "label", key, "size", len(group), "pattern", pattern)
		out = append(out, *got)
	}
	return out, nil
}

// Promote turns the cluster into a DETECTED template, schedules it on the weekday its instances
// usually fall on, and records the observed frequency.
func (s *OrphanService) Promote(ctx context.Context, clusterID uint) (*model.TaskTemplate, error) {
	cluster, err := s.clusters.Get(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	var last *model.TaskInstance
	for _, l := range cluster.Links {
		inst, err := s.instances.Get(ctx, l.InstanceID)
		if err != nil {
			return nil, err
		}
		if last == nil || inst.ScheduledStart.After(last.ScheduledStart) {
			last = inst
		}
	}

	tmpl, err := s.clusters.Promote(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	s.log.Info("cluster promoted", "cluster_id", clusterID, "template_id", tmpl.ID)

	if last != nil && tmpl.RecurrencePattern != model.RecurrenceNone {
		start := last.ScheduledStart.UTC()
		offset := (int(start.Weekday()) - int(s.weekday) + 7) % 7
		minutes := int(last.ScheduledEnd.Sub(last.ScheduledStart) / time.Minute)
		rec := model.RecurrenceData{Days: []int{offset}, Time: FormatMinutes(start.Hour()*60 + start.Minute())}
		upd := repository.TemplateUpdate{Recurrence: &rec}
		if minutes > 0 {
			upd.EstimatedDuration = &minutes
		}
		if updated, err := s.templates.Update(ctx, tmpl.ID, upd); err != nil {
			s.log.Warn("could not set recurrence on promoted template", "template_id", tmpl.ID, "error", err)
		} else {
			tmpl = updated
		}
	}

	data := map[string]any{"template_id": tmpl.ID}
	if cluster.DetectedFrequencyDays != nil {
		data["days"] = *cluster.DetectedFrequencyDays
	}
	if cluster.DetectedPattern != nil {
		data["pattern"] = *cluster.DetectedPattern
	}
	label := cluster.ClusterLabel
	if _, err := s.patterns.RecordObservation(ctx, cluster.UserID, "frequency", &label, data, cluster.Confidence); err != nil {
		s.log.Warn("could not record learned pattern", "cluster_id", clusterID, "error", err)
	}
	return tmpl, nil
}

// PromoteEligible promotes every active cluster at or above minConfidence.
func (s *OrphanService) PromoteEligible(ctx context.Context, userID uint, minConfidence float64) ([]model.TaskTemplate, []Failure, error) {
	active, err := s.clusters.ListActive(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var (
		promoted []model.TaskTemplate
		failures []Failure
	)
	for _, c := range active {
		if c.Confidence < minConfidence || len(c.Links) < MinClusterSize {
			continue
		}
		tmpl, err := s.Promote(ctx, c.ID)
		if err != nil {
			failures = append(failures, Failure{Op: "promote", Err: err})
			continue
		}
		promoted = append(promoted, *tmpl)
	}
	return promoted, failures, nil
}

// detectFrequency returns the mean gap in days between occurrences and its pattern label.
func detectFrequency(group []model.TaskInstance) (*float64, string) {
	if len(group) < 2 {
		return nil, ""
	}
	starts := make([]time.Time, 0, len(group))
	for _, inst := range group {
		starts = append(starts, inst.ScheduledStart)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	span := starts[len(starts)-1].Sub(starts[0]).Hours() / 24
	mean := math.Round(span/float64(len(starts)-1)*10) / 10
	return &mean, patternFor(mean)
}

func patternFor(days float64) string {
	switch {
	case days >= 5 && days <= 9:
		return string(model.RecurrenceWeekly)
	case days >= 12 && days <= 17:
		return string(model.RecurrenceBiweekly)
	case days >= 25 && days <= 35:
		return string(model.RecurrenceMonthly)
	default:
		return "irregular"
	}
}

func clusterConfidence(size int, pattern string) float64 {
	c := math.Min(0.95, 0.4+0.1*float64(size))
	if pattern == "irregular" {
		c /= 2
	}
	return c
}

// representativeTitle is the most frequent raw title; ties go to the first one to reach the count.
func representativeTitle(group []model.TaskInstance) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, inst := range group {
		counts[inst.Title]++
		if counts[inst.Title] > bestCount {
			best, bestCount = inst.Title, counts[inst.Title]
		}
	}
	return best
}
