package service

import (
	"context"
	"strings"

	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

// DefaultMatchThreshold is the minimum similarity for an automatic template match.
const DefaultMatchThreshold = 0.8

// Matcher links PENDING instances to templates by title similarity.
type Matcher struct {
	instances *repository.InstanceRepository
	templates *repository.TemplateRepository
	matches   *repository.MatchRepository
	threshold float64
	log       *logger.Logger
}

func NewMatcher(instances *repository.InstanceRepository, templates *repository.TemplateRepository, matches *repository.MatchRepository, log *logger.Logger) *Matcher {
	return &Matcher{
		instances: instances,
		templates: templates,
		matches:   matches,
		threshold: DefaultMatchThreshold,
		log:       log.With("service", "matcher"),
	}
}

// MatchResult counts the outcome of one matching pass.
type MatchResult struct {
	Matched  int
	Orphaned int
	Failures []Failure
}

// MatchPending scores every PENDING instance against the user's active templates. Each candidate
// with a positive score is recorded as a FUZZY attempt; the best one at or above the threshold wins,
// otherwise the instance becomes ORPHAN.
func (m *Matcher) MatchPending(ctx context.Context, userID uint) (*MatchResult, error) {
	pending, err := m.instances.ListByMatchingStatus(ctx, userID, model.MatchingPending)
	if err != nil {
		return nil, err
	}
	templates, err := m.templates.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	res := &MatchResult{}
	for _, inst := range pending {
		var (
			best      *model.TaskTemplate
			bestScore float64
		)
		scores := make([]float64, len(templates))
		for i := range templates {
			scores[i] = TitleSimilarity(inst.NormalizedTitle, templates[i].NormalizedTitle)
			if scores[i] > bestScore {
				best, bestScore = &templates[i], scores[i]
			}
		}

		accepted := best != nil && bestScore >= m.threshold
		for i, score := range scores {
			if score <= 0 {
				continue
			}
			t := &templates[i]
			attempt := &model.MatchAttempt{
				InstanceID: inst.ID,
				TemplateID: t.ID,
				Score:      score,
				Method:     model.MethodFuzzy,
				Accepted:   accepted && t.ID == best.ID,
				Details: map[string]interface{}{
					"instance_title": inst.NormalizedTitle,
					"template_title": t.NormalizedTitle,
					"threshold":      m.threshold,
				},
			}
			if err := m.matches.Record(ctx, attempt); err != nil {
				res.Failures = append(res.Failures, Failure{Op: "match", InstanceID: inst.ID, Err: err})
			}
		}

		if accepted {
			if err := m.instances.MarkMatched(ctx, inst.ID, best.ID); err != nil {
				res.Failures = append(res.Failures, Failure{Op: "match", InstanceID: inst.ID, Err: err})
				continue
			}
			res.Matched++
			m.log.Debug("instance matched", "instance_id", inst.ID, "template_id", best.ID, "score", bestScore)
			continue
		}
		if err := m.instances.MarkOrphan(ctx, inst.ID); err != nil {
			res.Failures = append(res.Failures, Failure{Op: "match", InstanceID: inst.ID, Err: err})
			continue
		}
		res.Orphaned++
	}

	m.log.Info("matching finished", "user_id", userID, "matched", res.Matched, "orphaned", res.Orphaned, "failed", len(res.Failures))
	return res, nil
}

// TitleSimilarity is the Jaccard index of the two titles' word sets, in [0, 1].
func TitleSimilarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for w := range ta {
		if _, ok := tb[w]; ok {
			common++
		}
	}
	union := len(ta) + len(tb) - common
	return float64(common) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
