// internal/score/aggregate.go
package score

import (
	"math"

	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/model"
)

// Aggregate reduces a category map to a single composite result.
//
// The percentage is an unweighted mean over whatever categories are present:
// sum of scores divided by 5 * len(cm), scaled to 0-100 and rounded to the
// nearest integer. The divisor comes from the live map size; the category
// set is open-ended and never hardcoded.
//
// Pure function: no I/O, no mutation of cm, safe to call concurrently.
func Aggregate(cm model.CategoryMap) (model.CompositeResult, error) {
	if len(cm) == 0 {
		return model.CompositeResult{}, apperrors.NewAggregationEmptyError()
	}

	sum := 0
	for _, result := range cm {
		sum += result.Score
	}

	pct := int(math.Round(100 * float64(sum) / float64(model.MaxCategoryScore*len(cm))))
	return model.CompositeResult{
		Percentage: pct,
		Tier:       TierFor(pct),
	}, nil
}

// TierFor buckets a composite percentage. Low trust reads as high concern.
// Boundaries are fixed: <=40 high-concern, <=80 moderate, >80 low-concern.
func TierFor(percentage int) model.Tier {
	switch {
	case percentage <= 40:
		return model.TierHighConcern
	case percentage <= 80:
		return model.TierModerateConcern
	default:
		return model.TierLowConcern
	}
}

// MergeSuccessful unions the category maps of all successfully analyzed
// links. Failed and pending links contribute nothing. When two links report
// the same category, the later link in batch order wins.
func MergeSuccessful(results []model.LinkResult) model.CategoryMap {
	merged := model.CategoryMap{}
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		for key, cat := range r.Outcome.Scores {
			merged[key] = cat
		}
	}
	return merged
}

// AggregateOutcomes merges successful link outcomes and aggregates them.
// An all-failed (or empty) batch yields the aggregation-empty error.
func AggregateOutcomes(results []model.LinkResult) (model.CompositeResult, error) {
	return Aggregate(MergeSuccessful(results))
}
