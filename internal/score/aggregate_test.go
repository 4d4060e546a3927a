package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/model"
)

// ==========================
// Test Helper Functions
// ==========================

func categoryMap(scores map[string]int) model.CategoryMap {
	cm := model.CategoryMap{}
	for key, s := range scores {
		cm[key] = model.CategoryResult{Score: s}
	}
	return cm
}

func successResult(scores map[string]int) model.LinkResult {
	return model.LinkResult{
		Link: model.DocumentLink{Href: "https://example.com/legal", Type: model.LinkTypeTerms},
		Outcome: model.AnalysisOutcome{
			Status: model.OutcomeSuccess,
			Scores: categoryMap(scores),
		},
	}
}

func failureResult(reason string) model.LinkResult {
	return model.LinkResult{
		Link: model.DocumentLink{Href: "https://example.com/privacy", Type: model.LinkTypePolicy},
		Outcome: model.AnalysisOutcome{
			Status: model.OutcomeFailure,
			Reason: reason,
		},
	}
}

// ==========================
// Aggregate Tests
// ==========================

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		scores   map[string]int
		wantPct  int
		wantTier model.Tier
	}{
		{
			name:     "single category max score",
			scores:   map[string]int{"data_collection": 5},
			wantPct:  100,
			wantTier: model.TierLowConcern,
		},
		{
			name:     "single category zero score",
			scores:   map[string]int{"data_collection": 0},
			wantPct:  0,
			wantTier: model.TierHighConcern,
		},
		{
			name:     "two categories moderate",
			scores:   map[string]int{"account_control": 3, "data_collection": 2},
			wantPct:  50,
			wantTier: model.TierModerateConcern,
		},
		{
			name:     "rounding to nearest integer",
			scores:   map[string]int{"a": 1, "b": 1, "c": 2}, // 4/15 = 26.66...
			wantPct:  27,
			wantTier: model.TierHighConcern,
		},
		{
			name: "divisor follows dynamic category count",
			scores: map[string]int{
				"data_collection":   4,
				"data_sharing":      4,
				"user_rights":       4,
				"never_seen_before": 4,
			},
			wantPct:  80,
			wantTier: model.TierModerateConcern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(categoryMap(tt.scores))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPct, got.Percentage)
			assert.Equal(t, tt.wantTier, got.Tier)
			assert.GreaterOrEqual(t, got.Percentage, 0)
			assert.LessOrEqual(t, got.Percentage, 100)
		})
	}
}

func TestAggregate_EmptyCategoryMap(t *testing.T) {
	_, err := Aggregate(model.CategoryMap{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAggregationEmpty))

	_, err = Aggregate(nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAggregationEmpty))
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	cm := categoryMap(map[string]int{"a": 2, "b": 3})
	_, err := Aggregate(cm)
	require.NoError(t, err)
	assert.Len(t, cm, 2)
	assert.Equal(t, 2, cm["a"].Score)
	assert.Equal(t, 3, cm["b"].Score)
}

// ==========================
// Tier Boundary Tests
// ==========================

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		percentage int
		want       model.Tier
	}{
		{0, model.TierHighConcern},
		{40, model.TierHighConcern},
		{41, model.TierModerateConcern},
		{80, model.TierModerateConcern},
		{81, model.TierLowConcern},
		{100, model.TierLowConcern},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, TierFor(tt.percentage), "percentage %d", tt.percentage)
	}
}

// ==========================
// Outcome Merge Tests
// ==========================

func TestMergeSuccessful_SkipsFailures(t *testing.T) {
	results := []model.LinkResult{
		successResult(map[string]int{"account_control": 3, "data_collection": 2}),
		failureResult("fetch failed"),
	}

	merged := MergeSuccessful(results)
	assert.Len(t, merged, 2)
	assert.Equal(t, 3, merged["account_control"].Score)
	assert.Equal(t, 2, merged["data_collection"].Score)
}

func TestMergeSuccessful_LaterLinkWinsOnCollision(t *testing.T) {
	results := []model.LinkResult{
		successResult(map[string]int{"data_collection": 1}),
		successResult(map[string]int{"data_collection": 4}),
	}

	merged := MergeSuccessful(results)
	assert.Len(t, merged, 1)
	assert.Equal(t, 4, merged["data_collection"].Score)
}

// Mirrors the two-link scenario: one terms link scoring
// {account_control:3, data_collection:2}, one policy link that failed.
// Composite must come from the successful link only.
func TestAggregateOutcomes_PartialBatch(t *testing.T) {
	results := []model.LinkResult{
		successResult(map[string]int{"account_control": 3, "data_collection": 2}),
		failureResult("connection refused"),
	}

	composite, err := AggregateOutcomes(results)
	require.NoError(t, err)
	assert.Equal(t, 50, composite.Percentage)
	assert.Equal(t, model.TierModerateConcern, composite.Tier)
}

func TestAggregateOutcomes_AllFailed(t *testing.T) {
	results := []model.LinkResult{
		failureResult("timeout"),
		failureResult("404"),
	}

	_, err := AggregateOutcomes(results)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAggregationEmpty))
}
