// internal/model/score.go
package model

// CategoryResult is the per-category verdict from the scoring service.
// Quotes keep their wire order, which is relevance order.
type CategoryResult struct {
	Quotes []string `json:"quotes"`
	Score  int      `json:"score"`
}

// CategoryMap maps an open-ended category key to its result. The category
// set is dynamic per response and must never be validated against a closed
// enum; every score is on the same fixed 0-5 scale.
type CategoryMap map[string]CategoryResult

// Clone returns a deep copy. Mutating the copy's entries or quote slices
// never reaches the original; a nil map clones to nil.
func (cm CategoryMap) Clone() CategoryMap {
	if cm == nil {
		return nil
	}
	out := make(CategoryMap, len(cm))
	for key, result := range cm {
		if result.Quotes != nil {
			quotes := make([]string, len(result.Quotes))
			copy(quotes, result.Quotes)
			result.Quotes = quotes
		}
		out[key] = result
	}
	return out
}

const (
	// MinCategoryScore and MaxCategoryScore bound the per-category scale.
	MinCategoryScore = 0
	MaxCategoryScore = 5
)

// Tier is the coarse classification bucket derived from the composite score.
type Tier string

const (
	TierHighConcern     Tier = "high-concern"
	TierModerateConcern Tier = "moderate-concern"
	TierLowConcern      Tier = "low-concern"
)

// CompositeResult is the single user-facing score. It is derived, never
// stored: any change to the underlying CategoryMap recomputes it.
type CompositeResult struct {
	Percentage int  `json:"percentage"`
	Tier       Tier `json:"tier"`
}
