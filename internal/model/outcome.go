// internal/model/outcome.go
package model

// OutcomeStatus tracks the one-way pending -> success | failure transition
// of a link within a batch. Links are never removed once added.
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// AnalysisOutcome is the resolved state of one link's analysis. Scores is
// populated only on success, Reason only on failure.
type AnalysisOutcome struct {
	Status OutcomeStatus `json:"status"`
	Scores CategoryMap   `json:"scores,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// LinkResult pairs a link with its outcome. A batch result slice always has
// the same length and order as the input link slice.
type LinkResult struct {
	Link    DocumentLink    `json:"link"`
	Outcome AnalysisOutcome `json:"outcome"`
}

// Succeeded reports whether the link resolved with scores.
func (r LinkResult) Succeeded() bool {
	return r.Outcome.Status == OutcomeSuccess
}
