// internal/analysis/batch.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/common/metrics"
	"trustpanel/internal/model"
)

// LinkAnalyzer is the single-link contract the coordinator fans out over.
type LinkAnalyzer interface {
	Analyze(ctx context.Context, url string) (model.CategoryMap, error)
}

// Coordinator resolves a batch of discovered links concurrently. Results
// are written into index-addressed slots, so output order always matches
// input order no matter which calls finish first, and one link's failure
// never touches a sibling's outcome.
type Coordinator struct {
	client      LinkAnalyzer
	concurrency int
	logger      logger.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithConcurrency caps how many link analyses run at once. Zero or
// negative means unlimited.
func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.concurrency = n
	}
}

func NewCoordinator(client LinkAnalyzer, log logger.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "batch-coordinator"}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AnalyzeAll analyzes every link and returns one outcome per link, same
// length and order as the input. Once started the batch never fails as a
// whole: per-link errors become Failure outcomes. The only error return is
// a malformed input sequence, i.e. a link without an href.
func (c *Coordinator) AnalyzeAll(ctx context.Context, links []model.DocumentLink) ([]model.LinkResult, error) {
	for i, link := range links {
		if link.Href == "" {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("link at index %d has no href", i))
		}
	}

	results := make([]model.LinkResult, len(links))

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for i, link := range links {
		g.Go(func() error {
			start := time.Now()
			scores, err := c.client.Analyze(ctx, link.Href)
			elapsed := time.Since(start)

			if err != nil {
				metrics.LinkAnalysesTotal.WithLabelValues("failure").Inc()
				metrics.LinkAnalysisDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
				c.logger.Warn("link analysis failed", map[string]interface{}{
					"index": i,
					"href":  link.Href,
					"error": err.Error(),
				})
				results[i] = model.LinkResult{
					Link: link,
					Outcome: model.AnalysisOutcome{
						Status: model.OutcomeFailure,
						Reason: failureReason(err),
					},
				}
				return nil // isolated: never abort sibling analyses
			}

			metrics.LinkAnalysesTotal.WithLabelValues("success").Inc()
			metrics.LinkAnalysisDuration.WithLabelValues("success").Observe(elapsed.Seconds())
			results[i] = model.LinkResult{
				Link: link,
				Outcome: model.AnalysisOutcome{
					Status: model.OutcomeSuccess,
					Scores: scores,
				},
			}
			return nil
		})
	}

	_ = g.Wait()
	return results, nil
}

// failureReason prefers the human-readable detail of a StandardError over
// its bracketed code form.
func failureReason(err error) string {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) && stdErr.Details != "" {
		return stdErr.Details
	}
	return err.Error()
}
