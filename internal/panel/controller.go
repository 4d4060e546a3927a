// internal/panel/controller.go
package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/common/metrics"
	"trustpanel/internal/common/observability"
	"trustpanel/internal/model"
	"trustpanel/internal/score"
)

// State is the panel's position in the scan cycle.
type State string

const (
	StateIdle            State = "idle"
	StateInjecting       State = "injecting"
	StateInjectionFailed State = "injection-failed"
	StateLinksPending    State = "links-pending"
	StateAnalyzing       State = "analyzing"
	StateAnalyzed        State = "analyzed"
)

// Injector is the command-channel side of the message bridge.
type Injector interface {
	Inject(ctx context.Context) error
}

// BatchAnalyzer resolves a set of links into positional outcomes.
type BatchAnalyzer interface {
	AnalyzeAll(ctx context.Context, links []model.DocumentLink) ([]model.LinkResult, error)
}

// Snapshot is an immutable view of the panel for rendering. Composite is
// nil until a batch settles, or when aggregation had nothing to work with.
type Snapshot struct {
	State     State                    `json:"state"`
	ScanID    string                   `json:"scanId,omitempty"`
	Links     []model.LinkResult       `json:"links,omitempty"`
	Composite *model.CompositeResult   `json:"composite,omitempty"`
	LastError *apperrors.StandardError `json:"lastError,omitempty"`
}

// Controller sequences the scan cycle: inject, wait for links, analyze,
// aggregate. It owns each scan's state exclusively and replaces it
// wholesale; a monotonically increasing generation token keeps a superseded
// batch from ever overwriting a newer one. It holds no business logic of
// its own beyond sequencing.
type Controller struct {
	injector Injector
	analyzer BatchAnalyzer
	logger   logger.Logger
	obs      *observability.Observability

	mu         sync.Mutex
	state      State
	scanID     string
	generation uint64
	scanStart  time.Time
	active     bool
	links      []model.LinkResult
	composite  *model.CompositeResult
	lastErr    *apperrors.StandardError
}

func NewController(injector Injector, analyzer BatchAnalyzer, log logger.Logger, obs *observability.Observability) *Controller {
	return &Controller{
		injector: injector,
		analyzer: analyzer,
		logger:   log.WithFields(map[string]interface{}{"component": "panel-controller"}),
		obs:      obs,
		state:    StateIdle,
	}
}

// StartScan begins a new scan cycle. A trigger while already injecting is
// ignored, not queued. On command failure the controller lands in
// InjectionFailed, which is retriable; on success it parks in LinksPending
// until the notification channel delivers links (no timeout on that wait).
func (c *Controller) StartScan(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInjecting {
		c.logger.Debug("scan trigger ignored, injection already in flight", nil)
		c.mu.Unlock()
		return nil
	}

	c.state = StateInjecting
	c.scanID = uuid.NewString()
	c.generation++ // in-flight batches of the previous scan are now stale
	c.scanStart = time.Now()
	c.links = nil
	c.composite = nil
	c.lastErr = nil
	c.markActiveLocked()
	gen := c.generation
	scanID := c.scanID
	c.mu.Unlock()

	metrics.PanelScansStarted.Inc()
	c.logger.Info("scan started", map[string]interface{}{"scanId": scanID})

	err := c.injector.Inject(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Links may already have arrived and moved the state machine on; only
	// settle the injection outcome if this scan is still the current one.
	if gen != c.generation || c.state != StateInjecting {
		return err
	}

	if err != nil {
		c.state = StateInjectionFailed
		c.lastErr = normalizeError(err)
		c.markSettledLocked()
		metrics.PanelInjectionFailures.Inc()
		if c.obs != nil {
			c.obs.RecordScanCompleted(ctx, "injection_failed")
		}
		c.logger.WithError(err).Error("injection failed", map[string]interface{}{"scanId": scanID})
		return err
	}

	c.state = StateLinksPending
	c.logger.Info("injection succeeded, awaiting links", map[string]interface{}{"scanId": scanID})
	return nil
}

// HandleLinks is the bridge's notification handler. It runs on the bridge's
// receive loop, so the generation token is assigned in delivery order: a
// later delivery always carries a higher generation. Every delivery replaces
// the current link set and restarts analysis, whatever state the panel was
// in; the batch itself is analyzed on its own goroutine, and earlier
// in-flight batches run to completion but their results are discarded on
// generation mismatch.
func (c *Controller) HandleLinks(links []model.DocumentLink) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.state = StateAnalyzing
	c.links = pendingResults(links)
	c.composite = nil
	c.lastErr = nil
	c.markActiveLocked()
	if c.scanStart.IsZero() {
		c.scanStart = time.Now()
	}
	start := c.scanStart
	scanID := c.scanID
	c.mu.Unlock()

	c.logger.Info("analyzing links", map[string]interface{}{"scanId": scanID, "count": len(links)})

	go c.runBatch(gen, scanID, start, links)
}

func (c *Controller) runBatch(gen uint64, scanID string, start time.Time, links []model.DocumentLink) {
	ctx := context.Background()
	results, err := c.analyzer.AnalyzeAll(ctx, links)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		metrics.StaleBatchesDiscarded.Inc()
		c.logger.Info("discarding stale batch", map[string]interface{}{"scanId": scanID})
		return
	}

	status := "analyzed"
	if err != nil {
		// Only a malformed link sequence lands here; per-link failures are
		// already folded into the results.
		c.state = StateAnalyzed
		c.links = nil
		c.lastErr = normalizeError(err)
		status = "invalid_batch"
	} else {
		c.state = StateAnalyzed
		c.links = results

		composite, aggErr := score.AggregateOutcomes(results)
		if aggErr != nil {
			c.composite = nil
			c.lastErr = normalizeError(aggErr)
			status = "aggregation_empty"
		} else {
			c.composite = &composite
		}
	}

	c.markSettledLocked()
	if c.obs != nil {
		c.obs.RecordScanCompleted(ctx, status)
		c.obs.RecordScanDuration(ctx, time.Since(start), status)
	}
	c.logger.Info("scan settled", map[string]interface{}{
		"scanId": scanID,
		"status": status,
	})
}

// Snapshot returns a copy of the panel's current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:     c.state,
		ScanID:    c.scanID,
		LastError: c.lastErr,
	}
	if c.links != nil {
		snap.Links = make([]model.LinkResult, len(c.links))
		for i, result := range c.links {
			result.Outcome.Scores = result.Outcome.Scores.Clone()
			snap.Links[i] = result
		}
	}
	if c.composite != nil {
		composite := *c.composite
		snap.Composite = &composite
	}
	return snap
}

func (c *Controller) markActiveLocked() {
	if !c.active {
		c.active = true
		metrics.ScansActive.Inc()
	}
}

func (c *Controller) markSettledLocked() {
	if c.active {
		c.active = false
		metrics.ScansActive.Dec()
	}
}

func pendingResults(links []model.DocumentLink) []model.LinkResult {
	results := make([]model.LinkResult, len(links))
	for i, link := range links {
		results[i] = model.LinkResult{
			Link:    link,
			Outcome: model.AnalysisOutcome{Status: model.OutcomePending},
		}
	}
	return results
}

func normalizeError(err error) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &apperrors.StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
