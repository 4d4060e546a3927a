// internal/analysis/client.go
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"trustpanel/internal/common/config"
	apperrors "trustpanel/internal/common/errors"
	commonhttp "trustpanel/internal/common/http"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/common/metrics"
	"trustpanel/internal/model"
)

// Request is the wire body sent to the scoring service, one per link.
type Request struct {
	URL string `json:"url"`
}

// Response is the expected scoring service reply.
type Response struct {
	Scores   model.CategoryMap `json:"scores"`
	Metadata ResponseMetadata  `json:"metadata"`
}

// ResponseMetadata carries the service's own summary. It is informational;
// the panel recomputes the composite from the raw scores.
type ResponseMetadata struct {
	RiskPercentage float64 `json:"risk_percentage"`
	RiskLevel      string  `json:"risk_level"`
}

// Client invokes the remote scoring service for one document URL per call.
// It makes exactly one outbound request per Analyze invocation, no retries.
// The only timeout is the one carried by the underlying HTTP client.
type Client struct {
	httpClient *commonhttp.Client
	serviceURL string
	logger     logger.Logger
}

func NewClient(cfg config.AnalysisConfig, log logger.Logger) *Client {
	return &Client{
		httpClient: commonhttp.NewClient(cfg.TimeoutDuration()),
		serviceURL: cfg.ServiceURL,
		logger:     log.WithFields(map[string]interface{}{"component": "analysis-client"}),
	}
}

// Analyze posts the document URL to the scoring service and returns its
// category map. Any transport failure, non-2xx status, or malformed body is
// normalized to an analysis failure; a body that parses but violates the
// score contract is a protocol violation. A partial map is never returned.
func (c *Client) Analyze(ctx context.Context, rawURL string) (model.CategoryMap, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return nil, apperrors.NewAnalysisFailedError(rawURL, "document URL must be absolute")
	}

	resp, err := c.httpClient.PostJSON(ctx, c.serviceURL, Request{URL: rawURL})
	if err != nil {
		return nil, apperrors.NewAnalysisFailedError(rawURL, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewAnalysisFailedError(rawURL, fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewAnalysisFailedError(rawURL, fmt.Sprintf("service returned status %d", resp.StatusCode))
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.NewAnalysisFailedError(rawURL, fmt.Sprintf("malformed response body: %v", err))
	}

	if err := c.validateResponse(doc); err != nil {
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperrors.NewAnalysisFailedError(rawURL, fmt.Sprintf("decoding response: %v", err))
	}

	c.logger.Debug("analysis completed", map[string]interface{}{
		"url":        rawURL,
		"categories": len(out.Scores),
		"riskLevel":  out.Metadata.RiskLevel,
	})

	return out.Scores, nil
}

func (c *Client) validateResponse(doc interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(responseSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return apperrors.NewProtocolViolationError("analysis", fmt.Sprintf("schema validation: %v", err))
	}

	if !result.Valid() {
		metrics.ProtocolViolations.WithLabelValues("analysis").Inc()
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return apperrors.NewProtocolViolationError("analysis", strings.Join(details, "; "))
	}

	return nil
}
