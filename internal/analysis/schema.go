// internal/analysis/schema.go
package analysis

import "trustpanel/internal/model"

// responseSchema structurally validates the scoring service response before
// any score reaches aggregation arithmetic. Category keys are deliberately
// unconstrained: the service introduces new categories at will, so only the
// per-category value shape and the score scale are enforced.
var responseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"scores"},
	"properties": map[string]interface{}{
		"scores": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"score"},
				"properties": map[string]interface{}{
					"score": map[string]interface{}{
						"type":    "integer",
						"minimum": model.MinCategoryScore,
						"maximum": model.MaxCategoryScore,
					},
					"quotes": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "string",
						},
					},
				},
			},
		},
		"metadata": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"risk_percentage": map[string]interface{}{"type": "number"},
				"risk_level":      map[string]interface{}{"type": "string"},
			},
		},
	},
}
