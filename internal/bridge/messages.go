// internal/bridge/messages.go
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/model"
)

const (
	ActionInjectContentScript = "injectContentScript"
	ActionSendLinks           = "sendLinks"

	StatusSuccess = "success"
	StatusFailure = "failure"

	// AckFarewell is the fixed acknowledgement payload value. It carries no
	// meaning beyond "received".
	AckFarewell = "goodbye"
)

// Command is the one-shot injection request sent on the command channel.
type Command struct {
	Action string `json:"action"`
}

// CommandReply is the injection trigger's response.
type CommandReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Notification is the push-style link delivery from the page-side collector.
type Notification struct {
	Action string               `json:"action"`
	Links  []model.DocumentLink `json:"links"`
}

// Ack is the fixed notification acknowledgement.
type Ack struct {
	Farewell string `json:"farewell"`
}

// notificationSchema rejects malformed link deliveries at the channel
// boundary. Link href is mandatory; text and pageTitle are not.
var notificationSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"action", "links"},
	"properties": map[string]interface{}{
		"action": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{ActionSendLinks},
		},
		"links": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"href", "type"},
				"properties": map[string]interface{}{
					"href":      map[string]interface{}{"type": "string", "minLength": 1},
					"text":      map[string]interface{}{"type": "string"},
					"type":      map[string]interface{}{"type": "string", "enum": []interface{}{string(model.LinkTypePolicy), string(model.LinkTypeTerms)}},
					"pageTitle": map[string]interface{}{"type": "string"},
				},
			},
		},
	},
}

// decodeNotification validates and decodes a sendLinks payload.
func decodeNotification(payload []byte) ([]model.DocumentLink, error) {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, apperrors.NewProtocolViolationError("notification", fmt.Sprintf("malformed JSON: %v", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(notificationSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, apperrors.NewProtocolViolationError("notification", fmt.Sprintf("schema validation: %v", err))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, apperrors.NewProtocolViolationError("notification", strings.Join(details, "; "))
	}

	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, apperrors.NewProtocolViolationError("notification", fmt.Sprintf("decoding: %v", err))
	}
	return n.Links, nil
}

// decodeCommandReply decodes an injection response from the reply channel.
func decodeCommandReply(payload []byte) (*CommandReply, error) {
	var reply CommandReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, apperrors.NewProtocolViolationError("command", fmt.Sprintf("malformed reply: %v", err))
	}
	if reply.Status != StatusSuccess && reply.Status != StatusFailure {
		return nil, apperrors.NewProtocolViolationError("command", fmt.Sprintf("unknown reply status %q", reply.Status))
	}
	return &reply, nil
}
