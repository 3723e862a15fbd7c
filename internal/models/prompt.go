package models

import "encoding/json"

// PromptResult is the reply collected from one agent prompt turn.
type PromptResult struct {
	StopReason string          `json:"stopReason"`
	Text       string          `json:"text"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}
