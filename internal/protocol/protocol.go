// Package protocol defines the JSON-RPC 2.0 envelope shared by the transport,
// cancellation, and notification layers. Payloads inside params/result are
// opaque to the runtime; only envelope-level concerns (ids, method names,
// error codes) are modeled here.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC protocol version carried by every message.
const Version = "2.0"

// Envelope-relevant method names. Semantic methods (tools/list, resources/read)
// are passed through as opaque strings.
const (
	MethodPing = "ping"

	MethodNotificationProgress         = "notifications/progress"
	MethodNotificationCancelled        = "notifications/cancelled"
	MethodNotificationInitialized      = "notifications/initialized"
	MethodNotificationMessage          = "notifications/message"
	MethodNotificationToolsChanged     = "notifications/tools/list_changed"
	MethodNotificationPromptsChanged   = "notifications/prompts/list_changed"
	MethodNotificationResourcesChanged = "notifications/resources/list_changed"
	MethodNotificationRootsChanged     = "notifications/roots/list_changed"
	MethodNotificationResourceUpdated  = "notifications/resources/updated"
)

// ID is a JSON-RPC request id. Wire ids may be strings or numbers; both are
// stored as strings so ids can key maps directly. A string id whose content
// looks numeric keeps its quotes internally, so echoing it back never
// changes its wire type.
type ID string

// UnmarshalJSON accepts string or numeric ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			quoted, err := json.Marshal(s)
			if err != nil {
				return err
			}
			*id = ID(quoted)
			return nil
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	return fmt.Errorf("invalid jsonrpc id: %s", string(data))
}

// MarshalJSON emits ids in their wire form: quote-preserved strings
// verbatim, numeric ids as numbers, anything else as a JSON string.
func (id ID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return []byte(s), nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// Message is a JSON-RPC 2.0 request, response, or notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether the message is a request expecting a response.
func (m Message) IsRequest() bool {
	return m.Method != "" && m.ID != ""
}

// IsNotification reports whether the message is a notification (no id).
func (m Message) IsNotification() bool {
	return m.Method != "" && m.ID == ""
}

// IsResponse reports whether the message is a response to an earlier request.
func (m Message) IsResponse() bool {
	return m.Method == "" && m.ID != "" && (m.Result != nil || m.Error != nil)
}

// NewRequest builds a request message. Params may be nil.
func NewRequest(id ID, method string, params any) (Message, error) {
	msg := Message{JSONRPC: Version, ID: id, Method: method}
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return Message{}, fmt.Errorf("marshal params: %w", err)
		}
		msg.Params = bs
	}
	return msg, nil
}

// NewNotification builds a notification message. Params may be nil.
func NewNotification(method string, params any) (Message, error) {
	msg := Message{JSONRPC: Version, Method: method}
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return Message{}, fmt.Errorf("marshal params: %w", err)
		}
		msg.Params = bs
	}
	return msg, nil
}

// NewResponse builds a response carrying a result.
func NewResponse(id ID, result any) (Message, error) {
	msg := Message{JSONRPC: Version, ID: id}
	bs, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("marshal result: %w", err)
	}
	msg.Result = bs
	return msg, nil
}

// ProgressParams is the payload of a notifications/progress notification.
type ProgressParams struct {
	ProgressToken string  `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// UnmarshalJSON tolerates numeric progress tokens, which some servers emit.
func (p *ProgressParams) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProgressToken json.RawMessage `json:"progressToken"`
		Progress      float64         `json:"progress"`
		Total         float64         `json:"total,omitempty"`
		Message       string          `json:"message,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Progress = raw.Progress
	p.Total = raw.Total
	p.Message = raw.Message
	if len(raw.ProgressToken) > 0 {
		var id ID
		if err := id.UnmarshalJSON(raw.ProgressToken); err != nil {
			return err
		}
		p.ProgressToken = string(id)
	}
	return nil
}

// CancelledParams is the payload of a notifications/cancelled notification.
type CancelledParams struct {
	RequestID ID     `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// ResourceUpdatedParams is the payload of notifications/resources/updated.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// LogMessageParams is the payload of notifications/message.
type LogMessageParams struct {
	Level  string          `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
