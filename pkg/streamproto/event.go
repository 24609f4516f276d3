// Package streamproto defines the Stream Event schema (§6), a validator, and
// the SSE framing that carries events to clients. The event shape is a
// tagged union matching the teacher's practice of modeling variant data as
// explicit Go types rather than maps (see ai/model/chat/message.go's
// MessageType enum in the teacher repo) instead of the dynamically-typed
// payloads a reflection-heavy source would use.
package streamproto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventStatus      EventType = "status"
	EventThinking    EventType = "thinking"
	EventToolCall    EventType = "tool_call"
	EventObservation EventType = "observation"
	EventCorrection  EventType = "correction"
	EventToken       EventType = "token"
	EventMetadata    EventType = "metadata"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// StatusValue is the enumerated value of a "status" event.
type StatusValue string

const (
	StatusProcessing StatusValue = "processing"
	StatusCompleted  StatusValue = "completed"
)

// Event is the single wire type for every frame emitted on a stream. Only
// the fields relevant to Type are populated; Validate checks that the fields
// Type requires are set.
type Event struct {
	Type EventID
	// status
	Status        StatusValue
	CorrelationID string
	// thinking / token
	Text string
	// tool_call
	ToolName      string
	RedactedArgs  map[string]any
	// observation
	ObservedTool string
	Length       int
	Preview      string
	// correction
	Severity string
	Source   string
	// metadata
	FollowupQuestions  []string
	Sources            []types.Document
	TokenUsage         types.TokenUsage
	Timings            map[string]time.Duration
	// error
	ErrorType string
	Message   string
	Fatal     bool
}

// EventID is an alias kept distinct from EventType so JSON tagging stays
// terse at call sites (events are usually built with Type: EventDone, ...).
type EventID = EventType

var (
	// ErrNilEvent is returned by Validate for a nil *Event.
	ErrNilEvent = errors.New("streamproto: event is nil")
	// ErrUnknownEventType is returned for an EventType outside the enum.
	ErrUnknownEventType = errors.New("streamproto: unknown event type")
	// ErrMissingField is returned when a required field for the event's
	// variant is empty.
	ErrMissingField = errors.New("streamproto: missing required field for event type")
)

// Validate checks that e carries the fields required by its declared Type.
// Invalid events are never transmitted as-is; callers downgrade them to a
// non-fatal EventError per §4.T3.
func Validate(e *Event) error {
	if e == nil {
		return ErrNilEvent
	}

	switch e.Type {
	case EventStatus:
		if e.Status == "" || e.CorrelationID == "" {
			return ErrMissingField
		}
	case EventThinking, EventToken:
		if e.Text == "" {
			return ErrMissingField
		}
	case EventToolCall:
		if e.ToolName == "" {
			return ErrMissingField
		}
	case EventObservation:
		if e.ObservedTool == "" {
			return ErrMissingField
		}
	case EventCorrection:
		if e.Text == "" || e.Severity == "" {
			return ErrMissingField
		}
	case EventMetadata:
		// all fields optional; metadata may legitimately be all-empty for
		// greeting/casual intents with no sources or followups.
	case EventError:
		if e.ErrorType == "" || e.Message == "" {
			return ErrMissingField
		}
	case EventDone:
		if e.CorrelationID == "" {
			return ErrMissingField
		}
	default:
		return ErrUnknownEventType
	}

	return nil
}

// MarshalJSON renders an event as the wire-format `{type, data}` object
// the §6 table describes, omitting fields irrelevant to the variant.
func (e Event) MarshalJSON() ([]byte, error) {
	data := map[string]any{}

	switch e.Type {
	case EventStatus:
		data["status"] = e.Status
		data["correlation_id"] = e.CorrelationID
	case EventThinking, EventToken:
		data["text"] = e.Text
	case EventToolCall:
		data["tool_name"] = e.ToolName
		data["args"] = e.RedactedArgs
	case EventObservation:
		data["tool_name"] = e.ObservedTool
		data["length"] = e.Length
		data["preview"] = e.Preview
	case EventCorrection:
		data["severity"] = e.Severity
		data["text"] = e.Text
		data["source"] = e.Source
	case EventMetadata:
		data["followup_questions"] = e.FollowupQuestions
		data["sources"] = e.Sources
		data["token_usage"] = e.TokenUsage
		data["timings"] = e.Timings
	case EventError:
		data["error_type"] = e.ErrorType
		data["message"] = e.Message
		data["fatal"] = e.Fatal
		data["correlation_id"] = e.CorrelationID
	case EventDone:
		data["correlation_id"] = e.CorrelationID
	}

	return json.Marshal(struct {
		Type EventType      `json:"type"`
		Data map[string]any `json:"data"`
	}{Type: e.Type, Data: data})
}
