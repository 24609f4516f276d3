package streamproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// MaxConsecutiveEventErrors is the default for §4.T3's "abort only after
// max_event_errors consecutive non-fatal errors" rule.
const MaxConsecutiveEventErrors = 5

// ErrStreamAborted is returned once too many consecutive non-fatal errors
// have been emitted on a stream.
var ErrStreamAborted = errors.New("streamproto: aborted after too many consecutive event errors")

// Sink writes a sequence of Events to an SSE-framed HTTP response, exactly
// mirroring the teacher's sse.WithSSE flush loop but operating on the typed
// Event union instead of a generic sse.Message.
type Sink struct {
	w                http.ResponseWriter
	flusher          http.Flusher
	maxConsecutive   int
	consecutiveFails int
}

// NewSink wraps an http.ResponseWriter for SSE emission. It returns an error
// if the writer does not support flushing, since incremental delivery is
// meaningless without it.
func NewSink(w http.ResponseWriter) (*Sink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streamproto: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Sink{w: w, flusher: flusher, maxConsecutive: MaxConsecutiveEventErrors}, nil
}

// Send validates and transmits one event. An event that fails validation is
// downgraded to a non-fatal error event instead of being dropped silently.
// Send returns ErrStreamAborted once MaxConsecutiveEventErrors non-fatal
// errors have been emitted back to back; the caller must stop the stream at
// that point.
func (s *Sink) Send(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if verr := Validate(e); verr != nil {
		e = &Event{
			Type:      EventError,
			ErrorType: "validation_error",
			Message:   verr.Error(),
			Fatal:     false,
		}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		e = &Event{Type: EventError, ErrorType: "encode_error", Message: err.Error(), Fatal: false}
		payload, _ = json.Marshal(e)
	}

	if err := s.writeFrame(payload); err != nil {
		return fmt.Errorf("streamproto: write frame: %w", err)
	}

	if e.Type == EventError && !e.Fatal {
		s.consecutiveFails++
		if s.consecutiveFails >= s.maxConsecutive {
			return ErrStreamAborted
		}
	} else {
		s.consecutiveFails = 0
	}

	return nil
}

// writeFrame encodes payload as a single `data: <json>\n\n` SSE frame.
func (s *Sink) writeFrame(payload []byte) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
