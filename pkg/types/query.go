// Package types holds the data shared across the orchestrator's components:
// the immutable request envelope, the mutable per-query scratchpad, and the
// document/fact/graph records owned by the retrieval and memory subsystems.
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxQueryChars bounds the size of an incoming query (§4.T2.1).
const MaxQueryChars = 5000

// MaxHistoryMessages bounds the number of prior turns accepted on an envelope.
const MaxHistoryMessages = 50

// ChatMessage is a single turn of conversation history attached to a query.
type ChatMessage struct {
	Role    string // "user" | "assistant" | "system"
	Content string
}

// QueryEnvelope is the immutable request that enters the orchestrator. It is
// built once via NewQueryEnvelope and never mutated afterward; every
// component that needs query-scoped state derives it from here instead of
// writing back into the envelope.
type QueryEnvelope struct {
	Text           string
	UserID         string
	UserTier       int
	ConversationID string
	SessionID      string
	CorrelationID  string
	History        []ChatMessage
}

// NewQueryEnvelope validates and constructs a QueryEnvelope. CorrelationID is
// generated when the caller does not supply one, matching the teacher's
// convention of filling immutable-construction defaults inside the
// constructor rather than at call sites.
func NewQueryEnvelope(text, userID string, userTier int, conversationID, sessionID, correlationID string, history []ChatMessage) (*QueryEnvelope, error) {
	if text == "" {
		return nil, errors.New("types: query text must not be empty")
	}
	if len(text) > MaxQueryChars {
		return nil, errors.New("types: query text exceeds maximum length")
	}
	if userID == "" {
		return nil, errors.New("types: user id is required")
	}
	if len(history) > MaxHistoryMessages {
		return nil, errors.New("types: history exceeds maximum message count")
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	hist := make([]ChatMessage, len(history))
	copy(hist, history)

	return &QueryEnvelope{
		Text:           text,
		UserID:         userID,
		UserTier:       userTier,
		ConversationID: conversationID,
		SessionID:      sessionID,
		CorrelationID:  correlationID,
		History:        hist,
	}, nil
}

// Answer is the synchronous response returned by Orchestrator.Query.
type Answer struct {
	Text               string
	Sources            []Document
	Timings            map[string]time.Duration
	TokenUsage         TokenUsage
	FollowupQuestions  []string
	CorrectionsApplied int
}
