// Package orchestrator implements the Orchestrator (§4.T2): the public
// entry point that classifies a query, prefetches context in parallel,
// drives the Three-Phase Pipeline, persists the conversation, and updates
// memory — synchronously (Query) or as a Stream Event sequence
// (StreamQuery).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	"github.com/kejora-ai/orchestrator/pkg/memory"
	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/pipeline"
	"github.com/kejora-ai/orchestrator/pkg/streamproto"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// PipelineTotalTimeout bounds one query end to end (§5: "Pipeline total
// 60s").
const PipelineTotalTimeout = 60 * time.Second

// MaxHistoryTokens bounds how much conversation history is forwarded to the
// Reasoner once memory context is prepended, independent of the envelope's
// own message-count cap (types.MaxHistoryMessages), since a handful of long
// messages can still blow a model's context window.
const MaxHistoryTokens = 6000

// Config wires the Orchestrator's collaborators.
type Config struct {
	Pipeline      *pipeline.Pipeline
	Memory        *memory.Store
	Conversations *ConversationStore
	Followups     *FollowupGenerator
	Metrics       *metrics.Registry
	// Tokenizer estimates history size so it can be trimmed to
	// MaxHistoryTokens before a query reaches the pipeline. Optional; when
	// nil, history is forwarded untrimmed.
	Tokenizer *gateway.TokenEstimator
}

// Orchestrator is the public entry point (§4.T2).
type Orchestrator struct {
	pipeline      *pipeline.Pipeline
	memory        *memory.Store
	conversations *ConversationStore
	followups     *FollowupGenerator
	metrics       *metrics.Registry
	tokenizer     *gateway.TokenEstimator
}

// New builds an Orchestrator from its wired collaborators.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		pipeline:      cfg.Pipeline,
		memory:        cfg.Memory,
		conversations: cfg.Conversations,
		followups:     cfg.Followups,
		metrics:       cfg.Metrics,
		tokenizer:     cfg.Tokenizer,
	}
}

// prefetchResult is what the parallel prefetch phase (§4.T2 step 3)
// gathers before the pipeline runs.
type prefetchResult struct {
	memoryCtx memory.Context
}

// Query runs the synchronous path: classify, prefetch, pipeline, persist,
// update memory. It returns the final Answer.
func (o *Orchestrator) Query(ctx context.Context, envelope *types.QueryEnvelope) (types.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, PipelineTotalTimeout)
	defer cancel()

	start := time.Now()
	in := intent.Classify(envelope.Text)

	prefetch, err := o.prefetch(ctx, envelope)
	if err != nil {
		return types.Answer{}, fmt.Errorf("orchestrator: prefetch: %w", err)
	}

	history := o.truncateToTokenBudget(withMemoryContext(toGatewayMessages(envelope.History), prefetch.memoryCtx))
	sessionID := envelope.SessionID
	if sessionID == "" {
		sessionID = envelope.UserID
	}

	cumCost := 0.0
	outcome, err := o.pipeline.Run(ctx, sessionID, envelope.Text, history, in, envelope.UserTier, &cumCost)
	if err != nil {
		return types.Answer{}, fmt.Errorf("orchestrator: pipeline: %w", err)
	}

	lang := detectAnswerLanguage(envelope.Text)
	var followups []string
	if !intent.IsConversational(in) && o.followups != nil {
		followups = o.followups.Generate(ctx, envelope.Text, outcome.Answer, lang, &cumCost)
	}

	o.persistConversation(ctx, envelope, outcome.Answer)
	o.updateMemoryAsync(envelope, outcome.Answer)

	return types.Answer{
		Text: outcome.Answer,
		TokenUsage: types.TokenUsage{
			PromptTokens:     outcome.AgentState.PromptTokens,
			CompletionTokens: outcome.AgentState.CompletionTokens,
			Cost:             cumCost,
		},
		Timings:            map[string]time.Duration{"total": time.Since(start)},
		FollowupQuestions:  followups,
		CorrectionsApplied: len(outcome.Calibration.Corrections),
	}, nil
}

// prefetch loads memory context in parallel with whatever else a fuller
// deployment prefetches (conversation history is already part of the
// envelope; §4.T2 step 3's "initial status event" is the streaming path's
// responsibility, not this synchronous one).
func (o *Orchestrator) prefetch(ctx context.Context, envelope *types.QueryEnvelope) (prefetchResult, error) {
	var result prefetchResult
	if o.memory == nil || o.memory.PerUser == nil {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		memCtx, err := o.memory.PerUser.GetContext(gctx, envelope.UserID, envelope.Text)
		if err != nil {
			return fmt.Errorf("memory context: %w", err)
		}
		result.memoryCtx = memCtx
		return nil
	})

	if err := g.Wait(); err != nil {
		return prefetchResult{}, err
	}
	return result, nil
}

// persistConversation runs the two-phase conversation save (§4.T2 step 6).
// A failure here is recorded via metrics but never fails the query — the
// user already has their answer.
func (o *Orchestrator) persistConversation(ctx context.Context, envelope *types.QueryEnvelope, answer string) {
	if o.conversations == nil {
		return
	}
	messages := append(append([]types.ChatMessage{}, envelope.History...),
		types.ChatMessage{Role: "user", Content: envelope.Text},
		types.ChatMessage{Role: "assistant", Content: answer},
	)
	rec := ConversationRecord{
		UserID:    envelope.UserID,
		SessionID: envelope.SessionID,
		Messages:  messages,
		Metadata: map[string]any{
			"conversation_id": envelope.ConversationID,
			"correlation_id":  envelope.CorrelationID,
		},
	}
	if err := o.conversations.Save(ctx, rec); err != nil && o.metrics != nil {
		o.metrics.ErrorsTotal.WithLabelValues("orchestrator", "conversation_save").Inc()
	}
}

// updateMemoryAsync implements §4.T2 step 7: memory is updated on a
// detached context so the query's own deadline never blocks it, serialized
// per user by the Memory Store's own keyed lock.
func (o *Orchestrator) updateMemoryAsync(envelope *types.QueryEnvelope, answer string) {
	if o.memory == nil || o.memory.PerUser == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), memory.DefaultWriteLockTimeout+10*time.Second)
		defer cancel()
		if _, err := o.memory.PerUser.Process(bgCtx, envelope.UserID, envelope.Text, answer); err != nil && o.metrics != nil {
			o.metrics.ErrorsTotal.WithLabelValues("orchestrator", "memory_update").Inc()
		}
	}()
}

// toGatewayMessages projects the envelope's conversation history into the
// gateway's message shape.
func toGatewayMessages(history []types.ChatMessage) []gateway.Message {
	return lo.Map(history, func(m types.ChatMessage, _ int) gateway.Message {
		return gateway.Message{Role: m.Role, Content: m.Content}
	})
}

// withMemoryContext prepends the per-user Memory Store's summary, if any,
// as a system message ahead of the conversation history, giving the
// Reasoner and Synthesizer the user's known facts without threading a
// separate parameter through the Three-Phase Pipeline.
func withMemoryContext(history []gateway.Message, memCtx memory.Context) []gateway.Message {
	if memCtx.Summary == "" {
		return history
	}
	out := make([]gateway.Message, 0, len(history)+1)
	out = append(out, gateway.Message{
		Role:    "system",
		Content: "known facts about this user: " + memCtx.Summary,
	})
	out = append(out, history...)
	return out
}

// truncateToTokenBudget drops the oldest history messages after index 0
// until the remainder fits MaxHistoryTokens or only index 0 is left. Index 0
// is never dropped: it is the prepended memory-context system message when
// there is one, and otherwise the oldest history message. With no tokenizer wired, history passes through
// unchanged — the envelope's message-count cap is the only guard.
func (o *Orchestrator) truncateToTokenBudget(history []gateway.Message) []gateway.Message {
	if o.tokenizer == nil || len(history) == 0 {
		return history
	}
	if o.tokenizer.EstimateMessages(history) <= MaxHistoryTokens {
		return history
	}

	kept := append([]gateway.Message{}, history...)
	for len(kept) > 1 && o.tokenizer.EstimateMessages(kept) > MaxHistoryTokens {
		kept = append(kept[:1], kept[2:]...)
	}
	return kept
}

// indonesianMarkers mirrors pkg/pipeline's language heuristic at the
// Orchestrator boundary, where the follow-up generator needs a language
// hint before the Synthesizer has run.
var indonesianMarkers = []string{" yang ", " adalah ", " dan ", " untuk ", " dengan ", " apa ", " bagaimana "}

func detectAnswerLanguage(query string) string {
	sample := " " + strings.ToLower(query) + " "
	hits := 0
	for _, marker := range indonesianMarkers {
		if strings.Contains(sample, marker) {
			hits++
		}
	}
	if hits >= 2 {
		return "id"
	}
	return "en"
}

// StreamQuery runs the same pipeline as Query but emits Stream Events as
// the Reasoning Engine and Calibrator produce them, finally chunking the
// Synthesizer's answer into `token` events before the terminal `metadata`
// and `done` events (§4.T2 step 4, §6). The final error, if any, has
// already been surfaced as a fatal `error` event; StreamQuery's own return
// value is for the caller's logs, not for the client.
func (o *Orchestrator) StreamQuery(ctx context.Context, envelope *types.QueryEnvelope, sink *streamproto.Sink) error {
	ctx, cancel := context.WithTimeout(ctx, PipelineTotalTimeout)
	defer cancel()

	start := time.Now()

	if err := sink.Send(ctx, &streamproto.Event{
		Type:          streamproto.EventStatus,
		Status:        streamproto.StatusProcessing,
		CorrelationID: envelope.CorrelationID,
	}); err != nil {
		return fmt.Errorf("orchestrator: stream status: %w", err)
	}

	in := intent.Classify(envelope.Text)
	prefetch, err := o.prefetch(ctx, envelope)
	if err != nil {
		_ = sink.Send(ctx, &streamproto.Event{
			Type:          streamproto.EventError,
			ErrorType:     "prefetch_error",
			Message:       err.Error(),
			Fatal:         true,
			CorrelationID: envelope.CorrelationID,
		})
		return fmt.Errorf("orchestrator: stream prefetch: %w", err)
	}

	history := o.truncateToTokenBudget(withMemoryContext(toGatewayMessages(envelope.History), prefetch.memoryCtx))
	sessionID := envelope.SessionID
	if sessionID == "" {
		sessionID = envelope.UserID
	}

	reasonObs := &streamObserver{ctx: ctx, sink: sink}
	corrObs := func(c types.AppliedCorrection) {
		_ = sink.Send(ctx, &streamproto.Event{
			Type:     streamproto.EventCorrection,
			Text:     c.CorrectionText,
			Severity: string(c.Severity),
			Source:   c.SourceCitation,
		})
	}

	cumCost := 0.0
	outcome, err := o.pipeline.RunWithObservers(ctx, sessionID, envelope.Text, history, in, envelope.UserTier, &cumCost, reasonObs, corrObs)
	if err != nil {
		_ = sink.Send(ctx, &streamproto.Event{
			Type:          streamproto.EventError,
			ErrorType:     "pipeline_error",
			Message:       err.Error(),
			Fatal:         true,
			CorrelationID: envelope.CorrelationID,
		})
		return fmt.Errorf("orchestrator: stream pipeline: %w", err)
	}

	emitAnswerTokens(ctx, sink, outcome.Answer)

	lang := detectAnswerLanguage(envelope.Text)
	var followups []string
	if !intent.IsConversational(in) && o.followups != nil {
		followups = o.followups.Generate(ctx, envelope.Text, outcome.Answer, lang, &cumCost)
	}

	o.persistConversation(ctx, envelope, outcome.Answer)
	o.updateMemoryAsync(envelope, outcome.Answer)

	_ = sink.Send(ctx, &streamproto.Event{
		Type:              streamproto.EventMetadata,
		FollowupQuestions: followups,
		TokenUsage: types.TokenUsage{
			PromptTokens:     outcome.AgentState.PromptTokens,
			CompletionTokens: outcome.AgentState.CompletionTokens,
			Cost:             cumCost,
		},
		Timings: map[string]time.Duration{"total": time.Since(start)},
	})

	return sink.Send(ctx, &streamproto.Event{
		Type:          streamproto.EventDone,
		CorrelationID: envelope.CorrelationID,
	})
}

// tokenChunkWords is the word-count chunk size used to turn the
// Synthesizer's single completed answer into a sequence of `token` events,
// since the Model Gateway's SendMessage is not itself a token-streaming
// API (§4.L1 calls are request/response, not incremental).
const tokenChunkWords = 4

// emitAnswerTokens splits text on whitespace and sends it as a sequence of
// `token` events, each carrying a few words, so a streaming client renders
// the answer incrementally even though the underlying model call returned
// it all at once.
func emitAnswerTokens(ctx context.Context, sink *streamproto.Sink, text string) {
	words := strings.Fields(text)
	for i := 0; i < len(words); i += tokenChunkWords {
		end := i + tokenChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		if err := sink.Send(ctx, &streamproto.Event{Type: streamproto.EventToken, Text: chunk}); err != nil {
			return
		}
	}
}

// streamObserver bridges Reasoning Engine callbacks to Stream Events,
// implementing §4.T2 step 4's streaming variant.
type streamObserver struct {
	ctx  context.Context
	sink *streamproto.Sink
}

func (s *streamObserver) OnThinking(text string) {
	_ = s.sink.Send(s.ctx, &streamproto.Event{Type: streamproto.EventThinking, Text: text})
}

func (s *streamObserver) OnToolCall(toolName string, args map[string]any) {
	_ = s.sink.Send(s.ctx, &streamproto.Event{Type: streamproto.EventToolCall, ToolName: toolName, RedactedArgs: redactArgs(args)})
}

func (s *streamObserver) OnObservation(toolName, preview string, length int) {
	_ = s.sink.Send(s.ctx, &streamproto.Event{Type: streamproto.EventObservation, ObservedTool: toolName, Preview: preview, Length: length})
}

// redactArgs strips values for keys that look sensitive before they reach
// a `tool_call` Stream Event, matching §6's "args (redacted)" field.
func redactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	redacted := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "token") || strings.Contains(lower, "secret") || strings.Contains(lower, "password") || strings.Contains(lower, "key") {
			redacted[k] = "[redacted]"
			continue
		}
		redacted[k] = v
	}
	return redacted
}
