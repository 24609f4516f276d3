package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
)

// MinFollowupQuestions and MaxFollowupQuestions bound §4.T2 step 5's
// "3-4 follow-up questions" requirement.
const (
	MinFollowupQuestions = 3
	MaxFollowupQuestions = 4
)

const followupPromptTemplate = `Given this question and answer, suggest between 3 and 4 natural
follow-up questions a user might ask next, in %s. Respond with a JSON array
of strings only, no markdown fences, no commentary.

Question: %s

Answer: %s`

// FollowupGenerator produces 3-4 follow-up questions via a single small-
// model call, skipped entirely for greeting/casual intents (§4.T2 step 5).
type FollowupGenerator struct {
	gateway *gateway.Gateway
	tier    gateway.Tier
}

// NewFollowupGenerator builds a FollowupGenerator bound to a (typically
// cheap/fast) model tier.
func NewFollowupGenerator(gw *gateway.Gateway, tier gateway.Tier) *FollowupGenerator {
	return &FollowupGenerator{gateway: gw, tier: tier}
}

// Generate asks the model for follow-up questions and parses its JSON array
// response. On any failure it returns nil rather than propagating the
// error: a missing follow-up list never fails the query.
func (g *FollowupGenerator) Generate(ctx context.Context, question, answer, lang string, cumCost *float64) []string {
	languageName := "English"
	if lang == "id" {
		languageName = "Indonesian"
	}

	prompt := fmt.Sprintf(followupPromptTemplate, languageName, question, answer)
	messages := []gateway.Message{{Role: "user", Content: prompt}}

	result, err := g.gateway.SendMessage(ctx, messages, false, nil, g.tier, cumCost)
	if err != nil {
		return nil
	}

	raw := strings.TrimSpace(result.Text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var questions []string
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil
	}

	if len(questions) > MaxFollowupQuestions {
		questions = questions[:MaxFollowupQuestions]
	}
	return questions
}
