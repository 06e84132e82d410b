package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tell-Me-Mo/insight-engine/internal/inference"
)

// generateSystemPrompt conditions the tier-4 answer on the question and the
// meeting context only. The model is explicitly told not to invent
// organization-specific facts; the confidence it reports gates whether the
// answer is surfaced at all.
const generateSystemPrompt = `You answer a question raised during a meeting, using only general knowledge and the meeting context provided. You must not invent organization-specific facts, figures, names, or decisions that are not present in the context. If the question can only be answered with internal knowledge you do not have, say so and report low confidence.

Reply with a single JSON object and nothing else:
{"answer":"...","confidence":0.0}

confidence is your own estimate in [0,1] of how likely the answer is correct and useful.`

// Generator produces tier-4 AI-generated fallback answers.
type Generator struct {
	llm inference.LLMClient
}

// NewGenerator creates a tier-4 generator over the given provider.
func NewGenerator(llm inference.LLMClient) *Generator {
	return &Generator{llm: llm}
}

// Generate asks the model for an answer with a self-reported confidence.
// Callers bound ctx with the tier-4 timeout.
func (g *Generator) Generate(ctx context.Context, question, meetingContext string) (GeneratedAnswer, error) {
	prompt := fmt.Sprintf("Question: %s\n\nMeeting context:\n%s", question, meetingContext)

	raw, err := g.llm.Complete(ctx, inference.CompletionRequest{
		System:    generateSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return GeneratedAnswer{}, fmt.Errorf("generate answer: %w", err)
	}

	out, err := parseGeneratedAnswer(raw)
	if err != nil {
		return GeneratedAnswer{}, err
	}
	return out, nil
}

// parseGeneratedAnswer tolerates markdown code fences around the JSON reply.
func parseGeneratedAnswer(raw string) (GeneratedAnswer, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	var out GeneratedAnswer
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return GeneratedAnswer{}, fmt.Errorf("unparseable generated answer: %w", err)
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}
