package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tell-Me-Mo/insight-engine/internal/inference"
	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// Summarizer produces the post-meeting recap at finalization.
type Summarizer struct {
	llm inference.LLMClient
}

// NewSummarizer creates a recap generator over the given provider.
func NewSummarizer(llm inference.LLMClient) *Summarizer {
	return &Summarizer{llm: llm}
}

const recapSystemPrompt = "You write concise meeting recaps. Given the closing transcript, " +
	"the questions raised, and the action items tracked, produce a short recap: " +
	"2-3 sentences of narrative, then the unresolved questions and open action items as bullet points. " +
	"Plain text only."

// Recap generates the meeting recap from the final transcript window and
// the tracked insights.
func (s *Summarizer) Recap(ctx context.Context, transcriptTail string, questions []insight.Question, actions []insight.Action) (string, error) {
	if transcriptTail == "" && len(questions) == 0 && len(actions) == 0 {
		return "", nil
	}

	var b strings.Builder
	if transcriptTail != "" {
		b.WriteString("Closing transcript:\n")
		b.WriteString(transcriptTail)
		b.WriteString("\n\n")
	}

	if len(questions) > 0 {
		b.WriteString("Questions raised:\n")
		for _, q := range questions {
			fmt.Fprintf(&b, "- [%s] %s\n", q.Status, q.Text)
		}
		b.WriteString("\n")
	}

	if len(actions) > 0 {
		b.WriteString("Action items:\n")
		for _, a := range actions {
			owner := a.Owner
			if owner == "" {
				owner = "unassigned"
			}
			fmt.Fprintf(&b, "- [%s] %s (owner: %s)\n", a.Status, a.Description, owner)
		}
		b.WriteString("\n")
	}
	b.WriteString("Write the recap:")

	resp, err := s.llm.Complete(ctx, inference.CompletionRequest{
		System:      recapSystemPrompt,
		Prompt:      b.String(),
		MaxTokens:   500,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate recap: %w", err)
	}
	return strings.TrimSpace(resp), nil
}
