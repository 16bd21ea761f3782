// Package summarize condenses oversized conversation transcripts with
// Gemini so reconnecting sessions carry a bounded amount of context.
package summarize

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultTargetChars is the length the summary is asked to stay within.
const DefaultTargetChars = 24000

const model = "gemini-2.0-flash"

// Summarizer produces a condensed transcript. Implementations must be safe
// for concurrent use.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string, targetChars int) (string, error)
}

// Gemini is the production Summarizer.
type Gemini struct {
	client *genai.Client
}

// NewGemini builds a Gemini-backed summarizer from an API key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Summarize asks the model for a condensed transcript that preserves
// speaker attribution and any facts needed to continue the conversation.
func (g *Gemini) Summarize(ctx context.Context, conversation string, targetChars int) (string, error) {
	if targetChars <= 0 {
		targetChars = DefaultTargetChars
	}
	prompt := fmt.Sprintf(
		"Summarize the following voice conversation transcript in at most %d characters. "+
			"Preserve the speaker labels (user:, agent:), every commitment or fact either side stated, "+
			"and the current topic, so the conversation can be continued seamlessly. "+
			"Return only the condensed transcript.\n\n%s",
		targetChars, conversation)

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	out := resp.Text()
	if out == "" {
		return "", fmt.Errorf("generate summary: empty response")
	}
	return out, nil
}
