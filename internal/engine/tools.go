package engine

import (
	"context"
	"fmt"

	"github.com/ewrenn/greenie/internal/llm"
)

// Welcome produces a short greeting for the owner, mentioning their
// current topic when one is set. Falls back to a canned line when the
// completion backend is unavailable.
func (e *Engine) Welcome(ctx context.Context, owner string) string {
	topicNow := e.currentTopic(owner)
	prompt := "Greet the user in one short, friendly sentence."
	if topicNow != "" {
		prompt = fmt.Sprintf("Greet the user in one short, friendly sentence and mention that you were last discussing %q.", topicNow)
	}
	reply, err := e.client.Complete(ctx, llm.Request{
		System:      SystemInstruction,
		Prompt:      prompt,
		Model:       e.opts.FastModel,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Timeout:     e.opts.FastTimeout,
	})
	if err != nil {
		if topicNow != "" {
			return fmt.Sprintf("Hello! Last time we were talking about %s. How can I help?", topicNow)
		}
		return "Hello! How can I help you today?"
	}
	return reply
}

// Summarize condenses the supplied text with the fast model.
func (e *Engine) Summarize(ctx context.Context, text string) (string, error) {
	return e.client.Complete(ctx, llm.Request{
		System:      SystemInstruction,
		Prompt:      "Summarize the following text in a few sentences:\n\n" + text,
		Model:       e.opts.FastModel,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Timeout:     e.opts.FastTimeout,
	})
}
