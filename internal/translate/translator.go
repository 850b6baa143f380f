// Package translate binds LLM providers behind a single text-in,
// text-out interface so the orchestrator never sees vendor SDKs.
package translate

import "context"

// Translator turns source-language prose into the target language.
// Implementations must be safe for concurrent use.
type Translator interface {
	// Translate returns the translated text. The input is plain prose
	// or Markdown; formatting is preserved where the provider allows.
	Translate(ctx context.Context, text, targetLang string) (string, error)

	// Name identifies the backing provider for logs and metrics.
	Name() string
}

const systemPrompt = "You are a professional literary translator. " +
	"Translate the user's text faithfully into the requested language. " +
	"Preserve paragraph breaks, Markdown formatting, and honorific nuance. " +
	"Return only the translated text with no commentary."

func userPrompt(text, targetLang string) string {
	return "Translate the following text into " + targetLang + ":\n\n" + text
}
