// Package provider translates internal chat requests into the upstream LLM
// provider's request shape. The provider speaks the OpenAI-compatible API,
// so the adapter is a thin layer over go-openai with model-specific quirks
// (reasoning-family parameters) handled here and nowhere else.
package provider

import (
	"strings"

	"github.com/saiaslabs/saias/pkg/chat"
)

// DefaultModel is used when the caller does not pick a model.
const DefaultModel = "llama-3.3-70b-versatile"

// reasoningEffortMedium is the effort preset applied to reasoning-family
// models. Standard models omit the parameter entirely.
const reasoningEffortMedium = "medium"

// systemPersona is the fixed system message prepended to every request.
const systemPersona = `You are SAIAS (Syaifuddin's AI LLM Assistant), a friendly coding assistant.

Style:
1. Casual and approachable, never stiff or corporate.
2. Address the user directly and keep answers to the point.
3. Use emoji sparingly to keep the chat human.

Expertise:
1. You are an expert in software development (Laravel, React, Vue, Python, Go) and technology in general.
2. Explain code the way a senior developer mentors a junior over coffee.
3. When debugging, be patient and give concrete fixes.`

// Mode selects the generation defaults. The streaming and non-streaming
// paths historically used different knobs; both are configuration here, not
// separate code paths.
type Mode int

const (
	// ModeStream relays tokens as they arrive.
	ModeStream Mode = iota
	// ModeComplete returns the full reply in one response.
	ModeComplete
)

// Defaults are the per-mode generation parameters.
type Defaults struct {
	Temperature float32
	MaxTokens   int
}

// StreamDefaults and CompleteDefaults mirror the knobs of the two original
// serving modes.
var (
	StreamDefaults   = Defaults{Temperature: 0.5, MaxTokens: 8192}
	CompleteDefaults = Defaults{Temperature: 0.7, MaxTokens: 1024}
)

// Request is the transient provider request. It is derived per call and
// never persisted.
type Request struct {
	Messages        []chat.Turn
	Model           string
	Temperature     float32
	MaxTokens       int
	Stream          bool
	ReasoningEffort string
}

// IsReasoningModel classifies a model identifier as belonging to a
// reasoning family. Pure and total: any string gets an answer, and the
// result is computed before anything branches on it.
func IsReasoningModel(model string) bool {
	return strings.Contains(model, "o1-") ||
		strings.Contains(model, "openai/o1") ||
		strings.Contains(model, "gpt-oss")
}

// BuildRequest constructs a provider request from the conversation history
// and the new user message. The fixed system persona comes first, then the
// caller-supplied history, then the user message.
func BuildRequest(history []chat.Turn, message, model string, mode Mode, defaults Defaults) Request {
	if model == "" {
		model = DefaultModel
	}

	// Classification happens up front, before the request is assembled.
	reasoning := IsReasoningModel(model)

	messages := make([]chat.Turn, 0, len(history)+2)
	messages = append(messages, chat.Turn{Role: string(chat.RoleSystem), Content: systemPersona})
	for _, turn := range history {
		messages = append(messages, chat.Turn{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chat.Turn{Role: string(chat.RoleUser), Content: message})

	req := Request{
		Messages:    messages,
		Model:       model,
		Temperature: defaults.Temperature,
		MaxTokens:   defaults.MaxTokens,
		Stream:      mode == ModeStream,
	}

	if reasoning {
		req.ReasoningEffort = reasoningEffortMedium
	}

	return req
}

// ModeDefaults returns the stock defaults for a mode.
func ModeDefaults(mode Mode) Defaults {
	if mode == ModeComplete {
		return CompleteDefaults
	}
	return StreamDefaults
}
