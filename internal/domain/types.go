package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ProviderKind identifies a backend family. The set is closed: adding a
// provider means adding a kind plus its adapter and classification table.
type ProviderKind string

const (
	KindDeepSeek   ProviderKind = "deepseek"
	KindQwen       ProviderKind = "qwen"
	KindGLM        ProviderKind = "glm"
	KindGemini     ProviderKind = "gemini"
	KindOpenRouter ProviderKind = "openrouter"
	KindLMStudio   ProviderKind = "lmstudio"
	KindClaude     ProviderKind = "claude"
	KindGrok       ProviderKind = "grok"
)

// Kinds returns all known provider kinds in a stable order.
func Kinds() []ProviderKind {
	return []ProviderKind{
		KindDeepSeek, KindQwen, KindGLM, KindGemini,
		KindOpenRouter, KindLMStudio, KindClaude, KindGrok,
	}
}

// CompletionRequest is the generic chat-completion request handed to an
// adapter. It is immutable once constructed; the dispatcher builds a fresh
// copy per attempt with the resolved model filled in.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	TopP        float32   `json:"top_p,omitempty"`
}

// InputText concatenates the system instruction and all message contents.
// Used for token estimation when a backend does not report usage.
func (r *CompletionRequest) InputText() string {
	n := len(r.System)
	for _, m := range r.Messages {
		n += len(m.Content)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, r.System...)
	for _, m := range r.Messages {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}

// Clone returns a copy of the request with the given model identifier.
func (r *CompletionRequest) Clone(model string) *CompletionRequest {
	cp := *r
	cp.Model = model
	cp.Messages = make([]Message, len(r.Messages))
	copy(cp.Messages, r.Messages)
	return &cp
}

// CompletionResult is produced exactly once per successful attempt.
type CompletionResult struct {
	Text         string        `json:"text"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	FinishReason string        `json:"finish_reason,omitempty"`
}
