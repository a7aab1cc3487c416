package agent

import (
	"context"

	"github.com/haasonsaas/relay/pkg/models"
)

// Provider is the interface model backends implement.
//
// Thread Safety:
// Implementations must be safe for concurrent use; runs for different
// conversations call Complete simultaneously.
type Provider interface {
	// Complete sends one completion request and streams the response.
	// The channel is closed when the response is finished or fails.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Summarize condenses a span of conversation history into prose.
	// The context manager uses this for LLM-assisted compression.
	Summarize(ctx context.Context, messages []models.Message, instruction string) (string, error)

	// Name returns the provider name for logging.
	Name() string
}

// CompletionRequest carries one model round: the managed history, the tool
// descriptors the model may call, and generation parameters.
type CompletionRequest struct {
	Model     string           `json:"model,omitempty"`
	System    string           `json:"system,omitempty"`
	Messages  []models.Message `json:"messages"`
	Tools     []ToolDescriptor `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// CompletionChunk is one streamed piece of a model response. Text arrives
// incrementally; tool calls arrive whole; token counts arrive on the Done
// chunk.
type CompletionChunk struct {
	Text         string           `json:"text,omitempty"`
	ToolCall     *models.ToolCall `json:"tool_call,omitempty"`
	Done         bool             `json:"done,omitempty"`
	Error        error            `json:"-"`
	InputTokens  int              `json:"input_tokens,omitempty"`
	OutputTokens int              `json:"output_tokens,omitempty"`
}
