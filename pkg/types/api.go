package types

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
)

// Message is one chat turn. Role and Content are pointers so that a
// streaming delta can omit either field independently.
type Message struct {
	Role    Role     `json:"role,omitempty"`
	Content *Content `json:"content,omitempty"`
}

// ResponseFormat selects the output format requested by the client.
// Accepted and passed through; the engine does not constrain output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionsRequest is the OpenAI-compatible request body for
// POST /v1/chat/completions. Sampling parameters are accepted for
// compatibility; the resident engine runs with its configured defaults.
type ChatCompletionsRequest struct {
	Model            string             `json:"model"`
	Messages         []Message          `json:"messages"`
	Temperature      *float32           `json:"temperature,omitempty"`
	TopP             *float32           `json:"top_p,omitempty"`
	N                *int               `json:"n,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	PresencePenalty  *float32           `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32           `json:"frequency_penalty,omitempty"`
	User             string             `json:"user,omitempty"`
	ResponseFormat   *ResponseFormat    `json:"response_format,omitempty"`
	Seed             *int               `json:"seed,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

// Finish reasons reported in choices.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Choice carries either a full message (non-streaming) or an incremental
// delta (streaming) plus an optional finish reason.
type Choice struct {
	Index        int      `json:"index"`
	Delta        *Message `json:"delta,omitempty"`
	Message      *Message `json:"message,omitempty"`
	Logprobs     *string  `json:"logprobs,omitempty"`
	FinishReason *string  `json:"finish_reason,omitempty"`
}

// Usage contains token accounting. Counts are approximate: the native
// engine does not expose per-call token totals.
type Usage struct {
	CompletionTokens int `json:"completion_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Object kinds for ChatCompletionsResponse.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// ChatCompletionsResponse is both the non-streaming response object and
// the streaming chunk; Object distinguishes the two.
type ChatCompletionsResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// OpenAIError is the uniform error envelope returned by every endpoint.
type OpenAIError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    string  `json:"code"`
}

// OpenAIModel is one entry of GET /v1/models.
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelListResponse wraps GET /v1/models.
type ModelListResponse struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}
