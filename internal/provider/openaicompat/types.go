package openaicompat

import "encoding/json"

// chatMessage is the wire form of one chat message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

// chatResponse is the chat-completions response body.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// modelList is the /models response body.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// apiError contains error details from an OpenAI-compatible backend.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"` // string or number depending on backend
}

// errorResponse is the error envelope.
type errorResponse struct {
	Error *apiError `json:"error"`
}

// parseAPIError attempts to parse an error payload. Returns nil if the body
// is not the expected envelope.
func parseAPIError(body []byte) *apiError {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return resp.Error
}

// codeString normalizes the error code field, which some backends send as a
// number.
func (e *apiError) codeString() string {
	switch c := e.Code.(type) {
	case string:
		return c
	case float64:
		return ""
	default:
		return ""
	}
}
