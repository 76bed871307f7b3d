package gigachat

import (
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// completionRequest is the body of POST /v1/chat/completions. Stream and the
// sampling parameters are always sent, even at their zero values.
type completionRequest struct {
	Model          string                         `json:"model"`
	Messages       []openai.ChatCompletionMessage `json:"messages"`
	Stream         bool                           `json:"stream"`
	UpdateInterval int                            `json:"update_interval"`
	Temperature    float64                        `json:"temperature"`
	MaxTokens      int                            `json:"max_tokens"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Error   json.RawMessage    `json:"error"`
}

type completionChoice struct {
	Message      openai.ChatCompletionMessage `json:"message"`
	FinishReason openai.FinishReason          `json:"finish_reason"`
}

type remoteError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// remoteErrorMessage extracts a message from the error field, which is an
// object on GigaChat but a bare string on some compatible servers.
func remoteErrorMessage(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	var obj remoteError
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "":
			return obj.Message, true
		case obj.Type != "":
			return obj.Type, true
		default:
			return "Unknown error", true
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	return "Unknown error", true
}
