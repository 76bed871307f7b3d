package gigachat

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts/tea_expert.txt
var teaExpertPrompt string

// DefaultSystemPrompt returns the built-in tea expert prompt.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(teaExpertPrompt)
}

// LoadSystemPrompt reads a prompt override from path, or returns the
// built-in prompt when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSystemPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}
